package keys

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parleyhq/parley/internal/ai"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, k *UserAPIKey) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(k).Error
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]UserAPIKey, error) {
	var out []UserAPIKey
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// GetDefault returns the credential flagged default for (userID, vendor).
// gorm.ErrRecordNotFound when the user has none.
func (r *Repo) GetDefault(ctx context.Context, userID string, vendor ai.Vendor) (*UserAPIKey, error) {
	var k UserAPIKey
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ? AND is_default = ?", userID, string(vendor), true).
		First(&k).Error
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *Repo) Delete(ctx context.Context, id, userID string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&UserAPIKey{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetDefault makes the key the single default for its (user, provider)
// pair. Clearing the other defaults and setting the new one run in one
// transaction so a crash can never leave two defaults.
func (r *Repo) SetDefault(ctx context.Context, id, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var k UserAPIKey
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&k).Error; err != nil {
			return err
		}

		if err := tx.Model(&UserAPIKey{}).
			Where("user_id = ? AND provider = ?", userID, k.Provider).
			Update("is_default", false).Error; err != nil {
			return err
		}

		return tx.Model(&UserAPIKey{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"is_default": true,
				"updated_at": time.Now(),
			}).Error
	})
}
