package features

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// ListByUser returns the user's stored rows. Flags without a row are
// simply absent and read as disabled.
func (r *Repo) ListByUser(ctx context.Context, userID string) ([]UserFeature, error) {
	var out []UserFeature
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&out).Error
	return out, err
}

// Upsert writes the toggle: insert on first touch, update the existing
// (user, feature) row afterwards. The unique index makes the conflict
// target well defined on both mysql and sqlite.
func (r *Repo) Upsert(ctx context.Context, userID string, flag Flag, enabled bool) (*UserFeature, error) {
	row := &UserFeature{
		ID:      uuid.NewString(),
		UserID:  userID,
		Feature: string(flag),
		Enabled: enabled,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "feature"}},
			DoUpdates: clause.Assignments(map[string]any{
				"enabled":    enabled,
				"updated_at": time.Now(),
			}),
		}).
		Create(row).Error
	if err != nil {
		return nil, err
	}

	// on conflict the generated id above never made it to the table;
	// re-read so callers see the stored row
	var cur UserFeature
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND feature = ?", userID, string(flag)).
		First(&cur).Error; err != nil {
		return nil, err
	}
	return &cur, nil
}
