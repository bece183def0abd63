package catalog

import (
	"context"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// ListActive returns the catalogue rows clients may pick from, optionally
// narrowed to one provider.
func (r *Repo) ListActive(ctx context.Context, provider string) ([]AIModel, error) {
	q := r.db.WithContext(ctx).Where("is_active = ?", true)
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	var out []AIModel
	err := q.Order("provider, id").Find(&out).Error
	return out, err
}

func (r *Repo) Get(ctx context.Context, id string) (*AIModel, error) {
	var m AIModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
