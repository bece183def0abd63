package features

import "time"

// Flag names one per-user toggle. The set is closed; unknown names are
// rejected at the edge.
type Flag string

const FlagWebSearch Flag = "web_search"

// All lists every flag the API exposes. Listing reports each of these,
// with enabled read as false when the user has no stored row.
func All() []Flag {
	return []Flag{FlagWebSearch}
}

func ParseFlag(s string) (Flag, bool) {
	switch Flag(s) {
	case FlagWebSearch:
		return FlagWebSearch, true
	}
	return "", false
}

// UserFeature is one stored toggle, at most one row per (user, feature).
type UserFeature struct {
	ID      string `gorm:"type:char(36);primaryKey" json:"id"`
	UserID  string `gorm:"type:varchar(26);not null;uniqueIndex:idx_user_features_user_feature,priority:1" json:"user_id"`
	Feature string `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_features_user_feature,priority:2" json:"feature"`
	Enabled bool   `gorm:"not null;default:false" json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserFeature) TableName() string { return "user_features" }
