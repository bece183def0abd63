package keys

import "time"

// UserAPIKey is one stored provider credential. EncryptedKey holds the
// sealed ciphertext, never plaintext. At most one row per (user, provider)
// carries IsDefault; SetDefault preserves that invariant transactionally.
type UserAPIKey struct {
	ID           string `gorm:"type:char(36);primaryKey" json:"id"`
	UserID       string `gorm:"type:varchar(26);not null;index:idx_user_api_keys_user_provider,priority:1" json:"user_id"`
	Provider     string `gorm:"type:varchar(32);not null;index:idx_user_api_keys_user_provider,priority:2" json:"provider"`
	EncryptedKey string `gorm:"type:text;not null" json:"-"`
	IsDefault    bool   `gorm:"not null;default:false;index" json:"is_default"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserAPIKey) TableName() string { return "user_api_keys" }
