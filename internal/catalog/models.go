package catalog

import "time"

// AIModel is one row of the model catalogue served to clients. The table is
// seeded at deploy time; the server only reads it.
type AIModel struct {
	ID                string `gorm:"type:varchar(64);primaryKey" json:"id"`
	Provider          string `gorm:"type:varchar(32);not null;index" json:"provider"`
	DisplayName       string `gorm:"type:varchar(128);not null" json:"display_name"`
	Description       string `gorm:"type:text" json:"description"`
	ContextWindow     int    `gorm:"not null" json:"context_window"`
	SupportsStreaming bool   `gorm:"not null;default:false" json:"supports_streaming"`
	SupportsImages    bool   `gorm:"not null;default:false" json:"supports_images"`
	SupportsFunctions bool   `gorm:"not null;default:false" json:"supports_functions"`
	IsActive          bool   `gorm:"not null;default:true;index" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AIModel) TableName() string { return "ai_models" }
