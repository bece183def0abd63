package models

import "time"

type User struct {
	ID           string  `gorm:"type:varchar(26);primaryKey" json:"id"`
	Email        string  `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	DisplayName  *string `gorm:"type:varchar(128)" json:"display_name,omitempty"`
	PasswordHash string  `gorm:"type:varchar(128);not null" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
