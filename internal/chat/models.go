package chat

import (
	"time"

	"gorm.io/gorm"
)

// Chat is a conversation container owned by one user and bound to one
// provider/model pair. DeletedAt is a gorm soft-delete marker: every read
// through this model excludes deleted rows, so a forgotten filter can never
// leak a deleted chat.
type Chat struct {
	ID            string `gorm:"type:char(36);primaryKey" json:"id"`
	UserID        string `gorm:"type:varchar(26);not null;index" json:"user_id"`
	Title         string `gorm:"type:varchar(255);not null" json:"title"`
	ModelProvider string `gorm:"type:varchar(32);not null" json:"model_provider"`
	ModelID       string `gorm:"type:varchar(64);not null" json:"model_id"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Chat) TableName() string { return "chats" }

// Message is one persisted turn. SequenceNumber is assigned at creation and
// never changes; the unique index on (chat_id, sequence_number) is the
// invariant concurrent writers race against.
type Message struct {
	ID              string  `gorm:"type:char(36);primaryKey" json:"id"`
	ChatID          string  `gorm:"type:char(36);not null;index:idx_messages_chat_seq,unique,priority:1" json:"chat_id"`
	Role            string  `gorm:"type:varchar(16);not null" json:"role"`
	Content         string  `gorm:"type:text;not null" json:"content"`
	Metadata        *string `gorm:"type:json" json:"metadata,omitempty"`
	ParentMessageID *string `gorm:"type:char(36);index" json:"parent_message_id,omitempty"`
	SequenceNumber  int     `gorm:"not null;index:idx_messages_chat_seq,unique,priority:2" json:"sequence_number"`

	CreatedAt  time.Time `json:"created_at"`
	TokensUsed *int      `json:"tokens_used,omitempty"`
	ModelUsed  *string   `gorm:"type:varchar(64)" json:"model_used,omitempty"`
}

func (Message) TableName() string { return "messages" }
