package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is a private message sent from one user to another
type Message struct {
	ID         string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	FromUserID string         `json:"from_user_id" gorm:"type:varchar(36);not null;index"`
	ToUserID   string         `json:"to_user_id" gorm:"type:varchar(36);not null;index"`
	Body       string         `json:"body" gorm:"type:text;not null"`
	IsUnread   bool           `json:"is_unread" gorm:"not null;index"`
	CreatedAt  time.Time      `json:"created_at" gorm:"not null;index"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	FromUser User `json:"from_user,omitempty" gorm:"foreignKey:FromUserID;references:ID;constraint:OnDelete:CASCADE"`
	ToUser   User `json:"to_user,omitempty" gorm:"foreignKey:ToUserID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for the Message model
func (Message) TableName() string {
	return "messages"
}

// BeforeCreate assigns a UUID when the caller did not set one
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// Thread summarises the conversation between the viewer and one counterpart
type Thread struct {
	User        User    `json:"user"`
	LastMessage Message `json:"last_message"`
	UnreadCount int     `json:"unread_count"`
}
