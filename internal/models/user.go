// Package models contains data structures for the inbox domain.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the directory entry joined into participant and message payloads.
// Accounts are managed by the identity service; this table only mirrors the
// display fields the inbox renders.
type User struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name      string    `gorm:"size:120;not null;default:''" json:"name"`
	Email     string    `gorm:"size:255;not null;default:'';index" json:"email,omitempty"`
	Phone     string    `gorm:"size:32;not null;default:''" json:"phone,omitempty"`
	AvatarURL string    `gorm:"size:512;not null;default:''" json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for GORM.
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns an id when the caller did not provide one.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}
