package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// User is a community member. Only what the chat needs is kept here.
type User struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	DisplayName string         `json:"display_name"`
	Genres      pq.StringArray `gorm:"type:text[]" json:"genres"`
	CreatedAt   time.Time      `json:"created_at"`
}

// BeforeCreate generates a UUID for the user if ID is not set yet.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}
