package models

import (
	"time"
)

// User model. Rows are created on registration or implicitly on the first
// product submitted for an unknown id; they are never deleted.
type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Name           string    `gorm:"size:255;not null;default:''" json:"username"`
	Email          *string   `gorm:"size:255;uniqueIndex" json:"email,omitempty"`
	HashedPassword []byte    `json:"-"`
	IsPremium      bool      `gorm:"not null;default:false" json:"isPremium"`
	Products       []Product `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"products,omitempty"`
}
