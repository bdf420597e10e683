package models

import "time"

// Product is a single expense entry owned by a user.
type Product struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `gorm:"index:idx_products_user_created,priority:2" json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	UserID      uint      `gorm:"not null;index:idx_products_user_created,priority:1" json:"userId"`
	Amount      float64   `gorm:"not null" json:"amount"`
	Description string    `gorm:"size:512;not null;default:''" json:"description"`
	Category    string    `gorm:"size:128;not null;default:''" json:"category"`
}
