package models

import "time"

// Order mirrors a payment-gateway order created for a premium upgrade.
// The gateway stays authoritative; this row is an audit trail.
type Order struct {
	ID        string `gorm:"primaryKey;size:64" json:"id"` // gateway order id
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    uint   `gorm:"index;not null" json:"userId"`
	Receipt   string `gorm:"size:64;not null" json:"receipt"`
	Amount    int64  `gorm:"not null" json:"amount"` // minor currency unit (paise)
	Currency  string `gorm:"size:3;not null" json:"currency"`
	Status    string `gorm:"size:16;not null" json:"status"`
	PaymentID string `gorm:"size:64;not null;default:''" json:"paymentId"`
}
