package models

import (
	"time"
)

// Balance is a requester's quota for one leave category, in days.
type Balance struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	OwnerID   uint      `gorm:"not null;uniqueIndex:idx_balance_owner_category" json:"owner_id"`
	Category  string    `gorm:"not null;size:30;uniqueIndex:idx_balance_owner_category" json:"category"`
	Total     float64   `gorm:"not null;default:0" json:"total"`
	Used      float64   `gorm:"not null;default:0" json:"used"`
}

func (b *Balance) Remaining() float64 {
	return b.Total - b.Used
}

// BalanceEntry records that a request's approval was charged to a balance.
// RequestID is unique so a request is charged at most once.
type BalanceEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	RequestID uint      `gorm:"not null;uniqueIndex" json:"request_id"`
	OwnerID   uint      `gorm:"not null;index" json:"owner_id"`
	Category  string    `gorm:"not null;size:30" json:"category"`
	Amount    float64   `gorm:"not null" json:"amount"`
}
