package domain

import (
	"time"
)

// OrderJournalEntry is the persisted record of one order submission outcome.
type OrderJournalEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"index" json:"stock_code"`
	Exchange  string    `json:"exchange_code"`
	Action    string    `json:"action"`
	OrderType string    `json:"order_type"`
	Quantity  int       `json:"quantity"`
	Price     string    `json:"price"`
	Strike    int       `json:"strike_price"`
	Right     string    `json:"right"`
	Expiry    string    `json:"expiry_date"`
	Remark    string    `json:"user_remark"`
	OrderID   string    `gorm:"index" json:"order_id"`
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	CreatedAt time.Time `json:"created_at"`
}
