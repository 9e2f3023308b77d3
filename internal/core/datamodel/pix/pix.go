package pix

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

type Transaction struct {
	ID        int64           `json:"id" gorm:"primaryKey"`
	TxID      string          `json:"txid" gorm:"column:txid;not null;uniqueIndex"`
	OrderID   int64           `json:"order_id" gorm:"column:order_id;not null;index"`
	UserID    string          `json:"user_id" gorm:"column:user_id;not null"`
	Payload   string          `json:"payload" gorm:"column:payload;not null"`
	Amount    decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(12,2);not null"`
	Status    Status          `json:"status" gorm:"column:status;not null;default:pending"`
	ExpiresAt time.Time       `json:"expires_at" gorm:"column:expires_at;not null;index"`
	PaidAt    *time.Time      `json:"paid_at,omitempty" gorm:"column:paid_at"`
	CreatedAt time.Time       `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"column:updated_at"`
}

func (Transaction) TableName() string {
	return "pix_transactions"
}

func (t *Transaction) IsExpired(now time.Time) bool {
	return t.Status == StatusPending && !now.Before(t.ExpiresAt)
}
