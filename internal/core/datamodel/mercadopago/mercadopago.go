package mercadopago

import (
	"time"

	"github.com/shopspring/decimal"
)

// Provider payment statuses, mirrored verbatim.
const (
	StatusPending     = "pending"
	StatusApproved    = "approved"
	StatusAuthorized  = "authorized"
	StatusInProcess   = "in_process"
	StatusInMediation = "in_mediation"
	StatusRejected    = "rejected"
	StatusCancelled   = "cancelled"
	StatusRefunded    = "refunded"
	StatusChargedBack = "charged_back"
)

type Transaction struct {
	ID           int64            `json:"id" gorm:"primaryKey"`
	PreferenceID string           `json:"preference_id" gorm:"column:preference_id;not null;uniqueIndex"`
	OrderID      int64            `json:"order_id" gorm:"column:order_id;not null;index"`
	PaymentID    *string          `json:"payment_id,omitempty" gorm:"column:payment_id;index"`
	Status       string           `json:"status" gorm:"column:status;not null;default:pending"`
	StatusDetail string           `json:"status_detail,omitempty" gorm:"column:status_detail"`
	Amount       decimal.Decimal  `json:"amount" gorm:"column:amount;type:numeric(12,2);not null"`
	PaidAmount   *decimal.Decimal `json:"paid_amount,omitempty" gorm:"column:paid_amount;type:numeric(12,2)"`
	PayerEmail   string           `json:"payer_email,omitempty" gorm:"column:payer_email"`
	InitPoint    string           `json:"init_point" gorm:"column:init_point"`
	CreatedAt    time.Time        `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time        `json:"updated_at" gorm:"column:updated_at"`
}

func (Transaction) TableName() string {
	return "mercadopago_transactions"
}
