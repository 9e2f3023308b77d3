package proof

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

const (
	MethodPix          = "pix"
	MethodBankTransfer = "bank_transfer"
	MethodDeposit      = "deposit"
	MethodOther        = "other"
)

type PaymentProof struct {
	ID             int64           `json:"id" gorm:"primaryKey"`
	OrderID        int64           `json:"order_id" gorm:"column:order_id;not null;index"`
	UserID         string          `json:"user_id" gorm:"column:user_id;not null;index"`
	FileKey        string          `json:"file_key" gorm:"column:file_key;not null"`
	FileName       string          `json:"file_name" gorm:"column:file_name"`
	FileSize       int64           `json:"file_size" gorm:"column:file_size;not null"`
	MimeType       string          `json:"mime_type" gorm:"column:mime_type;not null"`
	DeclaredMethod string          `json:"declared_method" gorm:"column:declared_method;not null"`
	DeclaredAt     time.Time       `json:"declared_at" gorm:"column:declared_at;not null"`
	DeclaredAmount decimal.Decimal `json:"declared_amount" gorm:"column:declared_amount;type:numeric(12,2);not null"`
	Notes          string          `json:"notes,omitempty" gorm:"column:notes"`
	Status         Status          `json:"status" gorm:"column:status;not null;default:pending;index"`
	ReviewerID     *string         `json:"reviewer_id,omitempty" gorm:"column:reviewer_id"`
	ReviewedAt     *time.Time      `json:"reviewed_at,omitempty" gorm:"column:reviewed_at"`
	ReviewNotes    string          `json:"review_notes,omitempty" gorm:"column:review_notes"`
	CreatedAt      time.Time       `json:"created_at" gorm:"column:created_at"`
	UpdatedAt      time.Time       `json:"updated_at" gorm:"column:updated_at"`
}

func (PaymentProof) TableName() string {
	return "payment_proofs"
}
