package proof

import (
	"strings"
	"time"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/shopspring/decimal"
)

// DeclarationForm holds the non-file multipart fields of a proof upload.
type DeclarationForm struct {
	Method string
	PaidAt string
	Amount string
	Notes  string
}

func (f DeclarationForm) Parse() (method string, paidAt time.Time, amount decimal.Decimal, err error) {
	method = strings.TrimSpace(f.Method)

	if f.PaidAt != "" {
		paidAt, err = time.Parse(time.RFC3339, f.PaidAt)
		if err != nil {
			return "", time.Time{}, decimal.Zero, errs.NewValidationFieldError("paidAt", "paidAt must be an RFC3339 timestamp", errs.ErrCodeInvalidDate)
		}
	}

	amount, err = decimal.NewFromString(strings.TrimSpace(f.Amount))
	if err != nil {
		return "", time.Time{}, decimal.Zero, errs.NewValidationFieldError("amount", "amount must be a decimal number", errs.ErrCodeInvalidAmount)
	}
	return method, paidAt, amount.Round(2), nil
}

type ReviewDTO struct {
	Notes string `json:"notes"`
}
