package paymentgateway

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type PreferenceItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	CurrencyID string  `json:"currency_id"`
	UnitPrice  float64 `json:"unit_price"`
}

type BackURLs struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
	Pending string `json:"pending,omitempty"`
}

type Payer struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type PreferenceRequest struct {
	Items             []PreferenceItem `json:"items"`
	Payer             *Payer           `json:"payer,omitempty"`
	ExternalReference string           `json:"external_reference"`
	NotificationURL   string           `json:"notification_url,omitempty"`
	BackURLs          *BackURLs        `json:"back_urls,omitempty"`
	AutoReturn        string           `json:"auto_return,omitempty"`
}

func (r *PreferenceRequest) Validate() error {
	if r.ExternalReference == "" {
		return errors.New("external_reference is required")
	}
	if len(r.Items) == 0 {
		return errors.New("at least one item is required")
	}
	for _, it := range r.Items {
		if it.Quantity <= 0 {
			return errors.New("item quantity must be greater than 0")
		}
		if it.UnitPrice <= 0 {
			return errors.New("item unit_price must be greater than 0")
		}
	}
	return nil
}

type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// Payment is the authoritative payment record fetched back from the provider.
type Payment struct {
	ID                int64           `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	ExternalReference string          `json:"external_reference"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	CurrencyID        string          `json:"currency_id"`
	DateApproved      *time.Time      `json:"date_approved"`
	Payer             Payer           `json:"payer"`
}
