package postgres

import (
	"context"
	"errors"
	"time"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/core/datamodel/mercadopago"
	"github.com/frahmantamala/settlement/internal/order"
	"gorm.io/gorm"
)

// MercadoPagoRepository keeps the local mirror of hosted-checkout preferences.
type MercadoPagoRepository struct {
	db *gorm.DB
}

func NewMercadoPagoRepository(db *gorm.DB) *MercadoPagoRepository {
	return &MercadoPagoRepository{db: db}
}

func (r *MercadoPagoRepository) Create(ctx context.Context, t *mercadopago.Transaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *MercadoPagoRepository) GetByOrderID(ctx context.Context, orderID int64) (*mercadopago.Transaction, error) {
	var t mercadopago.Transaction
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id DESC").First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrOrderNotFound.WithMessage("no mercadopago transaction for order")
		}
		return nil, err
	}
	return &t, nil
}

func (r *MercadoPagoRepository) ApplyPayment(ctx context.Context, orderID int64, upd order.MercadoPagoUpdate) error {
	updates := map[string]interface{}{
		"status":     upd.Status,
		"updated_at": time.Now().UTC(),
	}
	if upd.PaymentID != "" {
		updates["payment_id"] = upd.PaymentID
	}
	if upd.StatusDetail != "" {
		updates["status_detail"] = upd.StatusDetail
	}
	if upd.PaidAmount != nil {
		updates["paid_amount"] = *upd.PaidAmount
	}
	if upd.PayerEmail != "" {
		updates["payer_email"] = upd.PayerEmail
	}

	return r.db.WithContext(ctx).
		Model(&mercadopago.Transaction{}).
		Where("order_id = ?", orderID).
		Updates(updates).Error
}
