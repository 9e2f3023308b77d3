package postgres

import (
	"context"
	"errors"
	"time"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/core/datamodel/order"
	orderPkg "github.com/frahmantamala/settlement/internal/order"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository implements orderPkg.Repository using GORM
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *OrderRepository) CreateIfAbsent(ctx context.Context, o *order.Order) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_session_id"}},
			DoNothing: true,
		}).
		Create(o)
	return res.RowsAffected > 0, res.Error
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *OrderRepository) LockByID(ctx context.Context, id int64) (*order.Order, error) {
	return r.first(r.locked(ctx).Where("id = ?", id))
}

func (r *OrderRepository) LockBySessionID(ctx context.Context, sessionID string) (*order.Order, error) {
	return r.first(r.locked(ctx).Where("provider_session_id = ?", sessionID))
}

func (r *OrderRepository) LockByPaymentID(ctx context.Context, paymentID string) (*order.Order, error) {
	return r.first(r.locked(ctx).Where("provider_payment_id = ?", paymentID))
}

// UpdateStatus moves the row only while it still holds from, so two writers
// racing past the row lock cannot both apply the same transition.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, from, to order.Status, upd orderPkg.StatusUpdate) (bool, error) {
	at := upd.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": at,
	}
	switch to {
	case order.StatusPaid:
		updates["paid_at"] = at
		if upd.PaidAmount != nil {
			updates["paid_amount"] = *upd.PaidAmount
		}
	case order.StatusCancelled:
		updates["cancelled_at"] = at
	case order.StatusRefunded:
		updates["refunded_at"] = at
	}

	q := r.db.WithContext(ctx).Model(&order.Order{}).Where("id = ? AND status = ?", id, from)
	if upd.ProviderPaymentID != "" {
		updates["provider_payment_id"] = gorm.Expr("COALESCE(provider_payment_id, ?)", upd.ProviderPaymentID)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *OrderRepository) locked(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *OrderRepository) first(q *gorm.DB) (*order.Order, error) {
	var o order.Order
	if err := q.First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

// OrderItemRepository implements orderPkg.ItemRepository using GORM
type OrderItemRepository struct {
	db *gorm.DB
}

func NewOrderItemRepository(db *gorm.DB) *OrderItemRepository {
	return &OrderItemRepository{db: db}
}

func (r *OrderItemRepository) CreateBatch(ctx context.Context, items []order.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *OrderItemRepository) ListByOrder(ctx context.Context, orderID int64) ([]order.OrderItem, error) {
	var items []order.OrderItem
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&items).Error
	return items, err
}
