package postgres

import (
	"context"
	"errors"
	"time"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/core/datamodel/pix"
	"gorm.io/gorm"
)

// PixRepository implements order.PixRepository using GORM
type PixRepository struct {
	db *gorm.DB
}

func NewPixRepository(db *gorm.DB) *PixRepository {
	return &PixRepository{db: db}
}

func (r *PixRepository) Create(ctx context.Context, t *pix.Transaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *PixRepository) GetByTxID(ctx context.Context, txid string) (*pix.Transaction, error) {
	var t pix.Transaction
	err := r.db.WithContext(ctx).Where("txid = ?", txid).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrPixNotFound
		}
		return nil, err
	}
	return &t, nil
}

// SettlePending only touches pending rows; paid and expired are terminal.
func (r *PixRepository) SettlePending(ctx context.Context, orderID int64, status pix.Status, at time.Time) (int64, error) {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": at,
	}
	if status == pix.StatusPaid {
		updates["paid_at"] = at
	}

	res := r.db.WithContext(ctx).
		Model(&pix.Transaction{}).
		Where("order_id = ? AND status = ?", orderID, pix.StatusPending).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *PixRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&pix.Transaction{}).
		Where("status = ? AND expires_at <= ?", pix.StatusPending, now).
		Updates(map[string]interface{}{
			"status":     pix.StatusExpired,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}
