package postgres

import (
	"context"
	"errors"
	"time"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/core/datamodel/proof"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProofRepository implements order.ProofRepository using GORM
type ProofRepository struct {
	db *gorm.DB
}

func NewProofRepository(db *gorm.DB) *ProofRepository {
	return &ProofRepository{db: db}
}

func (r *ProofRepository) Create(ctx context.Context, p *proof.PaymentProof) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *ProofRepository) GetByID(ctx context.Context, id int64) (*proof.PaymentProof, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *ProofRepository) LockByID(ctx context.Context, id int64) (*proof.PaymentProof, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *ProofRepository) MarkReviewed(ctx context.Context, id int64, status proof.Status, reviewerID string, at time.Time, notes string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&proof.PaymentProof{}).
		Where("id = ? AND status = ?", id, proof.StatusPending).
		Updates(map[string]interface{}{
			"status":       status,
			"reviewer_id":  reviewerID,
			"reviewed_at":  at,
			"review_notes": notes,
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// List returns proofs oldest first, optionally filtered by status.
func (r *ProofRepository) List(ctx context.Context, status proof.Status, limit, offset int) ([]proof.PaymentProof, error) {
	q := r.db.WithContext(ctx).Model(&proof.PaymentProof{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var proofs []proof.PaymentProof
	err := q.Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&proofs).Error
	return proofs, err
}

func (r *ProofRepository) first(q *gorm.DB) (*proof.PaymentProof, error) {
	var p proof.PaymentProof
	if err := q.First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrProofNotFound
		}
		return nil, err
	}
	return &p, nil
}
