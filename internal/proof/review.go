package proof

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/core/common/validation"
	"github.com/frahmantamala/settlement/internal/core/datamodel/proof"
	"github.com/frahmantamala/settlement/internal/core/events"
	orderPkg "github.com/frahmantamala/settlement/internal/order"
	"github.com/frahmantamala/settlement/pkg/logger"
	"github.com/microcosm-cc/bluemonday"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Settler applies a payment event inside an open transaction.
type Settler interface {
	ApplyInTx(ctx context.Context, r orderPkg.TxRepos, evt orderPkg.Event) (orderPkg.Result, error)
	Announce(ctx context.Context, res orderPkg.Result)
}

type Reviewer struct {
	tx        orderPkg.TransactionManager
	settler   Settler
	bus       events.Publisher
	sanitizer *bluemonday.Policy
	logger    *slog.Logger
	now       func() time.Time
}

func NewReviewer(tx orderPkg.TransactionManager, settler Settler, bus events.Publisher, logger *slog.Logger) *Reviewer {
	return &Reviewer{
		tx:        tx,
		settler:   settler,
		bus:       bus,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
		now:       time.Now,
	}
}

type Decision struct {
	Proof  *proof.PaymentProof `json:"proof"`
	Result orderPkg.Outcome    `json:"orderOutcome,omitempty"`
}

// Approve settles the proof's order through the manual rail. The proof and the
// order move in the same transaction.
func (s *Reviewer) Approve(ctx context.Context, proofID int64, reviewerID, notes string) (*Decision, error) {
	notes = strings.TrimSpace(s.sanitizer.Sanitize(notes))
	if verr := validation.ValidateReviewNotes(notes); verr != nil {
		return nil, verr
	}

	log := logger.FromOr(ctx, s.logger).With("proof_id", proofID, "reviewer_id", reviewerID)

	var (
		p   *proof.PaymentProof
		res orderPkg.Result
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, r orderPkg.TxRepos) error {
		var err error
		p, err = s.lockPending(ctx, r, proofID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		moved, err := r.Proofs().MarkReviewed(ctx, p.ID, proof.StatusApproved, reviewerID, now, notes)
		if err != nil {
			return errs.NewInternalError("failed to update proof", err)
		}
		if !moved {
			return errs.ErrAlreadyReviewed
		}
		markReviewed(p, proof.StatusApproved, reviewerID, notes, now)

		amount := p.DeclaredAmount
		res, err = s.settler.ApplyInTx(ctx, r, orderPkg.Event{
			Kind:              orderPkg.EventSucceeded,
			Rail:              orderPkg.RailManual,
			OrderID:           p.OrderID,
			ProviderPaymentID: "proof:" + strconv.FormatInt(p.ID, 10),
			PaidAmount:        &amount,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if res.Outcome != orderPkg.OutcomeApplied {
		// the order was settled or cancelled some other way; the approval still stands
		log.Warn("proof approved without moving its order", "order_id", p.OrderID, "outcome", res.Outcome)
	}
	log.Info("payment proof approved", "order_id", p.OrderID, "granted", res.Granted)

	s.settler.Announce(ctx, res)
	s.publish(ctx, p, reviewerID)

	return &Decision{Proof: p, Result: res.Outcome}, nil
}

// Reject closes the proof and leaves the order pending so the buyer can try again.
func (s *Reviewer) Reject(ctx context.Context, proofID int64, reviewerID, notes string) (*Decision, error) {
	notes = strings.TrimSpace(s.sanitizer.Sanitize(notes))
	if notes == "" {
		return nil, errs.ErrReviewNotesRequired
	}
	if verr := validation.ValidateReviewNotes(notes); verr != nil {
		return nil, verr
	}

	var p *proof.PaymentProof
	err := s.tx.WithinTx(ctx, func(ctx context.Context, r orderPkg.TxRepos) error {
		var err error
		p, err = s.lockPending(ctx, r, proofID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		moved, err := r.Proofs().MarkReviewed(ctx, p.ID, proof.StatusRejected, reviewerID, now, notes)
		if err != nil {
			return errs.NewInternalError("failed to update proof", err)
		}
		if !moved {
			return errs.ErrAlreadyReviewed
		}
		markReviewed(p, proof.StatusRejected, reviewerID, notes, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromOr(ctx, s.logger).Info("payment proof rejected",
		"proof_id", p.ID,
		"order_id", p.OrderID,
		"reviewer_id", reviewerID)

	s.publish(ctx, p, reviewerID)
	return &Decision{Proof: p}, nil
}

func (s *Reviewer) List(ctx context.Context, status proof.Status, limit, offset int) ([]proof.PaymentProof, error) {
	switch status {
	case "", proof.StatusPending, proof.StatusApproved, proof.StatusRejected:
	default:
		return nil, errs.NewValidationFieldError("status", "status must be pending, approved or rejected", errs.ErrCodeValidationFailed)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset = max(offset, 0)

	proofs, err := s.tx.Repos().Proofs().List(ctx, status, limit, offset)
	if err != nil {
		s.logger.Error("List: failed to list proofs", "error", err)
		return nil, errs.NewInternalError("failed to list proofs", err)
	}
	return proofs, nil
}

func (s *Reviewer) lockPending(ctx context.Context, r orderPkg.TxRepos, proofID int64) (*proof.PaymentProof, error) {
	p, err := r.Proofs().LockByID(ctx, proofID)
	if err != nil {
		return nil, err
	}
	if p.Status != proof.StatusPending {
		return nil, errs.ErrAlreadyReviewed
	}
	return p, nil
}

func markReviewed(p *proof.PaymentProof, status proof.Status, reviewerID, notes string, at time.Time) {
	p.Status = status
	p.ReviewerID = &reviewerID
	p.ReviewedAt = &at
	p.ReviewNotes = notes
	p.UpdatedAt = at
}

func (s *Reviewer) publish(ctx context.Context, p *proof.PaymentProof, reviewerID string) {
	if s.bus == nil {
		return
	}
	evt := events.NewProofEvent(events.EventTypeProofReviewed, p.ID, p.OrderID, string(p.Status), reviewerID)
	if err := s.bus.Publish(ctx, evt); err != nil {
		logger.FromOr(ctx, s.logger).Error("failed to publish proof event", "error", err, "proof_id", p.ID)
	}
}
