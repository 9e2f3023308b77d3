package pix

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/catalog"
	"github.com/frahmantamala/settlement/internal/core/datamodel/order"
	pixDatamodel "github.com/frahmantamala/settlement/internal/core/datamodel/pix"
	orderPkg "github.com/frahmantamala/settlement/internal/order"
	"github.com/shopspring/decimal"
)

type CartResolver interface {
	ResolveCart(ctx context.Context, cart catalog.Cart) (order.Snapshot, error)
}

type Config struct {
	Key          string
	MerchantName string
	MerchantCity string
	Description  string
	Currency     string
	TTL          time.Duration
}

type Service struct {
	cfg    Config
	carts  CartResolver
	tx     orderPkg.TransactionManager
	logger *slog.Logger
	now    func() time.Time
}

func NewService(cfg Config, carts CartResolver, tx orderPkg.TransactionManager, logger *slog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		carts:  carts,
		tx:     tx,
		logger: logger,
		now:    time.Now,
	}
}

type IssueRequest struct {
	Cart      catalog.Cart
	UserID    string
	UserEmail string
}

// Code is an issued static payment code and the order it pays for.
type Code struct {
	OrderID   int64               `json:"orderId"`
	TxID      string              `json:"txid"`
	Payload   string              `json:"payload"`
	Amount    decimal.Decimal     `json:"amount"`
	Status    pixDatamodel.Status `json:"status"`
	ExpiresAt time.Time           `json:"expiresAt"`
	Decoded   *Payload            `json:"decoded,omitempty"`
}

// Issue prices the cart, creates a pending pix order and stores the code
// with its expiry, all in one transaction.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*Code, error) {
	if req.UserID == "" {
		return nil, errs.ErrInvalidToken.WithMessage("user is required")
	}

	snapshot, err := s.carts.ResolveCart(ctx, req.Cart)
	if err != nil {
		return nil, err
	}
	total := snapshot.Total()

	now := s.now().UTC()
	txid := NewTxID(now)

	payload, err := Encode(Payload{
		Key:          s.cfg.Key,
		Description:  s.cfg.Description,
		Amount:       total,
		MerchantName: s.cfg.MerchantName,
		MerchantCity: s.cfg.MerchantCity,
		TxID:         txid,
	})
	if err != nil {
		s.logger.Error("Issue: failed to encode pix payload", "error", err)
		return nil, err
	}

	snapJSON, err := snapshot.JSON()
	if err != nil {
		return nil, errs.NewInternalError("failed to encode checkout snapshot", err)
	}

	code := &Code{
		TxID:      txid,
		Payload:   payload,
		Amount:    total,
		Status:    pixDatamodel.StatusPending,
		ExpiresAt: now.Add(s.cfg.TTL),
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, r orderPkg.TxRepos) error {
		o := &order.Order{
			UserID:           req.UserID,
			UserEmail:        req.UserEmail,
			Status:           order.StatusPending,
			TotalAmount:      total,
			Currency:         s.cfg.Currency,
			PaymentMethod:    order.MethodPix,
			CheckoutSnapshot: snapJSON,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := r.Orders().Create(ctx, o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		t := &pixDatamodel.Transaction{
			TxID:      txid,
			OrderID:   o.ID,
			UserID:    req.UserID,
			Payload:   payload,
			Amount:    total,
			Status:    pixDatamodel.StatusPending,
			ExpiresAt: code.ExpiresAt,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := r.Pix().Create(ctx, t); err != nil {
			return fmt.Errorf("create pix transaction: %w", err)
		}

		code.OrderID = o.ID
		return nil
	})
	if err != nil {
		s.logger.Error("Issue: failed to persist pix code", "error", err, "user_id", req.UserID)
		return nil, errs.NewInternalError("failed to issue pix code", err)
	}

	s.logger.Info("pix code issued",
		"order_id", code.OrderID,
		"txid", txid,
		"amount", total.StringFixed(2),
		"expires_at", code.ExpiresAt)

	return code, nil
}

// Get returns the stored code for its owner. A pending code past its expiry
// is reported as expired even before the sweep flips the row.
func (s *Service) Get(ctx context.Context, txid, userID string) (*Code, error) {
	t, err := s.tx.Repos().Pix().GetByTxID(ctx, txid)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, errs.ErrPixNotFound
	}

	decoded, err := Decode(t.Payload)
	if err != nil {
		s.logger.Error("Get: stored pix payload does not decode", "error", err, "txid", txid)
		return nil, errs.NewInternalError("stored pix payload is corrupt", err)
	}

	status := t.Status
	if t.IsExpired(s.now()) {
		status = pixDatamodel.StatusExpired
	}

	return &Code{
		OrderID:   t.OrderID,
		TxID:      t.TxID,
		Payload:   t.Payload,
		Amount:    t.Amount,
		Status:    status,
		ExpiresAt: t.ExpiresAt,
		Decoded:   &decoded,
	}, nil
}

// SweepExpired flips every pending code past its expiry. Safe to run from
// several workers at once; each row is updated by exactly one of them.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.tx.Repos().Pix().ExpirePending(ctx, now.UTC())
	if err != nil {
		s.logger.Error("SweepExpired: failed", "error", err)
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired pix codes", "count", n)
	}
	return n, nil
}
