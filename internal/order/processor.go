package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/core/datamodel/order"
	"github.com/frahmantamala/settlement/internal/core/datamodel/pix"
	"github.com/frahmantamala/settlement/internal/core/events"
	"github.com/frahmantamala/settlement/internal/entitlement"
	"github.com/frahmantamala/settlement/pkg/logger"
	"github.com/shopspring/decimal"
)

// Rail names the channel an event arrived through.
type Rail string

const (
	RailStripe      Rail = "stripe"
	RailMercadoPago Rail = "mercadopago"
	RailPix         Rail = "pix"
	RailManual      Rail = "manual"
)

// Event is a verified payment outcome already translated from the provider's shape.
// Exactly one correlation is used, in this order: Draft, OrderID,
// ProviderSessionID, ProviderPaymentID.
type Event struct {
	Kind EventKind
	Rail Rail

	OrderID           int64
	ProviderSessionID string
	ProviderPaymentID string
	// Draft is inserted (once per session id) when the rail persists nothing before payment.
	Draft *order.Order

	PaidAmount  *decimal.Decimal
	MercadoPago *MercadoPagoUpdate
}

type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeOrderMissing Outcome = "order_missing"
	OutcomeIllegal      Outcome = "illegal_transition"
)

type Result struct {
	Outcome Outcome
	Order   *order.Order
	From    order.Status
	To      order.Status
	Granted int
}

type Granter interface {
	Grant(ctx context.Context, repo entitlement.Repository, o *order.Order, items []order.OrderItem) (int, error)
}

type Processor struct {
	tx      TransactionManager
	granter Granter
	bus     events.Publisher
	logger  *slog.Logger
	now     func() time.Time
}

func NewProcessor(tx TransactionManager, granter Granter, bus events.Publisher, logger *slog.Logger) *Processor {
	return &Processor{
		tx:      tx,
		granter: granter,
		bus:     bus,
		logger:  logger,
		now:     time.Now,
	}
}

// Apply runs ApplyInTx in its own transaction and announces the change after commit.
func (p *Processor) Apply(ctx context.Context, evt Event) (Result, error) {
	var res Result
	err := p.tx.WithinTx(ctx, func(ctx context.Context, r TxRepos) error {
		var err error
		res, err = p.ApplyInTx(ctx, r, evt)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	p.Announce(ctx, res)
	return res, nil
}

// ApplyInTx applies evt using repositories bound to the caller's transaction.
// Illegal transitions and unknown orders are reported through Result, not as errors,
// so webhook deliveries for them are acknowledged.
func (p *Processor) ApplyInTx(ctx context.Context, r TxRepos, evt Event) (Result, error) {
	log := logger.FromOr(ctx, p.logger).With(
		"event_kind", evt.Kind,
		"rail", evt.Rail,
		"order_id", evt.OrderID,
		"provider_session_id", evt.ProviderSessionID,
		"provider_payment_id", evt.ProviderPaymentID)

	ord, err := p.resolve(ctx, r, evt)
	if errors.Is(err, errs.ErrOrderNotFound) {
		log.Warn("no order matches payment event, discarding")
		return Result{Outcome: OutcomeOrderMissing}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("resolve order: %w", err)
	}

	if evt.MercadoPago != nil {
		if err := r.MercadoPago().ApplyPayment(ctx, ord.ID, *evt.MercadoPago); err != nil {
			return Result{}, fmt.Errorf("record mercadopago payment: %w", err)
		}
	}

	res := Result{Order: ord, From: ord.Status, To: ord.Status}

	next, err := Next(ord.Status, evt.Kind)
	if errors.Is(err, ErrAlreadyApplied) {
		log.Info("payment event already applied", "status", ord.Status)
		res.Outcome = OutcomeDuplicate
		return res, nil
	}
	if err != nil {
		log.Warn("illegal order transition ignored", "status", ord.Status, "error", err)
		res.Outcome = OutcomeIllegal
		return res, nil
	}

	now := p.now().UTC()
	upd := StatusUpdate{At: now, ProviderPaymentID: evt.ProviderPaymentID, PaidAmount: evt.PaidAmount}

	moved, err := r.Orders().UpdateStatus(ctx, ord.ID, ord.Status, next, upd)
	if err != nil {
		return Result{}, fmt.Errorf("update order status: %w", err)
	}
	if !moved {
		log.Info("order moved concurrently, treating event as duplicate")
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	applyStatus(ord, next, upd)
	res.To = next
	res.Outcome = OutcomeApplied

	switch next {
	case order.StatusPaid:
		if evt.PaidAmount != nil && !evt.PaidAmount.Equal(ord.TotalAmount) {
			log.Warn("paid amount differs from order total",
				"paid_amount", evt.PaidAmount.StringFixed(2),
				"total_amount", ord.TotalAmount.StringFixed(2))
		}

		granted, err := p.settlePaid(ctx, r, ord, now)
		if err != nil {
			return Result{}, err
		}
		res.Granted = granted

	case order.StatusCancelled:
		if _, err := r.Pix().SettlePending(ctx, ord.ID, pix.StatusCancelled, now); err != nil {
			return Result{}, fmt.Errorf("cancel pix transactions: %w", err)
		}

	case order.StatusRefunded:
		// refunds keep granted access
		log.Info("order refunded, entitlements kept")
	}

	log.Info("order status changed", "from", res.From, "to", res.To, "granted", res.Granted)
	return res, nil
}

func (p *Processor) settlePaid(ctx context.Context, r TxRepos, ord *order.Order, now time.Time) (int, error) {
	snapshot, err := ord.Snapshot()
	if err != nil {
		return 0, fmt.Errorf("decode checkout snapshot: %w", err)
	}

	items := snapshot.OrderItems(ord.ID)
	if len(items) > 0 {
		if err := r.Items().CreateBatch(ctx, items); err != nil {
			return 0, fmt.Errorf("materialize order items: %w", err)
		}
	}

	if _, err := r.Pix().SettlePending(ctx, ord.ID, pix.StatusPaid, now); err != nil {
		return 0, fmt.Errorf("settle pix transactions: %w", err)
	}

	granted, err := p.granter.Grant(ctx, r.Entitlements(), ord, items)
	if err != nil {
		return 0, fmt.Errorf("grant entitlements: %w", err)
	}
	return granted, nil
}

func (p *Processor) resolve(ctx context.Context, r TxRepos, evt Event) (*order.Order, error) {
	switch {
	case evt.Draft != nil:
		if evt.Draft.ProviderSessionID == nil || *evt.Draft.ProviderSessionID == "" {
			return nil, errors.New("draft order without provider session id")
		}
		if _, err := r.Orders().CreateIfAbsent(ctx, evt.Draft); err != nil {
			return nil, fmt.Errorf("create order from checkout snapshot: %w", err)
		}
		return r.Orders().LockBySessionID(ctx, *evt.Draft.ProviderSessionID)
	case evt.OrderID != 0:
		return r.Orders().LockByID(ctx, evt.OrderID)
	case evt.ProviderSessionID != "":
		return r.Orders().LockBySessionID(ctx, evt.ProviderSessionID)
	case evt.ProviderPaymentID != "":
		return r.Orders().LockByPaymentID(ctx, evt.ProviderPaymentID)
	}
	return nil, errs.ErrOrderNotFound
}

func applyStatus(o *order.Order, to order.Status, upd StatusUpdate) {
	o.Status = to
	o.UpdatedAt = upd.At
	switch to {
	case order.StatusPaid:
		at := upd.At
		o.PaidAt = &at
		if upd.PaidAmount != nil {
			o.PaidAmount = *upd.PaidAmount
		}
	case order.StatusCancelled:
		at := upd.At
		o.CancelledAt = &at
	case order.StatusRefunded:
		at := upd.At
		o.RefundedAt = &at
	}
	if upd.ProviderPaymentID != "" && o.ProviderPaymentID == nil {
		pid := upd.ProviderPaymentID
		o.ProviderPaymentID = &pid
	}
}

// Announce publishes the status change on the event bus. Only applied results are announced.
func (p *Processor) Announce(ctx context.Context, res Result) {
	if p.bus == nil || res.Outcome != OutcomeApplied || res.Order == nil {
		return
	}

	var eventType string
	switch res.To {
	case order.StatusPaid:
		eventType = events.EventTypeOrderPaid
	case order.StatusCancelled:
		eventType = events.EventTypeOrderCancelled
	case order.StatusRefunded:
		eventType = events.EventTypeOrderRefunded
	default:
		return
	}

	evt := events.NewOrderStatusChangedEvent(eventType,
		res.Order.ID,
		res.Order.UserID,
		string(res.To),
		string(res.Order.PaymentMethod),
		res.Order.TotalAmount.StringFixed(2),
		res.Granted)

	if err := p.bus.Publish(ctx, evt); err != nil {
		logger.FromOr(ctx, p.logger).Error("failed to publish order event", "event_type", eventType, "error", err)
	}
}
