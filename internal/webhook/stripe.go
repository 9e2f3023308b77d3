package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/checkout"
	"github.com/frahmantamala/settlement/internal/core/datamodel/webhooklog"
	orderPkg "github.com/frahmantamala/settlement/internal/order"
	"github.com/frahmantamala/settlement/internal/transport"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v75"
	stripewebhook "github.com/stripe/stripe-go/v75/webhook"
)

const (
	SignatureHeader = "Stripe-Signature"
	testEventPrefix = "evt_test_"
)

// Stripe event types this service reacts to.
const (
	EventSessionCompleted      = "checkout.session.completed"
	EventSessionAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventSessionAsyncFailed    = "checkout.session.async_payment_failed"
	EventSessionExpired        = "checkout.session.expired"
	EventChargeRefunded        = "charge.refunded"
)

type StripeConfig struct {
	WebhookSecret string
	Tolerance     time.Duration
	// AllowTestEvents acknowledges unsigned evt_test_ payloads. It is ignored in production.
	AllowTestEvents bool
	Env             string
	Currency        string
}

func (c StripeConfig) testEventsAllowed() bool {
	return c.AllowTestEvents && c.Env != errs.EnvProduction
}

type StripeHandler struct {
	*transport.BaseHandler
	cfg     StripeConfig
	orders  EventApplier
	journal *journal
}

func NewStripeHandler(cfg StripeConfig, orders EventApplier, logs LogRepository, dedupe Deduper, lg *slog.Logger) *StripeHandler {
	base := transport.NewBaseHandler(lg)
	if dedupe == nil {
		dedupe = NopDeduper{}
	}
	return &StripeHandler{
		BaseHandler: base,
		cfg:         cfg,
		orders:      orders,
		journal:     &journal{logs: logs, dedupe: dedupe, logger: base.Logger, now: time.Now},
	}
}

func (h *StripeHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		h.Logger.Warn("stripe webhook: unreadable body", "error", err)
		h.HandleServiceError(w, errs.ErrMalformedPayload.WithMessage("webhook body is unreadable or too large"))
		return
	}

	evt, err := stripewebhook.ConstructEventWithOptions(body, r.Header.Get(SignatureHeader), h.cfg.WebhookSecret,
		stripewebhook.ConstructEventOptions{
			Tolerance:                h.cfg.Tolerance,
			IgnoreAPIVersionMismatch: true,
		})
	if err != nil {
		if id, ok := h.testEventID(body); ok {
			h.Logger.Info("stripe webhook: unsigned test event acknowledged", "event_id", id)
			h.WriteJSON(w, http.StatusOK, ackResponse{Status: "ignored", Outcome: "test_event"})
			return
		}
		h.Logger.Warn("stripe webhook: signature verification failed",
			"error", err,
			"remote_addr", r.RemoteAddr)
		h.HandleServiceError(w, errs.ErrInvalidSignature)
		return
	}

	ctx := r.Context()
	eventType := string(evt.Type)
	log := h.Logger.With("event_id", evt.ID, "event_type", eventType)

	if h.journal.seen(ctx, webhooklog.ProviderStripe, evt.ID) {
		log.Info("stripe webhook: delivery already processed")
		h.WriteJSON(w, http.StatusOK, ackResponse{Status: "duplicate"})
		return
	}

	entry := h.journal.open(ctx, webhooklog.ProviderStripe, evt.ID, eventType, body)
	outcome, procErr := h.dispatch(ctx, log, evt)
	h.journal.close(ctx, entry, evt.ID, procErr)

	if procErr != nil {
		log.Error("stripe webhook: processing failed", "error", procErr)
		h.HandleServiceError(w, procErr)
		return
	}

	log.Info("stripe webhook processed", "outcome", outcome)
	h.WriteJSON(w, http.StatusOK, ackResponse{Status: "accepted", Outcome: outcome})
}

// testEventID recognizes the unsigned test payloads accepted outside production.
func (h *StripeHandler) testEventID(body []byte) (string, bool) {
	if !h.cfg.testEventsAllowed() {
		return "", false
	}
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return "", false
	}
	return probe.ID, strings.HasPrefix(probe.ID, testEventPrefix)
}

func (h *StripeHandler) dispatch(ctx context.Context, log *slog.Logger, evt stripe.Event) (string, error) {
	if evt.Data == nil {
		return "", errs.ErrMalformedPayload.WithMessage("event has no data")
	}

	switch string(evt.Type) {
	case EventSessionCompleted, EventSessionAsyncSucceeded:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
			return "", errs.ErrMalformedPayload.WithCause(err)
		}
		if string(evt.Type) == EventSessionCompleted && sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			// delayed methods report completion before the money arrives
			log.Info("checkout session completed but not yet paid", "session_id", sess.ID, "payment_status", sess.PaymentStatus)
			return "awaiting_payment", nil
		}
		return h.sessionPaid(ctx, log, &sess)

	case EventSessionAsyncFailed, EventSessionExpired:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
			return "", errs.ErrMalformedPayload.WithCause(err)
		}
		return h.apply(ctx, orderPkg.Event{
			Kind:              orderPkg.EventCancelled,
			Rail:              orderPkg.RailStripe,
			ProviderSessionID: sess.ID,
		})

	case EventChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &ch); err != nil {
			return "", errs.ErrMalformedPayload.WithCause(err)
		}
		if ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
			log.Warn("refunded charge has no payment intent", "charge_id", ch.ID)
			return "ignored", nil
		}
		if !ch.Refunded {
			log.Info("partial refund left order unchanged", "charge_id", ch.ID, "amount_refunded", ch.AmountRefunded)
			return "partial_refund", nil
		}
		return h.apply(ctx, orderPkg.Event{
			Kind:              orderPkg.EventRefunded,
			Rail:              orderPkg.RailStripe,
			ProviderPaymentID: ch.PaymentIntent.ID,
		})
	}

	log.Debug("stripe event type not handled")
	return "ignored", nil
}

func (h *StripeHandler) sessionPaid(ctx context.Context, log *slog.Logger, sess *stripe.CheckoutSession) (string, error) {
	meta, err := checkout.DecodeMetadata(sess.Metadata)
	if err != nil {
		return "", err
	}
	if meta.Env != "" && meta.Env != h.cfg.Env {
		log.Warn("checkout session belongs to another environment, discarding",
			"session_id", sess.ID,
			"session_env", meta.Env,
			"env", h.cfg.Env)
		return "env_mismatch", nil
	}

	currency := string(sess.Currency)
	if currency == "" {
		currency = h.cfg.Currency
	}
	draft, err := meta.DraftOrder(sess.ID, currency, time.Now().UTC())
	if err != nil {
		return "", err
	}

	evt := orderPkg.Event{
		Kind:  orderPkg.EventSucceeded,
		Rail:  orderPkg.RailStripe,
		Draft: draft,
	}
	if sess.PaymentIntent != nil {
		evt.ProviderPaymentID = sess.PaymentIntent.ID
	}
	if sess.AmountTotal > 0 {
		paid := decimal.New(sess.AmountTotal, -2)
		evt.PaidAmount = &paid
	}
	return h.apply(ctx, evt)
}

func (h *StripeHandler) apply(ctx context.Context, evt orderPkg.Event) (string, error) {
	res, err := h.orders.Apply(ctx, evt)
	if err != nil {
		var appErr *errs.AppError
		if errors.As(err, &appErr) {
			return "", err
		}
		return "", errs.NewInternalError("failed to apply payment event", err)
	}
	return string(res.Outcome), nil
}
