package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/core/datamodel/mercadopago"
	paymentgatewaytypes "github.com/frahmantamala/settlement/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/settlement/internal/core/datamodel/webhooklog"
	orderPkg "github.com/frahmantamala/settlement/internal/order"
	"github.com/frahmantamala/settlement/internal/transport"
)

type PaymentFetcher interface {
	GetPayment(ctx context.Context, paymentID string) (*paymentgatewaytypes.Payment, error)
}

// MirrorWriter records provider states that do not move the order.
type MirrorWriter interface {
	ApplyPayment(ctx context.Context, orderID int64, upd orderPkg.MercadoPagoUpdate) error
}

// notification is the body Mercado Pago posts. data.id arrives as a string or a number.
type notification struct {
	ID     json.RawMessage `json:"id"`
	Type   string          `json:"type"`
	Action string          `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

type MercadoPagoHandler struct {
	*transport.BaseHandler
	payments PaymentFetcher
	orders   EventApplier
	mirror   MirrorWriter
	journal  *journal
}

func NewMercadoPagoHandler(payments PaymentFetcher, orders EventApplier, mirror MirrorWriter, logs LogRepository, dedupe Deduper, lg *slog.Logger) *MercadoPagoHandler {
	base := transport.NewBaseHandler(lg)
	if dedupe == nil {
		dedupe = NopDeduper{}
	}
	return &MercadoPagoHandler{
		BaseHandler: base,
		payments:    payments,
		orders:      orders,
		mirror:      mirror,
		journal:     &journal{logs: logs, dedupe: dedupe, logger: base.Logger, now: time.Now},
	}
}

func (h *MercadoPagoHandler) HandleMercadoPago(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		h.Logger.Warn("mercadopago webhook: unreadable body", "error", err)
		h.HandleServiceError(w, errs.ErrMalformedPayload.WithMessage("webhook body is unreadable or too large"))
		return
	}

	topic, paymentID, err := parseNotification(body, r)
	if err != nil {
		h.Logger.Warn("mercadopago webhook: malformed notification", "error", err)
		h.HandleServiceError(w, err)
		return
	}
	if topic != "payment" {
		h.Logger.Debug("mercadopago webhook: topic not handled", "topic", topic)
		h.WriteJSON(w, http.StatusOK, ackResponse{Status: "ignored"})
		return
	}

	ctx := r.Context()
	log := h.Logger.With("payment_id", paymentID)
	entry := h.journal.open(ctx, webhooklog.ProviderMercadoPago, paymentID, topic, body)

	// the notification is only a pointer; the payment is re-read from the provider
	payment, err := h.payments.GetPayment(ctx, paymentID)
	if errors.Is(err, errs.ErrProviderNotFound) {
		log.Warn("mercadopago webhook: payment unknown to provider, discarding")
		h.journal.close(ctx, entry, "", nil)
		h.WriteJSON(w, http.StatusOK, ackResponse{Status: "ignored", Outcome: "payment_not_found"})
		return
	}
	if err != nil {
		log.Error("mercadopago webhook: payment lookup failed", "error", err)
		h.journal.close(ctx, entry, "", err)
		h.WriteJSON(w, http.StatusInternalServerError, errs.Response{Error: errs.ErrProviderUnavailable})
		return
	}

	dedupeID := paymentID + ":" + payment.Status
	if h.journal.seen(ctx, webhooklog.ProviderMercadoPago, dedupeID) {
		log.Info("mercadopago webhook: payment state already processed", "status", payment.Status)
		h.journal.close(ctx, entry, "", nil)
		h.WriteJSON(w, http.StatusOK, ackResponse{Status: "duplicate"})
		return
	}

	outcome, procErr := h.process(ctx, log, payment)
	h.journal.close(ctx, entry, dedupeID, procErr)
	if procErr != nil {
		log.Error("mercadopago webhook: processing failed", "error", procErr)
		h.HandleServiceError(w, procErr)
		return
	}

	log.Info("mercadopago webhook processed", "status", payment.Status, "outcome", outcome)
	h.WriteJSON(w, http.StatusOK, ackResponse{Status: "accepted", Outcome: outcome})
}

func (h *MercadoPagoHandler) process(ctx context.Context, log *slog.Logger, p *paymentgatewaytypes.Payment) (string, error) {
	orderID, err := strconv.ParseInt(strings.TrimSpace(p.ExternalReference), 10, 64)
	if err != nil || orderID <= 0 {
		log.Warn("payment carries no order reference, discarding", "external_reference", p.ExternalReference)
		return "ignored", nil
	}

	upd := orderPkg.MercadoPagoUpdate{
		PaymentID:    strconv.FormatInt(p.ID, 10),
		Status:       p.Status,
		StatusDetail: p.StatusDetail,
		PayerEmail:   p.Payer.Email,
	}
	if p.TransactionAmount.IsPositive() {
		amount := p.TransactionAmount
		upd.PaidAmount = &amount
	}

	kind, moves := MapPaymentStatus(p.Status)
	if !moves {
		if err := h.mirror.ApplyPayment(ctx, orderID, upd); err != nil {
			return "", errs.NewInternalError("failed to record mercadopago payment", err)
		}
		return "recorded", nil
	}

	evt := orderPkg.Event{
		Kind:              kind,
		Rail:              orderPkg.RailMercadoPago,
		OrderID:           orderID,
		ProviderPaymentID: upd.PaymentID,
		MercadoPago:       &upd,
	}
	if kind == orderPkg.EventSucceeded {
		evt.PaidAmount = upd.PaidAmount
	}

	res, err := h.orders.Apply(ctx, evt)
	if err != nil {
		return "", errs.NewInternalError("failed to apply payment event", err)
	}
	return string(res.Outcome), nil
}

// MapPaymentStatus translates a provider payment status into an order event.
// Statuses that do not end the payment report false. A rejected attempt is one
// of them: the payer may retry on the same preference with another card.
func MapPaymentStatus(status string) (orderPkg.EventKind, bool) {
	switch status {
	case mercadopago.StatusApproved:
		return orderPkg.EventSucceeded, true
	case mercadopago.StatusCancelled:
		return orderPkg.EventCancelled, true
	case mercadopago.StatusRefunded, mercadopago.StatusChargedBack:
		return orderPkg.EventRefunded, true
	}
	return "", false
}

// parseNotification accepts the JSON body or the legacy query-string form
// (?type=payment&data.id=1 or ?topic=payment&id=1).
func parseNotification(body []byte, r *http.Request) (topic, paymentID string, err error) {
	if len(bytes.TrimSpace(body)) > 0 {
		var n notification
		if err := json.Unmarshal(body, &n); err != nil {
			return "", "", errs.ErrMalformedPayload.WithCause(err)
		}
		topic = n.Type
		paymentID = rawID(n.Data.ID)
	}

	q := r.URL.Query()
	if topic == "" {
		topic = firstNonEmpty(q.Get("type"), q.Get("topic"))
	}
	if paymentID == "" {
		paymentID = firstNonEmpty(q.Get("data.id"), q.Get("id"))
	}

	if topic == "" {
		return "", "", errs.ErrMalformedPayload.WithMessage("notification has no type")
	}
	if topic == "payment" {
		if _, err := strconv.ParseInt(paymentID, 10, 64); err != nil {
			return "", "", errs.ErrMalformedPayload.WithMessage("notification has no valid payment id")
		}
	}
	return topic, paymentID, nil
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
