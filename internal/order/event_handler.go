package order

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/settlement/internal/core/events"
)

// EventHandler writes the audit trail of settled orders and reviewed proofs.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

func (h *EventHandler) HandleOrderStatusChanged(ctx context.Context, event events.Event) error {
	evt, ok := event.(*events.OrderStatusChangedEvent)
	if !ok {
		h.logger.Error("invalid event type for order status handler", "event_type", event.EventType())
		return fmt.Errorf("expected OrderStatusChangedEvent, got %T", event)
	}

	h.logger.InfoContext(ctx, "order settled",
		"event_id", evt.EventID(),
		"event_type", evt.EventType(),
		"order_id", evt.OrderID,
		"user_id", evt.UserID,
		"status", evt.Status,
		"payment_method", evt.PaymentMethod,
		"total", evt.Total,
		"entitlements_granted", evt.Granted)
	return nil
}

func (h *EventHandler) HandleProofEvent(ctx context.Context, event events.Event) error {
	evt, ok := event.(*events.ProofEvent)
	if !ok {
		h.logger.Error("invalid event type for proof handler", "event_type", event.EventType())
		return fmt.Errorf("expected ProofEvent, got %T", event)
	}

	if evt.EventType() == events.EventTypeProofSubmitted {
		h.logger.InfoContext(ctx, "payment proof awaiting review",
			"event_id", evt.EventID(),
			"proof_id", evt.ProofID,
			"order_id", evt.OrderID)
		return nil
	}

	h.logger.InfoContext(ctx, "payment proof reviewed",
		"event_id", evt.EventID(),
		"proof_id", evt.ProofID,
		"order_id", evt.OrderID,
		"status", evt.Status,
		"reviewer_id", evt.ReviewerID)
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	orderEvents := []string{events.EventTypeOrderPaid, events.EventTypeOrderCancelled, events.EventTypeOrderRefunded}
	for _, t := range orderEvents {
		eventBus.Subscribe(t, h.HandleOrderStatusChanged)
	}
	eventBus.Subscribe(events.EventTypeProofSubmitted, h.HandleProofEvent)
	eventBus.Subscribe(events.EventTypeProofReviewed, h.HandleProofEvent)

	h.logger.Info("order event handlers registered",
		"handlers", append(orderEvents, events.EventTypeProofSubmitted, events.EventTypeProofReviewed))
}
