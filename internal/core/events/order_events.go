package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeOrderPaid      = "order.paid"
	EventTypeOrderCancelled = "order.cancelled"
	EventTypeOrderRefunded  = "order.refunded"
	EventTypeProofSubmitted = "proof.submitted"
	EventTypeProofReviewed  = "proof.reviewed"
)

type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID       int64  `json:"order_id"`
	UserID        string `json:"user_id"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	Total         string `json:"total"`
	Granted       int    `json:"granted"`
}

func NewOrderStatusChangedEvent(eventType string, orderID int64, userID, status, paymentMethod, total string, granted int) *OrderStatusChangedEvent {
	return &OrderStatusChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"order_id":       orderID,
				"user_id":        userID,
				"status":         status,
				"payment_method": paymentMethod,
				"total":          total,
				"granted":        granted,
			},
		},
		OrderID:       orderID,
		UserID:        userID,
		Status:        status,
		PaymentMethod: paymentMethod,
		Total:         total,
		Granted:       granted,
	}
}

type ProofEvent struct {
	BaseEvent
	ProofID    int64  `json:"proof_id"`
	OrderID    int64  `json:"order_id"`
	Status     string `json:"status"`
	ReviewerID string `json:"reviewer_id,omitempty"`
}

func NewProofEvent(eventType string, proofID, orderID int64, status, reviewerID string) *ProofEvent {
	return &ProofEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"proof_id":    proofID,
				"order_id":    orderID,
				"status":      status,
				"reviewer_id": reviewerID,
			},
		},
		ProofID:    proofID,
		OrderID:    orderID,
		Status:     status,
		ReviewerID: reviewerID,
	}
}
