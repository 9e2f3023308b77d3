package webhooklog

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ProviderStripe      = "stripe"
	ProviderMercadoPago = "mercadopago"
)

// Log is append-only; only Processed, Error and ProcessedAt change after insert.
type Log struct {
	ID          int64          `json:"id" gorm:"primaryKey"`
	Provider    string         `json:"provider" gorm:"column:provider;not null;index:idx_webhook_logs_event,priority:1"`
	EventID     string         `json:"event_id" gorm:"column:event_id;index:idx_webhook_logs_event,priority:2"`
	EventType   string         `json:"event_type" gorm:"column:event_type"`
	Payload     datatypes.JSON `json:"payload" gorm:"column:payload"`
	Processed   bool           `json:"processed" gorm:"column:processed;not null;default:false"`
	Error       *string        `json:"error,omitempty" gorm:"column:error"`
	CreatedAt   time.Time      `json:"created_at" gorm:"column:created_at"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty" gorm:"column:processed_at"`
}

func (Log) TableName() string {
	return "webhook_logs"
}
