package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/frahmantamala/settlement/internal/core/datamodel/webhooklog"
	orderPkg "github.com/frahmantamala/settlement/internal/order"
	"gorm.io/datatypes"
)

// MaxBodyBytes caps webhook bodies read from the network.
const MaxBodyBytes = 64 << 10

type LogRepository interface {
	Append(ctx context.Context, l *webhooklog.Log) error
	// MarkProcessed closes a delivery; a nil failure means it was processed.
	MarkProcessed(ctx context.Context, id int64, failure *string, at time.Time) error
}

type EventApplier interface {
	Apply(ctx context.Context, evt orderPkg.Event) (orderPkg.Result, error)
}

type ackResponse struct {
	Status  string `json:"status"`
	Outcome string `json:"outcome,omitempty"`
}

// journal records one delivery in webhook_logs and the dedupe cache.
type journal struct {
	logs   LogRepository
	dedupe Deduper
	logger *slog.Logger
	now    func() time.Time
}

// seen reports a cache hit. Cache errors are logged and treated as a miss.
func (j *journal) seen(ctx context.Context, provider, eventID string) bool {
	if eventID == "" {
		return false
	}
	hit, err := j.dedupe.Seen(ctx, provider, eventID)
	if err != nil {
		j.logger.Warn("webhook dedupe lookup failed", "provider", provider, "event_id", eventID, "error", err)
		return false
	}
	return hit
}

func (j *journal) open(ctx context.Context, provider, eventID, eventType string, payload []byte) *webhooklog.Log {
	entry := &webhooklog.Log{
		Provider:  provider,
		EventID:   eventID,
		EventType: eventType,
		Payload:   jsonPayload(payload),
		CreatedAt: j.now().UTC(),
	}
	if err := j.logs.Append(ctx, entry); err != nil {
		// the delivery is still processed; the log is an audit trail
		j.logger.Error("failed to append webhook log", "provider", provider, "event_id", eventID, "error", err)
		entry.ID = 0
	}
	return entry
}

// close finishes the log entry and, on success, remembers dedupeID.
func (j *journal) close(ctx context.Context, entry *webhooklog.Log, dedupeID string, procErr error) {
	if entry.ID != 0 {
		var failure *string
		if procErr != nil {
			msg := procErr.Error()
			failure = &msg
		}
		if err := j.logs.MarkProcessed(ctx, entry.ID, failure, j.now().UTC()); err != nil {
			j.logger.Error("failed to close webhook log", "webhook_log_id", entry.ID, "error", err)
		}
	}
	if procErr != nil || dedupeID == "" {
		return
	}
	if err := j.dedupe.Remember(ctx, entry.Provider, dedupeID); err != nil {
		j.logger.Warn("failed to remember webhook delivery", "provider", entry.Provider, "event_id", dedupeID, "error", err)
	}
}

// jsonPayload keeps the raw body when it is JSON and wraps it otherwise.
func jsonPayload(body []byte) datatypes.JSON {
	if json.Valid(body) {
		return datatypes.JSON(body)
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": string(body)})
	return datatypes.JSON(wrapped)
}
