package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/settlement/internal/core/datamodel/catalog"
	"github.com/frahmantamala/settlement/internal/core/datamodel/entitlement"
	"github.com/frahmantamala/settlement/internal/core/datamodel/order"
	"github.com/frahmantamala/settlement/pkg/logger"
)

type Granter struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewGranter(logger *slog.Logger) *Granter {
	return &Granter{logger: logger, now: time.Now}
}

// Grant creates one entitlement per purchased item of a paid order and
// returns how many were newly created. It must run inside the transaction
// that marked the order paid.
func (g *Granter) Grant(ctx context.Context, repo Repository, o *order.Order, items []order.OrderItem) (int, error) {
	log := logger.FromOr(ctx, g.logger)

	snapshot, err := o.Snapshot()
	if err != nil {
		return 0, fmt.Errorf("decode checkout snapshot: %w", err)
	}

	now := g.now().UTC()
	created := 0

	for _, item := range items {
		var (
			ok   bool
			gerr error
		)

		switch item.Kind {
		case catalog.KindProduct:
			ok, gerr = repo.GrantProduct(ctx, &entitlement.UserProduct{
				UserID:    o.UserID,
				OrderID:   o.ID,
				ProductID: item.ProductID,
				Slug:      item.ProductSlug,
				GrantedAt: now,
			})
		case catalog.KindCourse:
			ok, gerr = repo.EnrollCourse(ctx, &entitlement.CourseEnrollment{
				UserID:     o.UserID,
				OrderID:    o.ID,
				ProductID:  item.ProductID,
				Slug:       item.ProductSlug,
				EnrolledAt: now,
			})
		case catalog.KindConsultation:
			c := &entitlement.Consultation{
				UserID:      o.UserID,
				OrderID:     o.ID,
				ProductID:   item.ProductID,
				Slug:        item.ProductSlug,
				Status:      entitlement.ConsultationConfirmed,
				ConfirmedAt: now,
			}
			if b := snapshot.Booking; b != nil && b.Slug == item.ProductSlug {
				c.ScheduledAt = b.ScheduledAt
				c.Topic = b.Topic
			}
			ok, gerr = repo.ConfirmConsultation(ctx, c)
		default:
			log.Warn("skipping entitlement for unknown item kind",
				"order_id", o.ID,
				"product_slug", item.ProductSlug,
				"kind", item.Kind)
			continue
		}

		if gerr != nil {
			return created, fmt.Errorf("grant %s %s: %w", item.Kind, item.ProductSlug, gerr)
		}
		if ok {
			created++
		}
	}

	log.Info("entitlements granted",
		"order_id", o.ID,
		"user_id", o.UserID,
		"items", len(items),
		"created", created)

	return created, nil
}
