package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/core/datamodel/catalog"
	"github.com/frahmantamala/settlement/internal/core/datamodel/order"
)

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// ResolveCart prices a cart against the catalog and returns the snapshot
// that is frozen into the order. Prices never come from the client.
func (s *Service) ResolveCart(ctx context.Context, cart Cart) (order.Snapshot, error) {
	lines, booking, err := normalize(cart)
	if err != nil {
		return order.Snapshot{}, err
	}

	slugs := make([]string, 0, len(lines))
	for _, l := range lines {
		slugs = append(slugs, l.Slug)
	}

	items, err := s.repo.GetBySlugs(ctx, slugs)
	if err != nil {
		s.logger.Error("ResolveCart: failed to load catalog items", "error", err)
		return order.Snapshot{}, errs.NewInternalError("failed to load catalog", err)
	}

	bySlug := make(map[string]catalog.Item, len(items))
	for _, it := range items {
		bySlug[it.Slug] = it
	}

	snapshot := order.Snapshot{Items: make([]order.SnapshotItem, 0, len(lines))}
	for _, l := range lines {
		it, ok := bySlug[l.Slug]
		if !ok || !it.Purchasable() {
			s.logger.Warn("ResolveCart: unknown product requested", "slug", l.Slug)
			return order.Snapshot{}, errs.ErrUnknownProduct.WithMessage(fmt.Sprintf("unknown or unavailable product: %s", l.Slug))
		}
		if it.Kind != catalog.KindProduct && l.Quantity != 1 {
			return order.Snapshot{}, errs.ErrInvalidQuantity.WithMessage(fmt.Sprintf("%s %s can only be bought once per order", it.Kind, it.Slug))
		}
		if booking != nil && it.Kind != booking.Kind {
			return order.Snapshot{}, errs.ErrUnknownProduct.WithMessage(fmt.Sprintf("%s is not a %s", it.Slug, booking.Kind))
		}

		snapshot.Items = append(snapshot.Items, order.SnapshotItem{
			ProductID: it.ID,
			Slug:      it.Slug,
			Name:      it.Name,
			Kind:      it.Kind,
			UnitPrice: it.Price,
			Quantity:  l.Quantity,
		})
	}
	snapshot.Booking = booking

	return snapshot, nil
}

func (s *Service) ListActive(ctx context.Context) ([]catalog.Item, error) {
	return s.repo.ListActive(ctx)
}

func normalize(cart Cart) ([]CartLine, *order.Booking, error) {
	if cart.Booking != nil {
		return normalizeBooking(cart.Booking)
	}

	if len(cart.Items) == 0 {
		return nil, nil, errs.ErrEmptyCart
	}

	// repeated slugs are merged so each product appears once in the snapshot
	index := make(map[string]int, len(cart.Items))
	lines := make([]CartLine, 0, len(cart.Items))
	for _, l := range cart.Items {
		slug := strings.TrimSpace(l.Slug)
		if slug == "" {
			return nil, nil, errs.ErrUnknownProduct.WithMessage("product slug is required")
		}
		if l.Quantity < MinQuantity || l.Quantity > MaxQuantity {
			return nil, nil, errs.ErrInvalidQuantity
		}
		if i, ok := index[slug]; ok {
			lines[i].Quantity += l.Quantity
			if lines[i].Quantity > MaxQuantity {
				return nil, nil, errs.ErrInvalidQuantity
			}
			continue
		}
		index[slug] = len(lines)
		lines = append(lines, CartLine{Slug: slug, Quantity: l.Quantity})
	}

	return lines, nil, nil
}

func normalizeBooking(b *BookingRequest) ([]CartLine, *order.Booking, error) {
	if b.Kind != catalog.KindCourse && b.Kind != catalog.KindConsultation {
		return nil, nil, errs.NewValidationFieldError("booking.kind", "booking kind must be course or consultation", errs.ErrCodeValidationFailed)
	}
	slug := strings.TrimSpace(b.Slug)
	if slug == "" {
		return nil, nil, errs.ErrEmptyCart
	}

	booking := &order.Booking{Kind: b.Kind, Slug: slug, Topic: strings.TrimSpace(b.Topic)}
	if b.ScheduledAt != nil && *b.ScheduledAt != "" {
		at, err := time.Parse(time.RFC3339, *b.ScheduledAt)
		if err != nil {
			return nil, nil, errs.NewValidationFieldError("booking.scheduledAt", "scheduledAt must be an RFC 3339 timestamp", errs.ErrCodeInvalidDate)
		}
		at = at.UTC()
		booking.ScheduledAt = &at
	}

	return []CartLine{{Slug: slug, Quantity: 1}}, booking, nil
}
