package catalog

import (
	"context"

	"github.com/frahmantamala/settlement/internal/core/datamodel/catalog"
)

const (
	MinQuantity = 1
	MaxQuantity = 99
)

type Repository interface {
	GetBySlugs(ctx context.Context, slugs []string) ([]catalog.Item, error)
	ListActive(ctx context.Context) ([]catalog.Item, error)
	Upsert(ctx context.Context, item *catalog.Item) error
}

// CartLine is one requested product.
type CartLine struct {
	Slug     string `json:"slug" validate:"required,max=120"`
	Quantity int    `json:"quantity"`
}

// BookingRequest buys a single course seat or consultation slot.
type BookingRequest struct {
	Kind        string  `json:"kind" validate:"required"`
	Slug        string  `json:"slug" validate:"required,max=120"`
	ScheduledAt *string `json:"scheduledAt,omitempty"`
	Topic       string  `json:"topic,omitempty" validate:"max=500"`
}

// Cart is either a list of lines or a booking, never both.
type Cart struct {
	Items   []CartLine      `json:"items,omitempty"`
	Booking *BookingRequest `json:"booking,omitempty"`
}
