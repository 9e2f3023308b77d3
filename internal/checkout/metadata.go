package checkout

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/core/datamodel/order"
	"github.com/shopspring/decimal"
)

// Session metadata keys. The provider caps values at 500 characters and a
// session at 50 keys, so the item snapshot is split across items_0..items_n.
const (
	MetaUserID            = "user_id"
	MetaUserEmail         = "user_email"
	MetaUserName          = "user_name"
	MetaEnv               = "env"
	MetaItemsChunks       = "items_chunks"
	MetaItemsPrefix       = "items_"
	MetaBookingKind       = "booking_kind"
	MetaBookingSlug       = "booking_slug"
	MetaBookingScheduled  = "booking_scheduled_at"
	MetaBookingTopic      = "booking_topic"
	maxMetadataValueChars = 500
	maxItemChunks         = 40
)

// Buyer identifies who the session was created for.
type Buyer struct {
	UserID string
	Email  string
	Name   string
}

// Metadata is what a completed session carries back to the webhook.
type Metadata struct {
	Buyer    Buyer
	Env      string
	Snapshot order.Snapshot
}

type metaItem struct {
	ProductID int64  `json:"i"`
	Slug      string `json:"s"`
	Name      string `json:"n"`
	Kind      string `json:"k"`
	UnitPrice string `json:"p"`
	Quantity  int    `json:"q"`
}

func EncodeMetadata(buyer Buyer, env string, snapshot order.Snapshot) (map[string]string, error) {
	items := make([]metaItem, 0, len(snapshot.Items))
	for _, it := range snapshot.Items {
		items = append(items, metaItem{
			ProductID: it.ProductID,
			Slug:      it.Slug,
			Name:      it.Name,
			Kind:      it.Kind,
			UnitPrice: it.UnitPrice.StringFixed(2),
			Quantity:  it.Quantity,
		})
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode item snapshot: %w", err)
	}

	chunks := chunkRunes(string(raw), maxMetadataValueChars)
	if len(chunks) > maxItemChunks {
		return nil, errs.ErrCartTooLarge
	}

	meta := map[string]string{
		MetaUserID:      buyer.UserID,
		MetaUserEmail:   truncateRunes(buyer.Email, maxMetadataValueChars),
		MetaUserName:    truncateRunes(buyer.Name, maxMetadataValueChars),
		MetaEnv:         env,
		MetaItemsChunks: strconv.Itoa(len(chunks)),
	}
	for i, c := range chunks {
		meta[MetaItemsPrefix+strconv.Itoa(i)] = c
	}

	if b := snapshot.Booking; b != nil {
		meta[MetaBookingKind] = b.Kind
		meta[MetaBookingSlug] = b.Slug
		if b.ScheduledAt != nil {
			meta[MetaBookingScheduled] = b.ScheduledAt.UTC().Format(time.RFC3339)
		}
		if b.Topic != "" {
			meta[MetaBookingTopic] = truncateRunes(b.Topic, maxMetadataValueChars)
		}
	}

	return meta, nil
}

// DecodeMetadata rebuilds the snapshot written by EncodeMetadata.
func DecodeMetadata(meta map[string]string) (*Metadata, error) {
	userID := meta[MetaUserID]
	if userID == "" {
		return nil, errs.ErrMalformedPayload.WithMessage("session metadata has no user_id")
	}

	n, err := strconv.Atoi(meta[MetaItemsChunks])
	if err != nil || n <= 0 || n > maxItemChunks {
		return nil, errs.ErrMalformedPayload.WithMessage("session metadata has no item snapshot")
	}

	var b strings.Builder
	for i := 0; i < n; i++ {
		chunk, ok := meta[MetaItemsPrefix+strconv.Itoa(i)]
		if !ok {
			return nil, errs.ErrMalformedPayload.WithMessage(fmt.Sprintf("session metadata is missing items_%d", i))
		}
		b.WriteString(chunk)
	}

	var items []metaItem
	if err := json.Unmarshal([]byte(b.String()), &items); err != nil {
		return nil, errs.ErrMalformedPayload.WithCause(err)
	}
	if len(items) == 0 {
		return nil, errs.ErrMalformedPayload.WithMessage("session item snapshot is empty")
	}

	snapshot := order.Snapshot{Items: make([]order.SnapshotItem, 0, len(items))}
	for _, it := range items {
		price, err := decimal.NewFromString(it.UnitPrice)
		if err != nil {
			return nil, errs.ErrMalformedPayload.WithCause(err)
		}
		snapshot.Items = append(snapshot.Items, order.SnapshotItem{
			ProductID: it.ProductID,
			Slug:      it.Slug,
			Name:      it.Name,
			Kind:      it.Kind,
			UnitPrice: price,
			Quantity:  it.Quantity,
		})
	}

	if kind := meta[MetaBookingKind]; kind != "" {
		booking := &order.Booking{
			Kind:  kind,
			Slug:  meta[MetaBookingSlug],
			Topic: meta[MetaBookingTopic],
		}
		if raw := meta[MetaBookingScheduled]; raw != "" {
			if at, err := time.Parse(time.RFC3339, raw); err == nil {
				booking.ScheduledAt = &at
			}
		}
		snapshot.Booking = booking
	}

	return &Metadata{
		Buyer: Buyer{
			UserID: userID,
			Email:  meta[MetaUserEmail],
			Name:   meta[MetaUserName],
		},
		Env:      meta[MetaEnv],
		Snapshot: snapshot,
	}, nil
}

// DraftOrder is the pending order a completed session stands for. It is only
// inserted when the provider reports the session paid.
func (m *Metadata) DraftOrder(sessionID, currency string, now time.Time) (*order.Order, error) {
	snapJSON, err := m.Snapshot.JSON()
	if err != nil {
		return nil, fmt.Errorf("encode checkout snapshot: %w", err)
	}
	sid := sessionID
	return &order.Order{
		UserID:            m.Buyer.UserID,
		UserEmail:         m.Buyer.Email,
		Status:            order.StatusPending,
		TotalAmount:       m.Snapshot.Total(),
		Currency:          strings.ToUpper(currency),
		PaymentMethod:     order.MethodStripe,
		ProviderSessionID: &sid,
		CheckoutSnapshot:  snapJSON,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func chunkRunes(s string, size int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > 0 {
		n := min(size, len(runes))
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
