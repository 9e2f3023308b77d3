package checkout_test

import (
	"errors"
	"strconv"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/checkout"
	catalogModel "github.com/frahmantamala/settlement/internal/core/datamodel/catalog"
	"github.com/frahmantamala/settlement/internal/core/datamodel/order"
)

var _ = Describe("Metadata", func() {
	buyer := checkout.Buyer{UserID: "user-1", Email: "cliente@example.com", Name: "João"}

	It("should round trip the snapshot and booking", func() {
		// Given
		at := time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)
		snap := order.Snapshot{
			Items: []order.SnapshotItem{{ProductID: 5, Slug: "consulta-tarot-60", Name: "Consulta de Tarot", Kind: catalogModel.KindConsultation, UnitPrice: decimal.RequireFromString("150.00"), Quantity: 1}},
			Booking: &order.Booking{
				Kind:        catalogModel.KindConsultation,
				Slug:        "consulta-tarot-60",
				ScheduledAt: &at,
				Topic:       "relacionamento",
			},
		}

		// When
		meta, err := checkout.EncodeMetadata(buyer, "production", snap)
		Expect(err).ToNot(HaveOccurred())
		decoded, err := checkout.DecodeMetadata(meta)

		// Then
		Expect(err).ToNot(HaveOccurred())
		Expect(decoded.Buyer).To(Equal(buyer))
		Expect(decoded.Env).To(Equal("production"))
		Expect(decoded.Snapshot.Items).To(HaveLen(1))
		Expect(decoded.Snapshot.Items[0].UnitPrice.Equal(decimal.RequireFromString("150"))).To(BeTrue())
		Expect(decoded.Snapshot.Booking.Topic).To(Equal("relacionamento"))
		Expect(decoded.Snapshot.Booking.ScheduledAt.Equal(at)).To(BeTrue())
	})

	It("should split a large snapshot into values of at most 500 characters", func() {
		// Given
		var items []order.SnapshotItem
		for i := 0; i < 30; i++ {
			items = append(items, order.SnapshotItem{
				ProductID: int64(i + 1),
				Slug:      "produto-com-um-nome-bem-comprido-" + strconv.Itoa(i),
				Name:      strings.Repeat("Leitura ", 4),
				Kind:      catalogModel.KindProduct,
				UnitPrice: decimal.RequireFromString("9.90"),
				Quantity:  2,
			})
		}

		// When
		meta, err := checkout.EncodeMetadata(buyer, "staging", order.Snapshot{Items: items})

		// Then
		Expect(err).ToNot(HaveOccurred())
		n, err := strconv.Atoi(meta[checkout.MetaItemsChunks])
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(BeNumerically(">", 1))
		for k, v := range meta {
			Expect(len([]rune(v))).To(BeNumerically("<=", 500), k)
		}

		decoded, err := checkout.DecodeMetadata(meta)
		Expect(err).ToNot(HaveOccurred())
		Expect(decoded.Snapshot.Items).To(HaveLen(30))
		Expect(decoded.Snapshot.Total().StringFixed(2)).To(Equal("594.00"))
	})

	It("should refuse a cart that does not fit in session metadata", func() {
		var items []order.SnapshotItem
		for i := 0; i < 400; i++ {
			items = append(items, order.SnapshotItem{ProductID: int64(i), Slug: strings.Repeat("x", 40) + strconv.Itoa(i), Name: strings.Repeat("y", 40), Kind: catalogModel.KindProduct, UnitPrice: decimal.NewFromInt(1), Quantity: 1})
		}

		_, err := checkout.EncodeMetadata(buyer, "staging", order.Snapshot{Items: items})

		Expect(errors.Is(err, errs.ErrCartTooLarge)).To(BeTrue())
	})

	DescribeTable("malformed metadata",
		func(meta map[string]string) {
			_, err := checkout.DecodeMetadata(meta)

			Expect(errors.Is(err, errs.ErrMalformedPayload)).To(BeTrue())
		},
		Entry("no user", map[string]string{checkout.MetaItemsChunks: "1", "items_0": "[]"}),
		Entry("no chunk count", map[string]string{checkout.MetaUserID: "u"}),
		Entry("missing chunk", map[string]string{checkout.MetaUserID: "u", checkout.MetaItemsChunks: "2", "items_0": "[]"}),
		Entry("bad json", map[string]string{checkout.MetaUserID: "u", checkout.MetaItemsChunks: "1", "items_0": "[{"}),
		Entry("empty snapshot", map[string]string{checkout.MetaUserID: "u", checkout.MetaItemsChunks: "1", "items_0": "[]"}),
	)

	It("should build a pending stripe draft order from the metadata", func() {
		meta, err := checkout.EncodeMetadata(buyer, "staging", tarotSnapshot)
		Expect(err).ToNot(HaveOccurred())
		decoded, err := checkout.DecodeMetadata(meta)
		Expect(err).ToNot(HaveOccurred())
		now := time.Now().UTC()

		draft, err := decoded.DraftOrder("cs_test_9", "brl", now)

		Expect(err).ToNot(HaveOccurred())
		Expect(draft.Status).To(Equal(order.StatusPending))
		Expect(draft.PaymentMethod).To(Equal(order.MethodStripe))
		Expect(*draft.ProviderSessionID).To(Equal("cs_test_9"))
		Expect(draft.Currency).To(Equal("BRL"))
		Expect(draft.TotalAmount.StringFixed(2)).To(Equal("29.90"))
		Expect(draft.UserID).To(Equal("user-1"))

		snap, err := draft.Snapshot()
		Expect(err).ToNot(HaveOccurred())
		Expect(snap.Items[0].Slug).To(Equal("tarot-e-o-amor"))
	})
})
