package order_test

import (
	"context"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/settlement/internal/core/events"
	orderPkg "github.com/frahmantamala/settlement/internal/order"
)

var _ = Describe("EventHandler", func() {
	var handler *orderPkg.EventHandler

	BeforeEach(func() {
		handler = orderPkg.NewEventHandler(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
	})

	It("should accept order status events", func() {
		evt := events.NewOrderStatusChangedEvent(events.EventTypeOrderPaid, 1, "user-1", "paid", "stripe", "29.90", 1)

		Expect(handler.HandleOrderStatusChanged(context.Background(), evt)).To(Succeed())
	})

	It("should reject an event of the wrong shape", func() {
		evt := events.NewProofEvent(events.EventTypeProofReviewed, 1, 1, "approved", "admin")

		Expect(handler.HandleOrderStatusChanged(context.Background(), evt)).ToNot(Succeed())
		Expect(handler.HandleProofEvent(context.Background(), evt)).To(Succeed())
	})

	It("should subscribe to every order and proof event", func() {
		bus := events.NewEventBus(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
		handler.RegisterEventHandlers(bus)

		err := bus.PublishSync(context.Background(), events.NewOrderStatusChangedEvent(events.EventTypeOrderRefunded, 1, "user-1", "refunded", "pix", "29.90", 0))
		Expect(err).ToNot(HaveOccurred())

		err = bus.PublishSync(context.Background(), events.NewOrderStatusChangedEvent(events.EventTypeProofSubmitted, 1, "user-1", "pending", "pix", "29.90", 0))
		Expect(err).To(HaveOccurred())
	})
})
