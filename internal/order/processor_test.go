package order_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/settlement/internal/core/datamodel/catalog"
	entitlementModel "github.com/frahmantamala/settlement/internal/core/datamodel/entitlement"
	"github.com/frahmantamala/settlement/internal/core/datamodel/mercadopago"
	"github.com/frahmantamala/settlement/internal/core/datamodel/order"
	"github.com/frahmantamala/settlement/internal/core/datamodel/pix"
	"github.com/frahmantamala/settlement/internal/core/datamodel/proof"
	"github.com/frahmantamala/settlement/internal/core/events"
	"github.com/frahmantamala/settlement/internal/entitlement"
	orderPkg "github.com/frahmantamala/settlement/internal/order"
	orderPostgres "github.com/frahmantamala/settlement/internal/order/postgres"
)

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, event events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) Types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.EventType())
	}
	return out
}

// staleRepos hands out orders as they looked before a concurrent status change.
type staleRepos struct{ orderPkg.TxRepos }

func (s staleRepos) Orders() orderPkg.Repository { return staleOrders{s.TxRepos.Orders()} }

type staleOrders struct{ orderPkg.Repository }

func (s staleOrders) LockByID(ctx context.Context, id int64) (*order.Order, error) {
	o, err := s.Repository.LockByID(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Status = order.StatusPending
	return o, nil
}

// openTestDB uses one connection so the in-memory database is shared by every transaction.
func openTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	Expect(err).ToNot(HaveOccurred())

	sqlDB, err := db.DB()
	Expect(err).ToNot(HaveOccurred())
	sqlDB.SetMaxOpenConns(1)

	Expect(db.AutoMigrate(
		&order.Order{},
		&order.OrderItem{},
		&pix.Transaction{},
		&mercadopago.Transaction{},
		&proof.PaymentProof{},
		&entitlementModel.UserProduct{},
		&entitlementModel.CourseEnrollment{},
		&entitlementModel.Consultation{},
	)).To(Succeed())
	return db
}

func snapshotJSON(items ...order.SnapshotItem) []byte {
	b, err := order.Snapshot{Items: items}.JSON()
	Expect(err).ToNot(HaveOccurred())
	return b
}

var tarot = order.SnapshotItem{
	ProductID: 1,
	Slug:      "tarot-e-o-amor",
	Name:      "Tarot e o Amor",
	Kind:      catalog.KindProduct,
	UnitPrice: decimal.RequireFromString("29.90"),
	Quantity:  1,
}

var course = order.SnapshotItem{
	ProductID: 4,
	Slug:      "curso-tarot-iniciante",
	Name:      "Curso de Tarot Iniciante",
	Kind:      catalog.KindCourse,
	UnitPrice: decimal.RequireFromString("197.00"),
	Quantity:  1,
}

var _ = Describe("Processor", func() {
	var (
		ctx       context.Context
		db        *gorm.DB
		tx        *orderPostgres.TxManager
		bus       *recordingBus
		processor *orderPkg.Processor
	)

	createPending := func(method order.PaymentMethod, items ...order.SnapshotItem) *order.Order {
		snap := order.Snapshot{Items: items}
		o := &order.Order{
			UserID:           "user-1",
			UserEmail:        "cliente@example.com",
			Status:           order.StatusPending,
			TotalAmount:      snap.Total(),
			Currency:         "BRL",
			PaymentMethod:    method,
			CheckoutSnapshot: snapshotJSON(items...),
		}
		Expect(tx.Repos().Orders().Create(ctx, o)).To(Succeed())
		return o
	}

	countRows := func(model interface{}) int64 {
		var n int64
		Expect(db.Model(model).Count(&n).Error).ToNot(HaveOccurred())
		return n
	}

	BeforeEach(func() {
		ctx = context.Background()
		db = openTestDB()
		tx = orderPostgres.NewTxManager(db)
		bus = &recordingBus{}
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		processor = orderPkg.NewProcessor(tx, entitlement.NewGranter(lg), bus, lg)
	})

	Describe("Apply", func() {
		It("should mark a pending order paid and grant its entitlements", func() {
			// Given
			o := createPending(order.MethodPix, tarot, course)
			paid := decimal.RequireFromString("226.90")

			// When
			res, err := processor.Apply(ctx, orderPkg.Event{
				Kind:       orderPkg.EventSucceeded,
				Rail:       orderPkg.RailPix,
				OrderID:    o.ID,
				PaidAmount: &paid,
			})

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(orderPkg.OutcomeApplied))
			Expect(res.From).To(Equal(order.StatusPending))
			Expect(res.To).To(Equal(order.StatusPaid))
			Expect(res.Granted).To(Equal(2))

			stored, err := tx.Repos().Orders().GetByID(ctx, o.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.Status).To(Equal(order.StatusPaid))
			Expect(stored.PaidAt).ToNot(BeNil())

			items, err := tx.Repos().Items().ListByOrder(ctx, o.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(items).To(HaveLen(2))

			Expect(countRows(&entitlementModel.UserProduct{})).To(Equal(int64(1)))
			Expect(countRows(&entitlementModel.CourseEnrollment{})).To(Equal(int64(1)))
			Expect(bus.Types()).To(Equal([]string{events.EventTypeOrderPaid}))
		})

		It("should treat a repeated success as a duplicate without granting again", func() {
			// Given
			o := createPending(order.MethodPix, tarot)
			evt := orderPkg.Event{Kind: orderPkg.EventSucceeded, Rail: orderPkg.RailPix, OrderID: o.ID}
			_, err := processor.Apply(ctx, evt)
			Expect(err).ToNot(HaveOccurred())

			// When
			res, err := processor.Apply(ctx, evt)

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(orderPkg.OutcomeDuplicate))
			Expect(countRows(&entitlementModel.UserProduct{})).To(Equal(int64(1)))
			Expect(countRows(&order.OrderItem{})).To(Equal(int64(1)))
			Expect(bus.Types()).To(HaveLen(1))
		})

		// the single sqlite connection serializes these deliveries; the stale lock
		// spec below covers the conditional update that guards postgres
		It("should grant exactly once when deliveries are serialized by the connection pool", func() {
			// Given
			o := createPending(order.MethodPix, tarot)
			evt := orderPkg.Event{Kind: orderPkg.EventSucceeded, Rail: orderPkg.RailPix, OrderID: o.ID}

			// When
			var wg sync.WaitGroup
			outcomes := make(chan orderPkg.Outcome, 8)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					res, err := processor.Apply(ctx, evt)
					Expect(err).ToNot(HaveOccurred())
					outcomes <- res.Outcome
				}()
			}
			wg.Wait()
			close(outcomes)

			// Then
			applied := 0
			for outcome := range outcomes {
				if outcome == orderPkg.OutcomeApplied {
					applied++
				} else {
					Expect(outcome).To(Equal(orderPkg.OutcomeDuplicate))
				}
			}
			Expect(applied).To(Equal(1))
			Expect(countRows(&entitlementModel.UserProduct{})).To(Equal(int64(1)))
		})

		It("should treat the event as duplicate when the order moved after it was read", func() {
			// Given another delivery already paid the order
			o := createPending(order.MethodPix, tarot)
			first, err := processor.Apply(ctx, orderPkg.Event{Kind: orderPkg.EventSucceeded, Rail: orderPkg.RailPix, OrderID: o.ID})
			Expect(err).ToNot(HaveOccurred())
			Expect(first.Outcome).To(Equal(orderPkg.OutcomeApplied))

			// When this delivery still sees the order as pending
			var res orderPkg.Result
			err = tx.WithinTx(ctx, func(ctx context.Context, r orderPkg.TxRepos) error {
				var err error
				res, err = processor.ApplyInTx(ctx, staleRepos{r}, orderPkg.Event{
					Kind: orderPkg.EventSucceeded, Rail: orderPkg.RailPix, OrderID: o.ID,
				})
				return err
			})

			// Then the conditional update refuses to move it again
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(orderPkg.OutcomeDuplicate))
			Expect(res.Granted).To(BeZero())
			Expect(countRows(&entitlementModel.UserProduct{})).To(Equal(int64(1)))
			Expect(countRows(&order.OrderItem{})).To(Equal(int64(1)))
		})

		It("should report a missing order without failing", func() {
			res, err := processor.Apply(ctx, orderPkg.Event{
				Kind:              orderPkg.EventCancelled,
				Rail:              orderPkg.RailStripe,
				ProviderSessionID: "cs_missing",
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(orderPkg.OutcomeOrderMissing))
			Expect(bus.Types()).To(BeEmpty())
		})

		It("should report an illegal transition and leave the order untouched", func() {
			// Given
			o := createPending(order.MethodPix, tarot)

			// When
			res, err := processor.Apply(ctx, orderPkg.Event{Kind: orderPkg.EventRefunded, Rail: orderPkg.RailPix, OrderID: o.ID})

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(orderPkg.OutcomeIllegal))
			stored, err := tx.Repos().Orders().GetByID(ctx, o.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.Status).To(Equal(order.StatusPending))
		})

		It("should cancel pending pix codes when the order is cancelled", func() {
			// Given
			o := createPending(order.MethodPix, tarot)
			Expect(tx.Repos().Pix().Create(ctx, &pix.Transaction{
				TxID:      "TX1",
				OrderID:   o.ID,
				UserID:    o.UserID,
				Payload:   "000201",
				Amount:    o.TotalAmount,
				Status:    pix.StatusPending,
				ExpiresAt: time.Now().Add(time.Hour),
			})).To(Succeed())

			// When
			res, err := processor.Apply(ctx, orderPkg.Event{Kind: orderPkg.EventCancelled, Rail: orderPkg.RailPix, OrderID: o.ID})

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(res.To).To(Equal(order.StatusCancelled))
			t, err := tx.Repos().Pix().GetByTxID(ctx, "TX1")
			Expect(err).ToNot(HaveOccurred())
			Expect(t.Status).To(Equal(pix.StatusCancelled))
			Expect(bus.Types()).To(Equal([]string{events.EventTypeOrderCancelled}))
		})

		It("should create a draft order once and settle it by session id", func() {
			// Given
			session := "cs_test_123"
			draft := func() *order.Order {
				return &order.Order{
					UserID:            "user-9",
					Status:            order.StatusPending,
					TotalAmount:       tarot.UnitPrice,
					Currency:          "BRL",
					PaymentMethod:     order.MethodStripe,
					ProviderSessionID: &session,
					CheckoutSnapshot:  snapshotJSON(tarot),
				}
			}
			evt := func() orderPkg.Event {
				return orderPkg.Event{
					Kind:              orderPkg.EventSucceeded,
					Rail:              orderPkg.RailStripe,
					ProviderPaymentID: "pi_123",
					Draft:             draft(),
				}
			}

			// When
			first, err := processor.Apply(ctx, evt())
			Expect(err).ToNot(HaveOccurred())
			second, err := processor.Apply(ctx, evt())
			Expect(err).ToNot(HaveOccurred())

			// Then
			Expect(first.Outcome).To(Equal(orderPkg.OutcomeApplied))
			Expect(second.Outcome).To(Equal(orderPkg.OutcomeDuplicate))
			Expect(countRows(&order.Order{})).To(Equal(int64(1)))
			Expect(countRows(&entitlementModel.UserProduct{})).To(Equal(int64(1)))

			stored, err := tx.Repos().Orders().LockByPaymentID(ctx, "pi_123")
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.Status).To(Equal(order.StatusPaid))
		})

		It("should refund a paid order by payment id and keep the entitlements", func() {
			// Given
			o := createPending(order.MethodStripe, tarot)
			_, err := processor.Apply(ctx, orderPkg.Event{
				Kind:              orderPkg.EventSucceeded,
				Rail:              orderPkg.RailStripe,
				OrderID:           o.ID,
				ProviderPaymentID: "pi_refund",
			})
			Expect(err).ToNot(HaveOccurred())

			// When
			res, err := processor.Apply(ctx, orderPkg.Event{
				Kind:              orderPkg.EventRefunded,
				Rail:              orderPkg.RailStripe,
				ProviderPaymentID: "pi_refund",
			})

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(res.To).To(Equal(order.StatusRefunded))
			Expect(res.Order.RefundedAt).ToNot(BeNil())
			Expect(countRows(&entitlementModel.UserProduct{})).To(Equal(int64(1)))
		})

		It("should mirror mercado pago payment details alongside the transition", func() {
			// Given
			o := createPending(order.MethodMercadoPago, tarot)
			Expect(tx.Repos().MercadoPago().Create(ctx, &mercadopago.Transaction{
				PreferenceID: "pref-1",
				OrderID:      o.ID,
				Status:       mercadopago.StatusPending,
				Amount:       o.TotalAmount,
			})).To(Succeed())
			paid := decimal.RequireFromString("29.90")

			// When
			res, err := processor.Apply(ctx, orderPkg.Event{
				Kind:              orderPkg.EventSucceeded,
				Rail:              orderPkg.RailMercadoPago,
				OrderID:           o.ID,
				ProviderPaymentID: "123456",
				PaidAmount:        &paid,
				MercadoPago: &orderPkg.MercadoPagoUpdate{
					PaymentID:  "123456",
					Status:     mercadopago.StatusApproved,
					PaidAmount: &paid,
					PayerEmail: "payer@example.com",
				},
			})

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(orderPkg.OutcomeApplied))
			mp, err := tx.Repos().MercadoPago().GetByOrderID(ctx, o.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(mp.Status).To(Equal(mercadopago.StatusApproved))
			Expect(*mp.PaymentID).To(Equal("123456"))
		})
	})
})
