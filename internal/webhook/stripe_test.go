package webhook_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/checkout"
	"github.com/frahmantamala/settlement/internal/core/datamodel/catalog"
	entitlementModel "github.com/frahmantamala/settlement/internal/core/datamodel/entitlement"
	"github.com/frahmantamala/settlement/internal/core/datamodel/order"
	"github.com/frahmantamala/settlement/internal/core/datamodel/webhooklog"
	"github.com/frahmantamala/settlement/internal/entitlement"
	orderPkg "github.com/frahmantamala/settlement/internal/order"
	orderPostgres "github.com/frahmantamala/settlement/internal/order/postgres"
	"github.com/frahmantamala/settlement/internal/webhook"
	webhookPostgres "github.com/frahmantamala/settlement/internal/webhook/postgres"
)

const webhookSecret = "whsec_test_secret"

func signStripe(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func stripeEvent(id, eventType string, object interface{}) []byte {
	body, err := json.Marshal(map[string]interface{}{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": "2023-08-16",
		"created":     time.Now().Unix(),
		"data":        map[string]interface{}{"object": object},
	})
	Expect(err).ToNot(HaveOccurred())
	return body
}

// memoryDeduper stands in for the redis cache.
type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryDeduper() *memoryDeduper {
	return &memoryDeduper{seen: map[string]bool{}}
}

func (d *memoryDeduper) Seen(_ context.Context, provider, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[provider+":"+eventID], nil
}

func (d *memoryDeduper) Remember(_ context.Context, provider, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[provider+":"+eventID] = true
	return nil
}

var tarotItem = order.SnapshotItem{
	ProductID: 1,
	Slug:      "tarot-e-o-amor",
	Name:      "Tarot e o Amor",
	Kind:      catalog.KindProduct,
	UnitPrice: decimal.RequireFromString("29.90"),
	Quantity:  1,
}

var _ = Describe("StripeHandler", func() {
	var (
		db      *gorm.DB
		tx      *orderPostgres.TxManager
		dedupe  *memoryDeduper
		cfg     webhook.StripeConfig
		handler *webhook.StripeHandler
	)

	build := func() {
		lg := testLogger()
		processor := orderPkg.NewProcessor(tx, entitlement.NewGranter(lg), nil, lg)
		handler = webhook.NewStripeHandler(cfg, processor, webhookPostgres.NewLogRepository(db), dedupe, lg)
	}

	sessionObject := func(sessionID, env string) map[string]interface{} {
		meta, err := checkout.EncodeMetadata(checkout.Buyer{
			UserID: "user-1",
			Email:  "cliente@example.com",
			Name:   "Cliente",
		}, env, order.Snapshot{Items: []order.SnapshotItem{tarotItem}})
		Expect(err).ToNot(HaveOccurred())
		return map[string]interface{}{
			"id":             sessionID,
			"object":         "checkout.session",
			"payment_status": "paid",
			"status":         "complete",
			"currency":       "brl",
			"amount_total":   2990,
			"payment_intent": "pi_123",
			"metadata":       meta,
		}
	}

	deliver := func(body []byte, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(body)))
		if signature != "" {
			req.Header.Set(webhook.SignatureHeader, signature)
		}
		rec := httptest.NewRecorder()
		handler.HandleStripe(rec, req)
		return rec
	}

	deliverSigned := func(body []byte) *httptest.ResponseRecorder {
		return deliver(body, signStripe(body, webhookSecret, time.Now()))
	}

	BeforeEach(func() {
		db = openWebhookDB()
		tx = orderPostgres.NewTxManager(db)
		dedupe = newMemoryDeduper()
		cfg = webhook.StripeConfig{
			WebhookSecret: webhookSecret,
			Tolerance:     5 * time.Minute,
			Env:           "test",
			Currency:      "BRL",
		}
		build()
	})

	It("should create a paid order and grant the product for a completed session", func() {
		// Given
		body := stripeEvent("evt_1", webhook.EventSessionCompleted, sessionObject("cs_test_1", "test"))

		// When
		rec := deliverSigned(body)

		// Then
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(string(orderPkg.OutcomeApplied)))

		stored, err := tx.Repos().Orders().LockBySessionID(context.Background(), "cs_test_1")
		Expect(err).ToNot(HaveOccurred())
		Expect(stored.Status).To(Equal(order.StatusPaid))
		Expect(stored.TotalAmount.StringFixed(2)).To(Equal("29.90"))
		Expect(stored.PaidAmount.StringFixed(2)).To(Equal("29.90"))
		Expect(stored.Currency).To(Equal("BRL"))
		Expect(*stored.ProviderPaymentID).To(Equal("pi_123"))
		Expect(countRows(db, &entitlementModel.UserProduct{})).To(Equal(int64(1)))

		logs, err := webhookPostgres.NewLogRepository(db).ListByEvent(context.Background(), webhooklog.ProviderStripe, "evt_1")
		Expect(err).ToNot(HaveOccurred())
		Expect(logs).To(HaveLen(1))
		Expect(logs[0].Processed).To(BeTrue())
	})

	It("should reject a bad signature without touching orders", func() {
		body := stripeEvent("evt_1", webhook.EventSessionCompleted, sessionObject("cs_test_1", "test"))

		rec := deliver(body, signStripe(body, "whsec_other", time.Now()))

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(rec.Body.String()).To(ContainSubstring(string(errs.ErrCodeInvalidSignature)))
		Expect(countRows(db, &order.Order{})).To(BeZero())
		Expect(countRows(db, &webhooklog.Log{})).To(BeZero())
	})

	It("should reject a signature outside the tolerance window", func() {
		body := stripeEvent("evt_1", webhook.EventSessionCompleted, sessionObject("cs_test_1", "test"))

		rec := deliver(body, signStripe(body, webhookSecret, time.Now().Add(-time.Hour)))

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should acknowledge a redelivered event once it is cached", func() {
		// Given
		body := stripeEvent("evt_1", webhook.EventSessionCompleted, sessionObject("cs_test_1", "test"))
		Expect(deliverSigned(body).Code).To(Equal(http.StatusOK))

		// When
		rec := deliverSigned(body)

		// Then
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("duplicate"))
		Expect(countRows(db, &order.Order{})).To(Equal(int64(1)))
		Expect(countRows(db, &entitlementModel.UserProduct{})).To(Equal(int64(1)))
	})

	It("should stay idempotent when a different event reports the same session", func() {
		// Given
		Expect(deliverSigned(stripeEvent("evt_1", webhook.EventSessionCompleted, sessionObject("cs_test_1", "test"))).Code).To(Equal(http.StatusOK))

		// When
		rec := deliverSigned(stripeEvent("evt_2", webhook.EventSessionAsyncSucceeded, sessionObject("cs_test_1", "test")))

		// Then
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(string(orderPkg.OutcomeDuplicate)))
		Expect(countRows(db, &order.Order{})).To(Equal(int64(1)))
		Expect(countRows(db, &entitlementModel.UserProduct{})).To(Equal(int64(1)))
	})

	It("should wait for the money when a completed session is still unpaid", func() {
		obj := sessionObject("cs_test_1", "test")
		obj["payment_status"] = "unpaid"

		rec := deliverSigned(stripeEvent("evt_1", webhook.EventSessionCompleted, obj))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("awaiting_payment"))
		Expect(countRows(db, &order.Order{})).To(BeZero())
	})

	It("should discard a session created by another environment", func() {
		rec := deliverSigned(stripeEvent("evt_1", webhook.EventSessionCompleted, sessionObject("cs_test_1", "staging")))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("env_mismatch"))
		Expect(countRows(db, &order.Order{})).To(BeZero())
	})

	It("should report an order missing when an expired session never produced an order", func() {
		rec := deliverSigned(stripeEvent("evt_1", webhook.EventSessionExpired, map[string]interface{}{
			"id":     "cs_test_unknown",
			"object": "checkout.session",
		}))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(string(orderPkg.OutcomeOrderMissing)))
	})

	It("should refund a paid order on a full charge refund and keep its entitlements", func() {
		// Given
		Expect(deliverSigned(stripeEvent("evt_1", webhook.EventSessionCompleted, sessionObject("cs_test_1", "test"))).Code).To(Equal(http.StatusOK))

		// When
		rec := deliverSigned(stripeEvent("evt_2", webhook.EventChargeRefunded, map[string]interface{}{
			"id":              "ch_1",
			"object":          "charge",
			"refunded":        true,
			"amount_refunded": 2990,
			"payment_intent":  "pi_123",
		}))

		// Then
		Expect(rec.Code).To(Equal(http.StatusOK))
		stored, err := tx.Repos().Orders().LockBySessionID(context.Background(), "cs_test_1")
		Expect(err).ToNot(HaveOccurred())
		Expect(stored.Status).To(Equal(order.StatusRefunded))
		Expect(countRows(db, &entitlementModel.UserProduct{})).To(Equal(int64(1)))
	})

	It("should leave the order paid on a partial refund", func() {
		Expect(deliverSigned(stripeEvent("evt_1", webhook.EventSessionCompleted, sessionObject("cs_test_1", "test"))).Code).To(Equal(http.StatusOK))

		rec := deliverSigned(stripeEvent("evt_2", webhook.EventChargeRefunded, map[string]interface{}{
			"id":              "ch_1",
			"object":          "charge",
			"refunded":        false,
			"amount_refunded": 1000,
			"payment_intent":  "pi_123",
		}))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("partial_refund"))
		stored, err := tx.Repos().Orders().LockBySessionID(context.Background(), "cs_test_1")
		Expect(err).ToNot(HaveOccurred())
		Expect(stored.Status).To(Equal(order.StatusPaid))
	})

	It("should ignore event types it does not handle", func() {
		rec := deliverSigned(stripeEvent("evt_1", "customer.created", map[string]interface{}{"id": "cus_1", "object": "customer"}))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("ignored"))
	})

	Describe("unsigned test events", func() {
		testBody := []byte(`{"id":"evt_test_webhook","object":"event","type":"checkout.session.completed"}`)

		It("should be acknowledged outside production when allowed", func() {
			cfg.AllowTestEvents = true
			build()

			rec := deliver(testBody, "")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("test_event"))
		})

		It("should be refused in production even when allowed", func() {
			cfg.AllowTestEvents = true
			cfg.Env = errs.EnvProduction
			build()

			rec := deliver(testBody, "")

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
