package proof_test

import (
	"bytes"
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	errs "github.com/frahmantamala/settlement/internal"
	entitlementModel "github.com/frahmantamala/settlement/internal/core/datamodel/entitlement"
	"github.com/frahmantamala/settlement/internal/core/datamodel/order"
	proofModel "github.com/frahmantamala/settlement/internal/core/datamodel/proof"
	"github.com/frahmantamala/settlement/internal/core/events"
	"github.com/frahmantamala/settlement/internal/entitlement"
	orderPkg "github.com/frahmantamala/settlement/internal/order"
	orderPostgres "github.com/frahmantamala/settlement/internal/order/postgres"
	"github.com/frahmantamala/settlement/internal/proof"
)

var _ = Describe("Reviewer", func() {
	var (
		ctx      context.Context
		db       *gorm.DB
		bus      *recordingBus
		reviewer *proof.Reviewer
		ord      *order.Order
		proofID  int64
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = openProofDB()
		bus = &recordingBus{}
		tx := orderPostgres.NewTxManager(db)
		processor := orderPkg.NewProcessor(tx, entitlement.NewGranter(testLogger()), bus, testLogger())
		reviewer = proof.NewReviewer(tx, processor, bus, testLogger())

		ord = createManualOrder(db, "user-1")
		intake := proof.NewIntake(proof.IntakeConfig{MaxBytes: 5 << 20, KeyPrefix: "proofs"}, tx, newMemoryStore(), nil, testLogger())
		receipt, err := intake.Submit(ctx, proof.SubmitRequest{
			OrderID:      ord.ID,
			UserID:       "user-1",
			FileName:     "comprovante.png",
			DeclaredType: "image/png",
			File:         bytes.NewReader(pngBytes),
			Method:       proofModel.MethodBankTransfer,
			PaidAt:       time.Now().Add(-time.Hour),
			Amount:       decimal.RequireFromString("49.90"),
		})
		Expect(err).ToNot(HaveOccurred())
		proofID = receipt.ProofID
	})

	countRows := func(model interface{}) int64 {
		var n int64
		Expect(db.Model(model).Count(&n).Error).ToNot(HaveOccurred())
		return n
	}

	Describe("Approve", func() {
		It("should settle the order and grant entitlements in one step", func() {
			// When
			decision, err := reviewer.Approve(ctx, proofID, "admin-1", "conferido no extrato")

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(decision.Proof.Status).To(Equal(proofModel.StatusApproved))
			Expect(*decision.Proof.ReviewerID).To(Equal("admin-1"))
			Expect(decision.Result).To(Equal(orderPkg.OutcomeApplied))

			var o order.Order
			Expect(db.First(&o, ord.ID).Error).ToNot(HaveOccurred())
			Expect(o.Status).To(Equal(order.StatusPaid))
			Expect(*o.ProviderPaymentID).To(Equal("proof:" + decimal.NewFromInt(proofID).String()))
			Expect(countRows(&entitlementModel.UserProduct{})).To(Equal(int64(1)))

			Expect(bus.Count(events.EventTypeOrderPaid)).To(Equal(1))
			Expect(bus.Count(events.EventTypeProofReviewed)).To(Equal(1))
		})

		It("should refuse a second approval and touch the order only once", func() {
			// Given
			_, err := reviewer.Approve(ctx, proofID, "admin-1", "")
			Expect(err).ToNot(HaveOccurred())

			// When
			_, err = reviewer.Approve(ctx, proofID, "admin-2", "")

			// Then
			Expect(errors.Is(err, errs.ErrAlreadyReviewed)).To(BeTrue())
			Expect(countRows(&entitlementModel.UserProduct{})).To(Equal(int64(1)))
			Expect(countRows(&order.OrderItem{})).To(Equal(int64(1)))
			Expect(bus.Count(events.EventTypeOrderPaid)).To(Equal(1))

			var p proofModel.PaymentProof
			Expect(db.First(&p, proofID).Error).ToNot(HaveOccurred())
			Expect(*p.ReviewerID).To(Equal("admin-1"))
		})

		It("should approve the proof but leave a cancelled order alone", func() {
			Expect(db.Model(&order.Order{}).Where("id = ?", ord.ID).Update("status", order.StatusCancelled).Error).ToNot(HaveOccurred())

			decision, err := reviewer.Approve(ctx, proofID, "admin-1", "")

			Expect(err).ToNot(HaveOccurred())
			Expect(decision.Result).To(Equal(orderPkg.OutcomeIllegal))
			Expect(countRows(&entitlementModel.UserProduct{})).To(BeZero())
		})

		It("should report a missing proof", func() {
			_, err := reviewer.Approve(ctx, 9999, "admin-1", "")

			Expect(errors.Is(err, errs.ErrProofNotFound)).To(BeTrue())
		})
	})

	Describe("Reject", func() {
		It("should require notes", func() {
			_, err := reviewer.Reject(ctx, proofID, "admin-1", "  <i></i> ")

			Expect(errors.Is(err, errs.ErrReviewNotesRequired)).To(BeTrue())

			var p proofModel.PaymentProof
			Expect(db.First(&p, proofID).Error).ToNot(HaveOccurred())
			Expect(p.Status).To(Equal(proofModel.StatusPending))
		})

		It("should close the proof and keep the order pending", func() {
			decision, err := reviewer.Reject(ctx, proofID, "admin-1", "valor não confere")

			Expect(err).ToNot(HaveOccurred())
			Expect(decision.Proof.Status).To(Equal(proofModel.StatusRejected))
			Expect(decision.Proof.ReviewNotes).To(Equal("valor não confere"))

			var o order.Order
			Expect(db.First(&o, ord.ID).Error).ToNot(HaveOccurred())
			Expect(o.Status).To(Equal(order.StatusPending))

			_, err = reviewer.Approve(ctx, proofID, "admin-1", "")
			Expect(errors.Is(err, errs.ErrAlreadyReviewed)).To(BeTrue())
		})
	})

	Describe("List", func() {
		It("should filter by status", func() {
			pending, err := reviewer.List(ctx, proofModel.StatusPending, 0, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(pending).To(HaveLen(1))

			approved, err := reviewer.List(ctx, proofModel.StatusApproved, 10, -5)
			Expect(err).ToNot(HaveOccurred())
			Expect(approved).To(BeEmpty())
		})

		It("should reject an unknown status", func() {
			_, err := reviewer.List(ctx, "archived", 10, 0)

			appErr, ok := errs.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(errs.ErrorTypeValidation))
		})
	})
})
