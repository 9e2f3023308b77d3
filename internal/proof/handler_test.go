package proof_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/auth"
	proofModel "github.com/frahmantamala/settlement/internal/core/datamodel/proof"
	"github.com/frahmantamala/settlement/internal/proof"
)

type stubIntake struct {
	got     *proof.SubmitRequest
	content []byte
	err     error
}

func (s *stubIntake) Submit(ctx context.Context, req proof.SubmitRequest) (*proof.Receipt, error) {
	s.got = &req
	s.content, _ = io.ReadAll(req.File)
	if s.err != nil {
		return nil, s.err
	}
	return &proof.Receipt{ProofID: 7, Status: proofModel.StatusPending}, nil
}

type stubReviewer struct {
	proofID    int64
	reviewerID string
	notes      string
	err        error
}

func (s *stubReviewer) Approve(ctx context.Context, proofID int64, reviewerID, notes string) (*proof.Decision, error) {
	s.proofID, s.reviewerID, s.notes = proofID, reviewerID, notes
	if s.err != nil {
		return nil, s.err
	}
	return &proof.Decision{Proof: &proofModel.PaymentProof{ID: proofID, Status: proofModel.StatusApproved}}, nil
}

func (s *stubReviewer) Reject(ctx context.Context, proofID int64, reviewerID, notes string) (*proof.Decision, error) {
	s.proofID, s.reviewerID, s.notes = proofID, reviewerID, notes
	if s.err != nil {
		return nil, s.err
	}
	return &proof.Decision{Proof: &proofModel.PaymentProof{ID: proofID, Status: proofModel.StatusRejected}}, nil
}

func (s *stubReviewer) List(ctx context.Context, status proofModel.Status, limit, offset int) ([]proofModel.PaymentProof, error) {
	return []proofModel.PaymentProof{{ID: 1, Status: status}}, nil
}

func multipartBody(fields map[string]string, fileType string, content []byte) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		Expect(mw.WriteField(k, v)).To(Succeed())
	}
	if content != nil {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="file"; filename="comprovante.png"`)
		h.Set("Content-Type", fileType)
		part, err := mw.CreatePart(h)
		Expect(err).ToNot(HaveOccurred())
		_, err = part.Write(content)
		Expect(err).ToNot(HaveOccurred())
	}
	Expect(mw.Close()).To(Succeed())
	return &buf, mw.FormDataContentType()
}

var _ = Describe("Proof Handler", func() {
	var (
		intake   *stubIntake
		reviewer *stubReviewer
		router   *chi.Mux
	)

	BeforeEach(func() {
		intake = &stubIntake{}
		reviewer = &stubReviewer{}
		h := proof.NewHandler(intake, reviewer, 1<<20, testLogger())

		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := auth.WithPrincipal(r.Context(), &auth.Principal{Subject: "user-1", Roles: []string{"admin"}})
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		})
		router.Post("/orders/{id}/proofs", h.SubmitProof)
		router.Get("/admin/proofs", h.ListProofs)
		router.Post("/admin/proofs/{id}/approve", h.ApproveProof)
		router.Post("/admin/proofs/{id}/reject", h.RejectProof)
	})

	Describe("SubmitProof", func() {
		It("should pass the upload and declaration to the intake", func() {
			// Given
			body, contentType := multipartBody(map[string]string{
				"method": "pix",
				"paidAt": "2025-04-01T10:00:00-03:00",
				"amount": "49.9",
				"notes":  "pago",
			}, "image/png", pngBytes)
			req := httptest.NewRequest(http.MethodPost, "/orders/42/proofs", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			// When
			router.ServeHTTP(rec, req)

			// Then
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(intake.got.OrderID).To(Equal(int64(42)))
			Expect(intake.got.UserID).To(Equal("user-1"))
			Expect(intake.got.DeclaredType).To(Equal("image/png"))
			Expect(intake.got.Amount.StringFixed(2)).To(Equal("49.90"))
			Expect(intake.got.PaidAt.UTC().Hour()).To(Equal(13))
			Expect(intake.content).To(Equal(pngBytes))

			var receipt proof.Receipt
			Expect(json.Unmarshal(rec.Body.Bytes(), &receipt)).To(Succeed())
			Expect(receipt.ProofID).To(Equal(int64(7)))
		})

		It("should answer FileTooLarge when the body exceeds the cap", func() {
			body, contentType := multipartBody(map[string]string{"method": "pix", "amount": "1"}, "image/png", bytes.Repeat([]byte{1}, 2<<20))
			req := httptest.NewRequest(http.MethodPost, "/orders/42/proofs", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring(string(errs.ErrCodeFileTooLarge)))
			Expect(intake.got).To(BeNil())
		})

		It("should require a file part", func() {
			body, contentType := multipartBody(map[string]string{"method": "pix", "amount": "1"}, "", nil)
			req := httptest.NewRequest(http.MethodPost, "/orders/42/proofs", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(intake.got).To(BeNil())
		})

		It("should reject a malformed amount", func() {
			body, contentType := multipartBody(map[string]string{"method": "pix", "amount": "quarenta"}, "image/png", pngBytes)
			req := httptest.NewRequest(http.MethodPost, "/orders/42/proofs", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("amount"))
		})

		It("should reject a non numeric order id", func() {
			body, contentType := multipartBody(nil, "image/png", pngBytes)
			req := httptest.NewRequest(http.MethodPost, "/orders/abc/proofs", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("review routes", func() {
		It("should approve with the reviewer taken from the token", func() {
			req := httptest.NewRequest(http.MethodPost, "/admin/proofs/9/approve", strings.NewReader(`{"notes":"ok"}`))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(reviewer.proofID).To(Equal(int64(9)))
			Expect(reviewer.reviewerID).To(Equal("user-1"))
			Expect(reviewer.notes).To(Equal("ok"))
		})

		It("should approve without a body", func() {
			req := httptest.NewRequest(http.MethodPost, "/admin/proofs/9/approve", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("should map AlreadyReviewed to 409", func() {
			reviewer.err = errs.ErrAlreadyReviewed
			req := httptest.NewRequest(http.MethodPost, "/admin/proofs/9/reject", strings.NewReader(`{"notes":"no"}`))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusConflict))
		})

		It("should list proofs with paging parameters echoed", func() {
			req := httptest.NewRequest(http.MethodGet, "/admin/proofs?status=pending&limit=10&offset=20", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			var body struct {
				Proofs []proofModel.PaymentProof `json:"proofs"`
				Limit  int                       `json:"limit"`
				Offset int                       `json:"offset"`
			}
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Proofs).To(HaveLen(1))
			Expect(body.Limit).To(Equal(10))
			Expect(body.Offset).To(Equal(20))
		})

		DescribeTable("should refuse paging parameters out of range",
			func(query string) {
				req := httptest.NewRequest(http.MethodGet, "/admin/proofs?"+query, nil)
				rec := httptest.NewRecorder()

				router.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusBadRequest))
			},
			Entry("non-numeric limit", "limit=ten"),
			Entry("negative limit", "limit=-1"),
			Entry("limit above the page cap", "limit=201"),
			Entry("negative offset", "offset=-5"),
		)
	})
})
