package pix_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/auth"
	pixModel "github.com/frahmantamala/settlement/internal/core/datamodel/pix"
	"github.com/frahmantamala/settlement/internal/pix"
)

type stubPixService struct {
	issued  pix.IssueRequest
	code    *pix.Code
	err     error
	getUser string
}

func (s *stubPixService) Issue(_ context.Context, req pix.IssueRequest) (*pix.Code, error) {
	s.issued = req
	return s.code, s.err
}

func (s *stubPixService) Get(_ context.Context, txid, userID string) (*pix.Code, error) {
	s.getUser = userID
	if s.err != nil {
		return nil, s.err
	}
	return s.code, nil
}

func (s *stubPixService) SweepExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

var _ = Describe("Handler", func() {
	var (
		svc    *stubPixService
		router chi.Router
	)

	do := func(method, target, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		svc = &stubPixService{code: &pix.Code{
			OrderID:   7,
			TxID:      "ORD7ABC",
			Payload:   "000201",
			Amount:    decimal.RequireFromString("29.90"),
			Status:    pixModel.StatusPending,
			ExpiresAt: time.Now().Add(30 * time.Minute),
		}}
		h := pix.NewHandler(svc, slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))

		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := auth.WithPrincipal(r.Context(), &auth.Principal{Subject: "user-1", Email: "cliente@example.com"})
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		})
		router.Post("/pix/codes", h.IssueCode)
		router.Get("/pix/codes/{txid}", h.GetCode)
		router.Post("/pix/decode", h.DecodePayload)
	})

	It("should issue a code for the authenticated buyer", func() {
		rec := do(http.MethodPost, "/pix/codes", `{"items":[{"slug":"tarot-e-o-amor","quantity":1}]}`)

		Expect(rec.Code).To(Equal(http.StatusCreated))
		Expect(svc.issued.UserID).To(Equal("user-1"))
		Expect(svc.issued.UserEmail).To(Equal("cliente@example.com"))
		Expect(svc.issued.Cart.Items).To(HaveLen(1))

		var body map[string]interface{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body["txid"]).To(Equal("ORD7ABC"))
		Expect(body["orderId"]).To(BeNumerically("==", 7))
	})

	It("should reject a malformed body", func() {
		rec := do(http.MethodPost, "/pix/codes", `{"items":`)

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should reject a cart line without a slug", func() {
		rec := do(http.MethodPost, "/pix/codes", `{"items":[{"quantity":1}]}`)

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(rec.Body.String()).To(ContainSubstring("items[0].slug"))
	})

	It("should look a code up for the caller", func() {
		rec := do(http.MethodGet, "/pix/codes/ORD7ABC", "")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(svc.getUser).To(Equal("user-1"))
	})

	It("should map a missing code to 404", func() {
		svc.err = errs.ErrPixNotFound

		rec := do(http.MethodGet, "/pix/codes/NOPE", "")

		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	Describe("DecodePayload", func() {
		It("should decode a valid code", func() {
			payload, err := pix.Encode(pix.Payload{
				Key:          "pix@oraculo.example.com",
				Amount:       decimal.RequireFromString("10.00"),
				MerchantName: "Oraculo",
				MerchantCity: "Sao Paulo",
				TxID:         "ORD1",
			})
			Expect(err).ToNot(HaveOccurred())
			body, err := json.Marshal(map[string]string{"payload": payload})
			Expect(err).ToNot(HaveOccurred())

			rec := do(http.MethodPost, "/pix/decode", string(body))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("pix@oraculo.example.com"))
		})

		It("should reject a code with a bad checksum", func() {
			payload, err := pix.Encode(pix.Payload{
				Key:          "pix@oraculo.example.com",
				Amount:       decimal.RequireFromString("10.00"),
				MerchantName: "Oraculo",
				MerchantCity: "Sao Paulo",
			})
			Expect(err).ToNot(HaveOccurred())
			tampered := strings.Replace(payload, "10.00", "90.00", 1)

			rec := do(http.MethodPost, "/pix/decode", `{"payload":"`+tampered+`"}`)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring(string(errs.ErrCodeChecksumMismatch)))
		})

		It("should require a payload", func() {
			rec := do(http.MethodPost, "/pix/decode", `{}`)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
