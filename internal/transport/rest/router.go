package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/settlement/api"
	"github.com/frahmantamala/settlement/internal/auth"
	"github.com/frahmantamala/settlement/internal/checkout"
	"github.com/frahmantamala/settlement/internal/pix"
	"github.com/frahmantamala/settlement/internal/proof"
	"github.com/frahmantamala/settlement/internal/transport/middleware"
	"github.com/frahmantamala/settlement/internal/transport/openapi"
	"github.com/frahmantamala/settlement/internal/transport/swagger"
	"github.com/frahmantamala/settlement/internal/webhook"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

const APIPrefix = "/api/v1"

// Handlers groups everything the router mounts. Nil handlers leave their routes out.
type Handlers struct {
	Health      *HealthHandler
	Auth        *auth.Middleware
	Schema      *openapi.Validator
	Checkout    *checkout.Handler
	Pix         *pix.Handler
	Proof       *proof.Handler
	Stripe      *webhook.StripeHandler
	MercadoPago *webhook.MercadoPagoHandler
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, logger *slog.Logger) {
	// Apply global middleware
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(api.OpenAPI)
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route(APIPrefix, func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.healthCheckHandler)
			r.Get("/ping", h.Health.pingHandler)
		}

		// Webhooks authenticate by signature or by re-fetching, never by bearer token
		r.Route("/webhooks", func(wr chi.Router) {
			if h.Stripe != nil {
				wr.Post("/stripe", h.Stripe.HandleStripe)
			}
			if h.MercadoPago != nil {
				wr.Post("/mercadopago", h.MercadoPago.HandleMercadoPago)
			}
		})

		// pix/decode touches no storage and needs no identity
		if h.Pix != nil {
			r.With(schema(h)...).Post("/pix/decode", h.Pix.DecodePayload)
		}

		if h.Auth == nil {
			return
		}

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.Authenticate)
			pr.Use(schema(h)...)

			if h.Checkout != nil {
				pr.Route("/checkout", func(cr chi.Router) {
					cr.Post("/stripe", h.Checkout.CreateStripeSession)
					cr.Post("/mercadopago", h.Checkout.CreateMercadoPagoCheckout)
					cr.Post("/manual", h.Checkout.CreateManualOrder)
				})
			}

			if h.Pix != nil {
				pr.Post("/pix/codes", h.Pix.IssueCode)
				pr.Get("/pix/codes/{txid}", h.Pix.GetCode)
			}

			if h.Proof != nil {
				pr.Post("/orders/{id}/proofs", h.Proof.SubmitProof)

				pr.Route("/admin/proofs", func(ar chi.Router) {
					ar.Use(h.Auth.RequireAdmin)
					ar.Get("/", h.Proof.ListProofs)
					ar.Post("/{id}/approve", h.Proof.ApproveProof)
					ar.Post("/{id}/reject", h.Proof.RejectProof)
				})
			}
		})
	})
}

func schema(h Handlers) []func(http.Handler) http.Handler {
	if h.Schema == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{h.Schema.Middleware}
}
