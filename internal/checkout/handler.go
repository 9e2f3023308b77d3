package checkout

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/settlement/internal/auth"
	"github.com/frahmantamala/settlement/internal/transport"
)

type ServiceAPI interface {
	CreateStripeSession(ctx context.Context, req Request) (*Session, error)
	CreateMercadoPagoCheckout(ctx context.Context, req Request) (*MercadoPagoCheckout, error)
	CreateManualOrder(ctx context.Context, req Request) (*ManualOrder, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI, lg *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) CreateStripeSession(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r, "CreateStripeSession")
	if !ok {
		return
	}

	sess, err := h.Service.CreateStripeSession(r.Context(), req)
	if err != nil {
		h.Logger.Error("CreateStripeSession: service error", "error", err, "user_id", req.Buyer.UserID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, sess)
}

func (h *Handler) CreateMercadoPagoCheckout(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r, "CreateMercadoPagoCheckout")
	if !ok {
		return
	}

	res, err := h.Service.CreateMercadoPagoCheckout(r.Context(), req)
	if err != nil {
		h.Logger.Error("CreateMercadoPagoCheckout: service error", "error", err, "user_id", req.Buyer.UserID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) CreateManualOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r, "CreateManualOrder")
	if !ok {
		return
	}

	res, err := h.Service.CreateManualOrder(r.Context(), req)
	if err != nil {
		h.Logger.Error("CreateManualOrder: service error", "error", err, "user_id", req.Buyer.UserID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, op string) (Request, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.Logger.Error(op + ": principal not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return Request{}, false
	}

	var dto CheckoutDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error(op+": invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return Request{}, false
	}
	if appErr := dto.Validate(); appErr != nil {
		h.HandleServiceError(w, appErr)
		return Request{}, false
	}

	name := p.Name
	if name == "" {
		name = dto.Name
	}

	return Request{
		Cart: dto.Cart(),
		Buyer: Buyer{
			UserID: p.Subject,
			Email:  p.Email,
			Name:   name,
		},
	}, true
}
