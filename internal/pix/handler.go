package pix

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/frahmantamala/settlement/internal/auth"
	"github.com/frahmantamala/settlement/internal/transport"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	Issue(ctx context.Context, req IssueRequest) (*Code, error)
	Get(ctx context.Context, txid, userID string) (*Code, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
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

func (h *Handler) IssueCode(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.Logger.Error("IssueCode: principal not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto IssueCodeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("IssueCode: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if appErr := dto.Validate(); appErr != nil {
		h.HandleServiceError(w, appErr)
		return
	}

	code, err := h.Service.Issue(r.Context(), IssueRequest{
		Cart:      dto.Cart(),
		UserID:    p.Subject,
		UserEmail: p.Email,
	})
	if err != nil {
		h.Logger.Error("IssueCode: service error", "error", err, "user_id", p.Subject)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, code)
}

func (h *Handler) GetCode(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.Logger.Error("GetCode: principal not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	txid := chi.URLParam(r, "txid")
	code, err := h.Service.Get(r.Context(), txid, p.Subject)
	if err != nil {
		h.Logger.Error("GetCode: service error", "error", err, "txid", txid)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, code)
}

// DecodePayload validates a scanned code without touching storage.
func (h *Handler) DecodePayload(w http.ResponseWriter, r *http.Request) {
	var dto DecodeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("DecodePayload: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if appErr := dto.Validate(); appErr != nil {
		h.HandleServiceError(w, appErr)
		return
	}

	decoded, err := Decode(dto.Payload)
	if err != nil {
		h.Logger.Warn("DecodePayload: rejected payload", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, decoded)
}
