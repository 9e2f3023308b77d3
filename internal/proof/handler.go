package proof

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/auth"
	"github.com/frahmantamala/settlement/internal/core/common/validation"
	"github.com/frahmantamala/settlement/internal/core/datamodel/proof"
	"github.com/frahmantamala/settlement/internal/transport"
	"github.com/go-chi/chi"
)

// multipartOverhead is the room left for form fields and boundaries on top of the file cap.
const multipartOverhead = 64 << 10

type IntakeAPI interface {
	Submit(ctx context.Context, req SubmitRequest) (*Receipt, error)
}

type ReviewAPI interface {
	Approve(ctx context.Context, proofID int64, reviewerID, notes string) (*Decision, error)
	Reject(ctx context.Context, proofID int64, reviewerID, notes string) (*Decision, error)
	List(ctx context.Context, status proof.Status, limit, offset int) ([]proof.PaymentProof, error)
}

type Handler struct {
	*transport.BaseHandler
	Intake   IntakeAPI
	Reviewer ReviewAPI
	maxBytes int64
}

func NewHandler(intake IntakeAPI, reviewer ReviewAPI, maxBytes int64, lg *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Intake:      intake,
		Reviewer:    reviewer,
		maxBytes:    maxBytes,
	}
}

func (h *Handler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.Logger.Error("SubmitProof: principal not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || orderID <= 0 {
		h.WriteError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.HandleServiceError(w, errs.ErrFileTooLarge)
			return
		}
		h.Logger.Error("SubmitProof: invalid multipart body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.HandleServiceError(w, errs.NewValidationFieldError("file", "file is required", errs.ErrCodeValidationFailed))
		return
	}
	defer file.Close()

	form := DeclarationForm{
		Method: r.FormValue("method"),
		PaidAt: r.FormValue("paidAt"),
		Amount: r.FormValue("amount"),
		Notes:  r.FormValue("notes"),
	}
	method, paidAt, amount, err := form.Parse()
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	receipt, err := h.Intake.Submit(r.Context(), SubmitRequest{
		OrderID:      orderID,
		UserID:       p.Subject,
		FileName:     header.Filename,
		DeclaredType: header.Header.Get("Content-Type"),
		DeclaredSize: header.Size,
		File:         file,
		Method:       method,
		PaidAt:       paidAt,
		Amount:       amount,
		Notes:        form.Notes,
	})
	if err != nil {
		h.Logger.Error("SubmitProof: service error", "error", err, "order_id", orderID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) ListProofs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, lerr := queryInt(q.Get("limit"), "limit")
	offset, oerr := queryInt(q.Get("offset"), "offset")
	if lerr == nil {
		lerr = oerr
	}
	if lerr != nil {
		h.HandleServiceError(w, lerr)
		return
	}
	if verr := validation.ValidatePage(limit, offset, MaxListLimit); verr != nil {
		h.HandleServiceError(w, verr)
		return
	}

	proofs, err := h.Reviewer.List(r.Context(), proof.Status(q.Get("status")), int(limit), int(offset))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"proofs": proofs,
		"limit":  limit,
		"offset": offset,
	})
}

func queryInt(raw, field string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errs.NewValidationFieldError(field, field+" must be an integer", errs.ErrCodeValidationFailed)
	}
	return n, nil
}

func (h *Handler) ApproveProof(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "ApproveProof", h.Reviewer.Approve)
}

func (h *Handler) RejectProof(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "RejectProof", h.Reviewer.Reject)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request, op string,
	decide func(ctx context.Context, proofID int64, reviewerID, notes string) (*Decision, error)) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.Logger.Error(op + ": principal not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	proofID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || proofID <= 0 {
		h.WriteError(w, http.StatusBadRequest, "invalid proof id")
		return
	}

	var dto ReviewDTO
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
			h.Logger.Error(op+": invalid request body", "error", err)
			h.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	decision, err := decide(r.Context(), proofID, p.Subject, dto.Notes)
	if err != nil {
		h.Logger.Error(op+": service error", "error", err, "proof_id", proofID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, decision)
}
