package proof

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strconv"
	"strings"
	"time"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/core/common/validation"
	"github.com/frahmantamala/settlement/internal/core/datamodel/order"
	"github.com/frahmantamala/settlement/internal/core/datamodel/proof"
	"github.com/frahmantamala/settlement/internal/core/events"
	"github.com/frahmantamala/settlement/internal/objectstore"
	orderPkg "github.com/frahmantamala/settlement/internal/order"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
)

// AllowedTypes are the content types accepted as proof of payment.
var AllowedTypes = []string{"image/jpeg", "image/png", "image/webp", "application/pdf"}

var DeclaredMethods = []string{proof.MethodPix, proof.MethodBankTransfer, proof.MethodDeposit, proof.MethodOther}

type IntakeConfig struct {
	MaxBytes  int64
	KeyPrefix string
}

type Intake struct {
	cfg       IntakeConfig
	tx        orderPkg.TransactionManager
	store     objectstore.Store
	bus       events.Publisher
	sanitizer *bluemonday.Policy
	logger    *slog.Logger
	now       func() time.Time
}

func NewIntake(cfg IntakeConfig, tx orderPkg.TransactionManager, store objectstore.Store, bus events.Publisher, logger *slog.Logger) *Intake {
	return &Intake{
		cfg:       cfg,
		tx:        tx,
		store:     store,
		bus:       bus,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
		now:       time.Now,
	}
}

type SubmitRequest struct {
	OrderID      int64
	UserID       string
	FileName     string
	DeclaredType string
	DeclaredSize int64
	File         io.Reader
	Method       string
	PaidAt       time.Time
	Amount       decimal.Decimal
	Notes        string
}

type Receipt struct {
	ProofID int64        `json:"proofId"`
	Status  proof.Status `json:"status"`
}

// Submit stores an uploaded proof and files it for review. The order itself
// is left pending; only an approval moves it.
func (s *Intake) Submit(ctx context.Context, req SubmitRequest) (*Receipt, error) {
	if req.DeclaredSize > s.cfg.MaxBytes {
		return nil, s.tooLarge(req.DeclaredSize)
	}

	data, err := io.ReadAll(io.LimitReader(req.File, s.cfg.MaxBytes+1))
	if err != nil {
		return nil, errs.NewValidationError("failed to read upload", errs.ErrCodeValidationFailed).WithCause(err)
	}
	if int64(len(data)) > s.cfg.MaxBytes {
		return nil, s.tooLarge(int64(len(data)))
	}
	if len(data) == 0 {
		return nil, errs.NewValidationFieldError("file", "file is empty", errs.ErrCodeValidationFailed)
	}

	detected, err := checkType(req.DeclaredType, data)
	if err != nil {
		s.logger.Warn("Submit: rejected proof type",
			"order_id", req.OrderID,
			"declared_type", req.DeclaredType,
			"detected_type", mimetype.Detect(data).String())
		return nil, err
	}

	notes := strings.TrimSpace(s.sanitizer.Sanitize(req.Notes))
	if verr := validation.ValidateProofDeclaration(req.Method, req.Amount, req.PaidAt, s.now(), notes, DeclaredMethods); verr != nil {
		return nil, verr
	}

	o, err := s.tx.Repos().Orders().GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != req.UserID {
		// other users' orders are indistinguishable from missing ones
		return nil, errs.ErrOrderNotFound
	}
	if o.Status != order.StatusPending {
		return nil, errs.ErrOrderNotPending
	}

	key := s.objectKey(req.UserID, req.OrderID, detected.Extension())
	if err := s.store.Put(ctx, key, data, detected.String()); err != nil {
		s.logger.Error("Submit: failed to store proof", "error", err, "order_id", req.OrderID)
		return nil, errs.NewInternalError("failed to store proof file", err)
	}

	now := s.now().UTC()
	p := &proof.PaymentProof{
		OrderID:        req.OrderID,
		UserID:         req.UserID,
		FileKey:        key,
		FileName:       path.Base(req.FileName),
		FileSize:       int64(len(data)),
		MimeType:       detected.String(),
		DeclaredMethod: req.Method,
		DeclaredAt:     req.PaidAt.UTC(),
		DeclaredAmount: req.Amount,
		Notes:          notes,
		Status:         proof.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.tx.Repos().Proofs().Create(ctx, p); err != nil {
		s.logger.Error("Submit: failed to record proof", "error", err, "order_id", req.OrderID, "file_key", key)
		return nil, errs.NewInternalError("failed to record proof", err)
	}

	s.logger.Info("payment proof submitted",
		"proof_id", p.ID,
		"order_id", p.OrderID,
		"user_id", p.UserID,
		"mime_type", p.MimeType,
		"size", p.FileSize)

	if s.bus != nil {
		evt := events.NewProofEvent(events.EventTypeProofSubmitted, p.ID, p.OrderID, string(p.Status), "")
		if err := s.bus.Publish(ctx, evt); err != nil {
			s.logger.Error("Submit: failed to publish event", "error", err, "proof_id", p.ID)
		}
	}

	return &Receipt{ProofID: p.ID, Status: p.Status}, nil
}

func (s *Intake) tooLarge(size int64) error {
	return errs.ErrFileTooLarge.WithMessage(fmt.Sprintf("file is %d bytes; the limit is %s MB", size, LimitMB(s.cfg.MaxBytes)))
}

func (s *Intake) objectKey(userID string, orderID int64, ext string) string {
	return path.Join(s.cfg.KeyPrefix, userID, strconv.FormatInt(orderID, 10), uuid.NewString()+ext)
}

// checkType requires the declared type to be allowed and to agree with the sniffed content.
func checkType(declared string, data []byte) (*mimetype.MIME, error) {
	base, _, err := mime.ParseMediaType(declared)
	if err != nil || !isAllowed(base) {
		return nil, errs.ErrUnsupportedType.WithMessage(fmt.Sprintf("content type %q is not accepted", declared))
	}

	detected := mimetype.Detect(data)
	if !isAllowed(detected.String()) || !detected.Is(base) {
		return nil, errs.ErrUnsupportedType.WithMessage("file content does not match its declared type")
	}
	return detected, nil
}

func isAllowed(contentType string) bool {
	for _, t := range AllowedTypes {
		if strings.EqualFold(t, contentType) {
			return true
		}
	}
	return false
}

// LimitMB renders a byte limit in megabytes for messages.
func LimitMB(maxBytes int64) string {
	return decimal.NewFromInt(maxBytes).Div(decimal.NewFromInt(1 << 20)).StringFixed(1)
}
