package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/catalog"
	"github.com/frahmantamala/settlement/internal/core/datamodel/mercadopago"
	"github.com/frahmantamala/settlement/internal/core/datamodel/order"
	paymentgatewaytypes "github.com/frahmantamala/settlement/internal/core/datamodel/paymentgateway"
	orderPkg "github.com/frahmantamala/settlement/internal/order"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v75"
)

type CartResolver interface {
	ResolveCart(ctx context.Context, cart catalog.Cart) (order.Snapshot, error)
}

// StripeSessions is the slice of the Stripe API used here; *session.Client satisfies it.
type StripeSessions interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type PreferenceCreator interface {
	CreatePreference(ctx context.Context, req *paymentgatewaytypes.PreferenceRequest) (*paymentgatewaytypes.Preference, error)
}

type Config struct {
	Env                        string
	Currency                   string
	SuccessURL                 string
	CancelURL                  string
	MercadoPagoNotificationURL string
}

type Service struct {
	cfg         Config
	carts       CartResolver
	stripe      StripeSessions
	mercadopago PreferenceCreator
	tx          orderPkg.TransactionManager
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(cfg Config, carts CartResolver, sessions StripeSessions, mp PreferenceCreator, tx orderPkg.TransactionManager, logger *slog.Logger) *Service {
	return &Service{
		cfg:         cfg,
		carts:       carts,
		stripe:      sessions,
		mercadopago: mp,
		tx:          tx,
		logger:      logger,
		now:         time.Now,
	}
}

type Request struct {
	Cart  catalog.Cart
	Buyer Buyer
}

type Session struct {
	RedirectURL string `json:"redirectUrl"`
	SessionID   string `json:"sessionId"`
}

// CreateStripeSession opens a hosted card checkout. Nothing is persisted:
// the priced snapshot travels in the session metadata and the order is
// created when the provider confirms payment.
func (s *Service) CreateStripeSession(ctx context.Context, req Request) (*Session, error) {
	if req.Buyer.UserID == "" {
		return nil, errs.ErrInvalidToken.WithMessage("user is required")
	}

	snapshot, err := s.carts.ResolveCart(ctx, req.Cart)
	if err != nil {
		return nil, err
	}

	meta, err := EncodeMetadata(req.Buyer, s.cfg.Env, snapshot)
	if err != nil {
		return nil, err
	}

	currency := strings.ToLower(s.cfg.Currency)
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(snapshot.Items))
	for _, it := range snapshot.Items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(toCents(it.UnitPrice)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(it.Name),
				},
			},
			Quantity: stripe.Int64(int64(it.Quantity)),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(withSessionPlaceholder(s.cfg.SuccessURL)),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		ClientReferenceID: stripe.String(req.Buyer.UserID),
		LineItems:         lineItems,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{MetaUserID: req.Buyer.UserID},
		},
	}
	if req.Buyer.Email != "" {
		params.CustomerEmail = stripe.String(req.Buyer.Email)
	}
	params.Context = ctx
	for k, v := range meta {
		params.AddMetadata(k, v)
	}

	sess, err := s.stripe.New(params)
	if err != nil {
		s.logger.Error("CreateStripeSession: provider error", "error", err, "user_id", req.Buyer.UserID)
		return nil, errs.ErrProviderUnavailable.WithCause(err)
	}

	s.logger.Info("stripe checkout session created",
		"session_id", sess.ID,
		"user_id", req.Buyer.UserID,
		"items", len(snapshot.Items),
		"total", snapshot.Total().StringFixed(2))

	return &Session{RedirectURL: sess.URL, SessionID: sess.ID}, nil
}

type MercadoPagoCheckout struct {
	RedirectURL string `json:"redirectUrl"`
	OrderID     int64  `json:"orderId"`
}

// CreateMercadoPagoCheckout creates the pending order first so the
// preference can reference it; the provider call runs outside any transaction.
func (s *Service) CreateMercadoPagoCheckout(ctx context.Context, req Request) (*MercadoPagoCheckout, error) {
	if req.Buyer.UserID == "" {
		return nil, errs.ErrInvalidToken.WithMessage("user is required")
	}

	snapshot, err := s.carts.ResolveCart(ctx, req.Cart)
	if err != nil {
		return nil, err
	}

	o, err := s.createPendingOrder(ctx, req.Buyer, snapshot, order.MethodMercadoPago)
	if err != nil {
		return nil, err
	}

	prefReq := &paymentgatewaytypes.PreferenceRequest{
		ExternalReference: strconv.FormatInt(o.ID, 10),
		NotificationURL:   s.cfg.MercadoPagoNotificationURL,
		BackURLs: &paymentgatewaytypes.BackURLs{
			Success: s.cfg.SuccessURL,
			Failure: s.cfg.CancelURL,
			Pending: s.cfg.SuccessURL,
		},
		AutoReturn: "approved",
	}
	if req.Buyer.Email != "" {
		prefReq.Payer = &paymentgatewaytypes.Payer{Email: req.Buyer.Email, Name: req.Buyer.Name}
	}
	for _, it := range snapshot.Items {
		prefReq.Items = append(prefReq.Items, paymentgatewaytypes.PreferenceItem{
			ID:         it.Slug,
			Title:      it.Name,
			Quantity:   it.Quantity,
			CurrencyID: strings.ToUpper(s.cfg.Currency),
			UnitPrice:  it.UnitPrice.InexactFloat64(),
		})
	}

	pref, err := s.mercadopago.CreatePreference(ctx, prefReq)
	if err != nil {
		s.logger.Error("CreateMercadoPagoCheckout: provider error", "error", err, "order_id", o.ID)
		s.abandon(ctx, o.ID)
		return nil, err
	}

	now := s.now().UTC()
	err = s.tx.Repos().MercadoPago().Create(ctx, &mercadopago.Transaction{
		PreferenceID: pref.ID,
		OrderID:      o.ID,
		Status:       mercadopago.StatusPending,
		Amount:       o.TotalAmount,
		PayerEmail:   req.Buyer.Email,
		InitPoint:    pref.InitPoint,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		s.logger.Error("CreateMercadoPagoCheckout: failed to record preference", "error", err, "order_id", o.ID)
		return nil, errs.NewInternalError("failed to record checkout", err)
	}

	s.logger.Info("mercadopago checkout created",
		"order_id", o.ID,
		"preference_id", pref.ID,
		"total", o.TotalAmount.StringFixed(2))

	return &MercadoPagoCheckout{RedirectURL: pref.InitPoint, OrderID: o.ID}, nil
}

type ManualOrder struct {
	OrderID int64           `json:"orderId"`
	Total   decimal.Decimal `json:"total"`
}

// CreateManualOrder opens a pending bank transfer order to be settled by an approved proof.
func (s *Service) CreateManualOrder(ctx context.Context, req Request) (*ManualOrder, error) {
	if req.Buyer.UserID == "" {
		return nil, errs.ErrInvalidToken.WithMessage("user is required")
	}

	snapshot, err := s.carts.ResolveCart(ctx, req.Cart)
	if err != nil {
		return nil, err
	}

	o, err := s.createPendingOrder(ctx, req.Buyer, snapshot, order.MethodBankTransfer)
	if err != nil {
		return nil, err
	}

	s.logger.Info("manual order created", "order_id", o.ID, "user_id", o.UserID, "total", o.TotalAmount.StringFixed(2))
	return &ManualOrder{OrderID: o.ID, Total: o.TotalAmount}, nil
}

func (s *Service) createPendingOrder(ctx context.Context, buyer Buyer, snapshot order.Snapshot, method order.PaymentMethod) (*order.Order, error) {
	snapJSON, err := snapshot.JSON()
	if err != nil {
		return nil, errs.NewInternalError("failed to encode checkout snapshot", err)
	}

	now := s.now().UTC()
	o := &order.Order{
		UserID:           buyer.UserID,
		UserEmail:        buyer.Email,
		Status:           order.StatusPending,
		TotalAmount:      snapshot.Total(),
		Currency:         strings.ToUpper(s.cfg.Currency),
		PaymentMethod:    method,
		CheckoutSnapshot: snapJSON,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.tx.Repos().Orders().Create(ctx, o); err != nil {
		s.logger.Error("failed to create order", "error", err, "user_id", buyer.UserID, "payment_method", method)
		return nil, errs.NewInternalError("failed to create order", err)
	}
	return o, nil
}

// abandon cancels an order whose provider session never came into existence.
func (s *Service) abandon(ctx context.Context, orderID int64) {
	_, err := s.tx.Repos().Orders().UpdateStatus(ctx, orderID, order.StatusPending, order.StatusCancelled, orderPkg.StatusUpdate{At: s.now().UTC()})
	if err != nil {
		s.logger.Error("failed to cancel abandoned order", "error", err, "order_id", orderID)
	}
}

func toCents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func withSessionPlaceholder(successURL string) string {
	sep := "?"
	if strings.Contains(successURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%ssession_id={CHECKOUT_SESSION_ID}", successURL, sep)
}
