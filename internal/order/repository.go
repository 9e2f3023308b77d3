package order

import (
	"context"
	"time"

	"github.com/frahmantamala/settlement/internal/core/datamodel/mercadopago"
	"github.com/frahmantamala/settlement/internal/core/datamodel/order"
	"github.com/frahmantamala/settlement/internal/core/datamodel/pix"
	"github.com/frahmantamala/settlement/internal/core/datamodel/proof"
	"github.com/frahmantamala/settlement/internal/entitlement"
	"github.com/shopspring/decimal"
)

// StatusUpdate carries the columns written together with a status change.
type StatusUpdate struct {
	At                time.Time
	ProviderPaymentID string
	PaidAmount        *decimal.Decimal
}

type Repository interface {
	Create(ctx context.Context, o *order.Order) error
	// CreateIfAbsent inserts o unless an order with the same provider session id exists.
	CreateIfAbsent(ctx context.Context, o *order.Order) (bool, error)
	GetByID(ctx context.Context, id int64) (*order.Order, error)
	LockByID(ctx context.Context, id int64) (*order.Order, error)
	LockBySessionID(ctx context.Context, sessionID string) (*order.Order, error)
	LockByPaymentID(ctx context.Context, paymentID string) (*order.Order, error)
	// UpdateStatus moves the order only if it is still in from; false means it was not.
	UpdateStatus(ctx context.Context, id int64, from, to order.Status, upd StatusUpdate) (bool, error)
}

type ItemRepository interface {
	CreateBatch(ctx context.Context, items []order.OrderItem) error
	ListByOrder(ctx context.Context, orderID int64) ([]order.OrderItem, error)
}

type PixRepository interface {
	Create(ctx context.Context, t *pix.Transaction) error
	GetByTxID(ctx context.Context, txid string) (*pix.Transaction, error)
	// SettlePending moves the order's pending transactions to status.
	SettlePending(ctx context.Context, orderID int64, status pix.Status, at time.Time) (int64, error)
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

type MercadoPagoUpdate struct {
	PaymentID    string
	Status       string
	StatusDetail string
	PaidAmount   *decimal.Decimal
	PayerEmail   string
}

type MercadoPagoRepository interface {
	Create(ctx context.Context, t *mercadopago.Transaction) error
	GetByOrderID(ctx context.Context, orderID int64) (*mercadopago.Transaction, error)
	ApplyPayment(ctx context.Context, orderID int64, upd MercadoPagoUpdate) error
}

type ProofRepository interface {
	Create(ctx context.Context, p *proof.PaymentProof) error
	GetByID(ctx context.Context, id int64) (*proof.PaymentProof, error)
	LockByID(ctx context.Context, id int64) (*proof.PaymentProof, error)
	// MarkReviewed leaves pending exactly once; false means the proof was already reviewed.
	MarkReviewed(ctx context.Context, id int64, status proof.Status, reviewerID string, at time.Time, notes string) (bool, error)
	List(ctx context.Context, status proof.Status, limit, offset int) ([]proof.PaymentProof, error)
}

// TxRepos is the set of repositories bound to one database transaction.
type TxRepos interface {
	Orders() Repository
	Items() ItemRepository
	Pix() PixRepository
	MercadoPago() MercadoPagoRepository
	Proofs() ProofRepository
	Entitlements() entitlement.Repository
}

type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, r TxRepos) error) error
	// Repos returns repositories outside any transaction.
	Repos() TxRepos
}
