package postgres

import (
	"context"

	checkoutPostgres "github.com/frahmantamala/settlement/internal/checkout/postgres"
	"github.com/frahmantamala/settlement/internal/entitlement"
	entitlementPostgres "github.com/frahmantamala/settlement/internal/entitlement/postgres"
	orderPkg "github.com/frahmantamala/settlement/internal/order"
	pixPostgres "github.com/frahmantamala/settlement/internal/pix/postgres"
	proofPostgres "github.com/frahmantamala/settlement/internal/proof/postgres"
	"gorm.io/gorm"
)

// TxManager runs work against one GORM transaction and hands out
// repositories bound to it.
type TxManager struct {
	db *gorm.DB
}

func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, r orderPkg.TxRepos) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, newRepos(tx))
	})
}

func (m *TxManager) Repos() orderPkg.TxRepos {
	return newRepos(m.db)
}

type repos struct {
	db *gorm.DB
}

func newRepos(db *gorm.DB) *repos {
	return &repos{db: db}
}

func (r *repos) Orders() orderPkg.Repository {
	return NewOrderRepository(r.db)
}

func (r *repos) Items() orderPkg.ItemRepository {
	return NewOrderItemRepository(r.db)
}

func (r *repos) Pix() orderPkg.PixRepository {
	return pixPostgres.NewPixRepository(r.db)
}

func (r *repos) MercadoPago() orderPkg.MercadoPagoRepository {
	return checkoutPostgres.NewMercadoPagoRepository(r.db)
}

func (r *repos) Proofs() orderPkg.ProofRepository {
	return proofPostgres.NewProofRepository(r.db)
}

func (r *repos) Entitlements() entitlement.Repository {
	return entitlementPostgres.NewEntitlementRepository(r.db)
}
