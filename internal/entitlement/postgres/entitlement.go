package postgres

import (
	"context"

	"github.com/frahmantamala/settlement/internal/core/datamodel/entitlement"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EntitlementRepository struct {
	db *gorm.DB
}

func NewEntitlementRepository(db *gorm.DB) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

var grantConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "user_id"}, {Name: "order_id"}, {Name: "product_id"}},
	DoNothing: true,
}

func (r *EntitlementRepository) GrantProduct(ctx context.Context, g *entitlement.UserProduct) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(grantConflict).Create(g)
	return res.RowsAffected > 0, res.Error
}

func (r *EntitlementRepository) EnrollCourse(ctx context.Context, e *entitlement.CourseEnrollment) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(grantConflict).Create(e)
	return res.RowsAffected > 0, res.Error
}

func (r *EntitlementRepository) ConfirmConsultation(ctx context.Context, c *entitlement.Consultation) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(grantConflict).Create(c)
	return res.RowsAffected > 0, res.Error
}

func (r *EntitlementRepository) ListProducts(ctx context.Context, userID string) ([]entitlement.UserProduct, error) {
	var out []entitlement.UserProduct
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("granted_at DESC").Find(&out).Error
	return out, err
}
