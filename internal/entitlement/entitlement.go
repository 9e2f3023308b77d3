package entitlement

import (
	"context"

	"github.com/frahmantamala/settlement/internal/core/datamodel/entitlement"
)

// Repository inserts grants idempotently: a second insert for the same
// (user, order, product) reports false and writes nothing.
type Repository interface {
	GrantProduct(ctx context.Context, g *entitlement.UserProduct) (bool, error)
	EnrollCourse(ctx context.Context, e *entitlement.CourseEnrollment) (bool, error)
	ConfirmConsultation(ctx context.Context, c *entitlement.Consultation) (bool, error)
	ListProducts(ctx context.Context, userID string) ([]entitlement.UserProduct, error)
}
