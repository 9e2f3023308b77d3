package postgres

import (
	"context"

	"github.com/frahmantamala/settlement/internal/core/datamodel/catalog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogRepository is the GORM-backed catalog store
type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) GetBySlugs(ctx context.Context, slugs []string) ([]catalog.Item, error) {
	if len(slugs) == 0 {
		return nil, nil
	}
	var items []catalog.Item
	err := r.db.WithContext(ctx).Where("slug IN ?", slugs).Find(&items).Error
	return items, err
}

func (r *CatalogRepository) ListActive(ctx context.Context) ([]catalog.Item, error) {
	var items []catalog.Item
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("kind ASC, name ASC").
		Find(&items).Error
	return items, err
}

// Upsert is used by the seed command; slug is the natural key.
func (r *CatalogRepository) Upsert(ctx context.Context, item *catalog.Item) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "kind", "price", "is_active", "updated_at"}),
		}).
		Create(item).Error
}
