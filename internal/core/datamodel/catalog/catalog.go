package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindProduct      = "product"
	KindCourse       = "course"
	KindConsultation = "consultation"
)

// Item is a purchasable catalog entry. The catalog is owned by content tooling;
// this service only reads it.
type Item struct {
	ID        int64           `json:"id" gorm:"primaryKey"`
	Slug      string          `json:"slug" gorm:"column:slug;not null;uniqueIndex"`
	Name      string          `json:"name" gorm:"column:name;not null"`
	Kind      string          `json:"kind" gorm:"column:kind;not null"`
	Price     decimal.Decimal `json:"price" gorm:"column:price;type:numeric(12,2);not null"`
	IsActive  bool            `json:"is_active" gorm:"column:is_active;default:true"`
	CreatedAt time.Time       `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"column:updated_at"`
}

func (Item) TableName() string {
	return "catalog_items"
}

func (i *Item) Purchasable() bool {
	return i.IsActive && i.Price.IsPositive()
}
