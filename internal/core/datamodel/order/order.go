package order

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

type PaymentMethod string

const (
	MethodStripe       PaymentMethod = "stripe"
	MethodMercadoPago  PaymentMethod = "mercadopago"
	MethodPix          PaymentMethod = "pix"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

type Order struct {
	ID                int64           `json:"id" gorm:"primaryKey"`
	UserID            string          `json:"user_id" gorm:"column:user_id;not null;index"`
	UserEmail         string          `json:"user_email" gorm:"column:user_email"`
	Status            Status          `json:"status" gorm:"column:status;not null;default:pending"`
	TotalAmount       decimal.Decimal `json:"total_amount" gorm:"column:total_amount;type:numeric(12,2);not null"`
	PaidAmount        decimal.Decimal `json:"paid_amount" gorm:"column:paid_amount;type:numeric(12,2)"`
	Currency          string          `json:"currency" gorm:"column:currency;not null"`
	PaymentMethod     PaymentMethod   `json:"payment_method" gorm:"column:payment_method;not null"`
	ProviderSessionID *string         `json:"provider_session_id,omitempty" gorm:"column:provider_session_id;uniqueIndex"`
	ProviderPaymentID *string         `json:"provider_payment_id,omitempty" gorm:"column:provider_payment_id;index"`
	CheckoutSnapshot  datatypes.JSON  `json:"-" gorm:"column:checkout_snapshot"`
	PaidAt            *time.Time      `json:"paid_at,omitempty" gorm:"column:paid_at"`
	CancelledAt       *time.Time      `json:"cancelled_at,omitempty" gorm:"column:cancelled_at"`
	RefundedAt        *time.Time      `json:"refunded_at,omitempty" gorm:"column:refunded_at"`
	CreatedAt         time.Time       `json:"created_at" gorm:"column:created_at"`
	UpdatedAt         time.Time       `json:"updated_at" gorm:"column:updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

func (o *Order) Snapshot() (Snapshot, error) {
	var s Snapshot
	if len(o.CheckoutSnapshot) == 0 {
		return s, nil
	}
	err := json.Unmarshal(o.CheckoutSnapshot, &s)
	return s, err
}

// OrderItem freezes what was bought at the price shown at checkout.
type OrderItem struct {
	ID          int64           `json:"id" gorm:"primaryKey"`
	OrderID     int64           `json:"order_id" gorm:"column:order_id;not null;index"`
	ProductID   int64           `json:"product_id" gorm:"column:product_id;not null"`
	ProductSlug string          `json:"product_slug" gorm:"column:product_slug;not null"`
	Kind        string          `json:"kind" gorm:"column:kind;not null"`
	Name        string          `json:"name" gorm:"column:name;not null"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity    int             `json:"quantity" gorm:"column:quantity;not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"column:created_at"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Snapshot is the cart as priced when the checkout was requested.
type Snapshot struct {
	Items   []SnapshotItem `json:"items"`
	Booking *Booking       `json:"booking,omitempty"`
}

type SnapshotItem struct {
	ProductID int64           `json:"product_id"`
	Slug      string          `json:"slug"`
	Name      string          `json:"name"`
	Kind      string          `json:"kind"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Booking carries the parameters of a course or consultation purchase.
type Booking struct {
	Kind        string     `json:"kind"`
	Slug        string     `json:"slug"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Topic       string     `json:"topic,omitempty"`
}

func (s Snapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

func (s Snapshot) JSON() (datatypes.JSON, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func (s Snapshot) OrderItems(orderID int64) []OrderItem {
	items := make([]OrderItem, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, OrderItem{
			OrderID:     orderID,
			ProductID:   it.ProductID,
			ProductSlug: it.Slug,
			Kind:        it.Kind,
			Name:        it.Name,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
		})
	}
	return items
}
