package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/canopyhq/canopy-backend/pkg/enums"
)

// Order is an append-only register sale.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderNumber   string              `gorm:"column:order_number;not null;uniqueIndex" json:"order_number"`
	VendorID      uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null;index" json:"vendor_id"`
	LocationID    uuid.UUID           `gorm:"column:location_id;type:uuid;not null" json:"location_id"`
	CustomerID    *uuid.UUID          `gorm:"column:customer_id;type:uuid" json:"customer_id"`
	CustomerName  *string             `gorm:"column:customer_name" json:"customer_name"`
	OrderType     enums.OrderType     `gorm:"column:order_type;type:text;not null" json:"order_type"`
	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null" json:"status"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null" json:"payment_status"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null" json:"payment_method"`
	Subtotal      decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null" json:"subtotal"`
	TaxAmount     decimal.Decimal     `gorm:"column:tax_amount;type:numeric(12,2);not null" json:"tax_amount"`
	Total         decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null" json:"total"`
	CashTendered  *decimal.Decimal    `gorm:"column:cash_tendered;type:numeric(12,2)" json:"cash_tendered"`
	ChangeGiven   *decimal.Decimal    `gorm:"column:change_given;type:numeric(12,2)" json:"change_given"`
	PointsEarned  int64               `gorm:"column:points_earned;not null" json:"points_earned"`
	Items         []OrderItem         `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderItem snapshots the price charged for one line of a sale.
type OrderItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	InventoryID uuid.UUID       `gorm:"column:inventory_id;type:uuid;not null" json:"inventory_id"`
	ProductName string          `gorm:"column:product_name;not null" json:"product_name"`
	Quantity    int             `gorm:"column:quantity;not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null" json:"unit_price"`
	LineTotal   decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null" json:"line_total"`
	TierBreakID *string         `gorm:"column:tier_break_id" json:"tier_break_id"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
