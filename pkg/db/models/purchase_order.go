package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/canopyhq/canopy-backend/pkg/enums"
)

// PurchaseOrder records stock ordered from a supplier.
type PurchaseOrder struct {
	ID                   uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PONumber             string          `gorm:"column:po_number;not null;uniqueIndex" json:"po_number"`
	VendorID             uuid.UUID       `gorm:"column:vendor_id;type:uuid;not null;index" json:"vendor_id"`
	SupplierID           uuid.UUID       `gorm:"column:supplier_id;type:uuid;not null" json:"supplier_id"`
	POType               enums.POType    `gorm:"column:po_type;type:text;not null" json:"po_type"`
	Status               enums.POStatus  `gorm:"column:status;type:text;not null" json:"status"`
	ExpectedDeliveryDate *time.Time      `gorm:"column:expected_delivery_date" json:"expected_delivery_date"`
	Subtotal             decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null" json:"subtotal"`
	Notes                *string         `gorm:"column:notes" json:"notes"`
	ReceivedAt           *time.Time      `gorm:"column:received_at" json:"received_at"`
	ReceivedLocationID   *uuid.UUID      `gorm:"column:received_location_id;type:uuid" json:"received_location_id"`
	Items                []POItem        `gorm:"foreignKey:PurchaseOrderID" json:"items,omitempty"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (p *PurchaseOrder) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

type POItem struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PurchaseOrderID  uuid.UUID       `gorm:"column:purchase_order_id;type:uuid;not null;index" json:"purchase_order_id"`
	ProductID        uuid.UUID       `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	Quantity         int             `gorm:"column:quantity;not null" json:"quantity"`
	UnitPrice        decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null" json:"unit_price"`
	LineTotal        decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null" json:"line_total"`
	ReceivedQuantity int             `gorm:"column:received_quantity;not null" json:"received_quantity"`
	IsNewProduct     bool            `gorm:"column:is_new_product;not null" json:"is_new_product"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (POItem) TableName() string {
	return "po_items"
}

func (i *POItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
