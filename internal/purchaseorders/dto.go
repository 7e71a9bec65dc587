package purchaseorders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/canopyhq/canopy-backend/pkg/db/models"
	"github.com/canopyhq/canopy-backend/pkg/enums"
)

// CreatePOInput is an inbound purchase order with its lines.
type CreatePOInput struct {
	VendorID             uuid.UUID     `json:"vendor_id" validate:"required"`
	SupplierID           uuid.UUID     `json:"supplier_id" validate:"required"`
	POType               enums.POType  `json:"po_type"`
	ExpectedDeliveryDate *time.Time    `json:"expected_delivery_date"`
	Notes                *string       `json:"notes" validate:"omitempty,max=2000"`
	Items                []POLineInput `json:"items" validate:"required,min=1,dive"`
}

// POLineInput either references an existing product or describes one to
// create alongside the order.
type POLineInput struct {
	IsNewProduct bool            `json:"is_new_product"`
	ProductID    *uuid.UUID      `json:"product_id"`
	Name         *string         `json:"name" validate:"omitempty,max=200"`
	SKU          *string         `json:"sku" validate:"omitempty,max=100"`
	SupplierSKU  *string         `json:"supplier_sku" validate:"omitempty,max=100"`
	Category     *string         `json:"category" validate:"omitempty,max=100"`
	Quantity     int             `json:"quantity" validate:"required,min=1"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

// POResult is returned once the order and any new products commit.
type POResult struct {
	PONumber           string                `json:"po_number"`
	Subtotal           decimal.Decimal       `json:"subtotal"`
	NewProductsCreated int                   `json:"new_products_created"`
	PurchaseOrder      *models.PurchaseOrder `json:"purchase_order"`
}

// ReceivePOInput books a purchase order's stock into a location.
type ReceivePOInput struct {
	VendorID        uuid.UUID `json:"vendor_id" validate:"required"`
	PurchaseOrderID uuid.UUID `json:"purchase_order_id" validate:"required"`
	LocationID      uuid.UUID `json:"location_id" validate:"required"`
}

// ListFilter narrows a vendor's purchase order listing.
type ListFilter struct {
	Status *enums.POStatus
	Limit  int
	Cursor string
}
