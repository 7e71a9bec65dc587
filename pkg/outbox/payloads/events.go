package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// POSSaleCompletedEvent is emitted once a register sale commits.
type POSSaleCompletedEvent struct {
	OrderID      uuid.UUID       `json:"order_id"`
	OrderNumber  string          `json:"order_number"`
	VendorID     uuid.UUID       `json:"vendor_id"`
	LocationID   uuid.UUID       `json:"location_id"`
	CustomerID   *uuid.UUID      `json:"customer_id,omitempty"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	Total        decimal.Decimal `json:"total"`
	ItemCount    int             `json:"item_count"`
	PointsEarned int64           `json:"points_earned"`
}

// LoyaltySyncRequestedEvent carries everything the loyalty platform needs to
// record a purchase for a known customer.
type LoyaltySyncRequestedEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	OrderNumber    string            `json:"order_number"`
	VendorID       uuid.UUID         `json:"vendor_id"`
	LocationID     uuid.UUID         `json:"location_id"`
	CustomerID     uuid.UUID         `json:"customer_id"`
	CustomerName   string            `json:"customer_name,omitempty"`
	Email          string            `json:"email,omitempty"`
	Phone          string            `json:"phone,omitempty"`
	Total          decimal.Decimal   `json:"total"`
	PointsEarned   int64             `json:"points_earned"`
	PointsBalance  int64             `json:"points_balance"`
	LifetimePoints int64             `json:"lifetime_points"`
	Tier           string            `json:"tier"`
	TierUpgraded   bool              `json:"tier_upgraded"`
	Lines          []LoyaltySyncLine `json:"lines"`
}

type LoyaltySyncLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Category  string          `json:"category,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// PurchaseOrderCreatedEvent reports a new inbound purchase order.
type PurchaseOrderCreatedEvent struct {
	PurchaseOrderID uuid.UUID       `json:"purchase_order_id"`
	PONumber        string          `json:"po_number"`
	VendorID        uuid.UUID       `json:"vendor_id"`
	SupplierID      uuid.UUID       `json:"supplier_id"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	NewProductIDs   []uuid.UUID     `json:"new_product_ids,omitempty"`
}

// PurchaseOrderReceivedEvent reports stock booked into a location.
type PurchaseOrderReceivedEvent struct {
	PurchaseOrderID uuid.UUID         `json:"purchase_order_id"`
	PONumber        string            `json:"po_number"`
	VendorID        uuid.UUID         `json:"vendor_id"`
	LocationID      uuid.UUID         `json:"location_id"`
	Lines           []ReceivedPOLine  `json:"lines"`
}

type ReceivedPOLine struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// PricingBlueprintAppliedEvent reports a tier snapshot copied onto a product.
type PricingBlueprintAppliedEvent struct {
	ProductID   uuid.UUID `json:"product_id"`
	BlueprintID uuid.UUID `json:"blueprint_id"`
	VendorID    uuid.UUID `json:"vendor_id"`
	TierCount   int       `json:"tier_count"`
}
