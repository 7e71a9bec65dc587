package sales

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/canopyhq/canopy-backend/internal/loyalty"
	"github.com/canopyhq/canopy-backend/pkg/db/models"
	"github.com/canopyhq/canopy-backend/pkg/enums"
)

// CreateSaleInput is a register sale as submitted by the POS.
type CreateSaleInput struct {
	LocationID   uuid.UUID       `json:"locationId" validate:"required"`
	VendorID     uuid.UUID       `json:"vendorId" validate:"required"`
	CustomerID   *uuid.UUID      `json:"customerId"`
	CustomerName *string         `json:"customerName" validate:"omitempty,max=200"`
	Items        []SaleItemInput `json:"items" validate:"required,min=1,dive"`
	// Subtotal and Total are what the register displayed; they are checked,
	// never trusted.
	Subtotal      *decimal.Decimal    `json:"subtotal"`
	TaxAmount     *decimal.Decimal    `json:"taxAmount"`
	TaxRate       *decimal.Decimal    `json:"taxRate"`
	Total         *decimal.Decimal    `json:"total"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod" validate:"required"`
	CashTendered  *decimal.Decimal    `json:"cashTendered"`
	ChangeGiven   *decimal.Decimal    `json:"changeGiven"`
}

// SaleItemInput is one register line. UnitPrice is a cashier override; when
// absent the product's own pricing decides.
type SaleItemInput struct {
	ProductID   uuid.UUID        `json:"productId" validate:"required"`
	InventoryID uuid.UUID        `json:"inventoryId" validate:"required"`
	Quantity    int              `json:"quantity" validate:"required,min=1"`
	UnitPrice   *decimal.Decimal `json:"unitPrice"`
	BreakID     *string          `json:"breakId" validate:"omitempty,max=100"`
}

// SaleResult is returned to the register after commit.
type SaleResult struct {
	Success        bool            `json:"success"`
	OrderNumber    string          `json:"orderNumber"`
	Order          *models.Order   `json:"order"`
	PointsEarned   int64           `json:"pointsEarned"`
	Loyalty        *loyalty.Result `json:"loyalty"`
	AlpineIQSynced bool            `json:"alpineIQSynced"`
}

type pricedLine struct {
	input     SaleItemInput
	product   models.Product
	unitPrice decimal.Decimal
	lineTotal decimal.Decimal
	breakID   *string
}
