package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/canopyhq/canopy-backend/pkg/db/types"
	"github.com/canopyhq/canopy-backend/pkg/enums"
)

// Product represents a vendor catalog entry sold at the register.
type Product struct {
	ID                 uuid.UUID                     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	VendorID           uuid.UUID                     `gorm:"column:vendor_id;type:uuid;not null;index;uniqueIndex:idx_products_vendor_sku" json:"vendor_id"`
	Name               string                        `gorm:"column:name;not null" json:"name"`
	SKU                *string                       `gorm:"column:sku;uniqueIndex:idx_products_vendor_sku" json:"sku"`
	SupplierSKU        *string                       `gorm:"column:supplier_sku" json:"supplier_sku"`
	Category           *string                       `gorm:"column:category" json:"category"`
	PricingMode        enums.PricingMode             `gorm:"column:pricing_mode;type:text;not null" json:"pricing_mode"`
	PricingBlueprintID *uuid.UUID                    `gorm:"column:pricing_blueprint_id;type:uuid" json:"pricing_blueprint_id"`
	PricingTiers       dbtypes.JSONList[PricingTier] `gorm:"column:pricing_tiers;type:jsonb;not null" json:"pricing_tiers"`
	CostPrice          decimal.Decimal               `gorm:"column:cost_price;type:numeric(12,2);not null" json:"cost_price"`
	RegularPrice       decimal.Decimal               `gorm:"column:regular_price;type:numeric(12,2);not null" json:"regular_price"`
	IsActive           bool                          `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt          time.Time                     `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                     `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	if p.PricingMode == "" {
		p.PricingMode = enums.PricingModeSingle
	}
	return nil
}

// PricingTier is the snapshot of a price break with the vendor price applied.
type PricingTier struct {
	BreakID   string           `json:"break_id"`
	Label     string           `json:"label"`
	Qty       *decimal.Decimal `json:"qty,omitempty"`
	Unit      *string          `json:"unit,omitempty"`
	MinQty    *int             `json:"min_qty,omitempty"`
	MaxQty    *int             `json:"max_qty"`
	Price     decimal.Decimal  `json:"price"`
	SortOrder int              `json:"sort_order"`
}
