package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/canopyhq/canopy-backend/pkg/db/types"
	"github.com/canopyhq/canopy-backend/pkg/enums"
)

// PricingBlueprint is a reusable set of price breaks owned by a vendor, or
// global when VendorID is nil.
type PricingBlueprint struct {
	ID                     uuid.UUID                    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	VendorID               *uuid.UUID                   `gorm:"column:vendor_id;type:uuid;index" json:"vendor_id"`
	Name                   string                       `gorm:"column:name;not null" json:"name"`
	Slug                   string                       `gorm:"column:slug;not null" json:"slug"`
	Description            *string                      `gorm:"column:description" json:"description"`
	TierType               enums.TierType               `gorm:"column:tier_type;type:text;not null" json:"tier_type"`
	PriceBreaks            dbtypes.JSONList[PriceBreak] `gorm:"column:price_breaks;type:jsonb;not null" json:"price_breaks"`
	ApplicableToCategories dbtypes.JSONList[string]     `gorm:"column:applicable_to_categories;type:jsonb;not null" json:"applicable_to_categories"`
	IsActive               bool                         `gorm:"column:is_active;not null" json:"is_active"`
	IsDefault              bool                         `gorm:"column:is_default;not null" json:"is_default"`
	CreatedAt              time.Time                    `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time                    `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (b *PricingBlueprint) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

// IsGlobal reports whether the blueprint is a system template.
func (b PricingBlueprint) IsGlobal() bool {
	return b.VendorID == nil
}

// PriceBreak is one selectable tier within a blueprint.
type PriceBreak struct {
	BreakID          string           `json:"break_id"`
	Label            string           `json:"label"`
	Qty              *decimal.Decimal `json:"qty,omitempty"`
	Unit             *string          `json:"unit,omitempty"`
	MinQty           *int             `json:"min_qty,omitempty"`
	MaxQty           *int             `json:"max_qty"`
	DiscountExpected *decimal.Decimal `json:"discount_expected,omitempty"`
	DefaultPrice     *decimal.Decimal `json:"default_price,omitempty"`
	SortOrder        int              `json:"sort_order"`
}
