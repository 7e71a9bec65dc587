package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/canopyhq/canopy-backend/pkg/db/types"
)

// LoyaltyProgram holds a vendor's accrual rate and tier ladder.
type LoyaltyProgram struct {
	VendorID        uuid.UUID                     `gorm:"column:vendor_id;type:uuid;primaryKey"`
	PointsPerDollar decimal.Decimal               `gorm:"column:points_per_dollar;type:numeric(8,4);not null"`
	Tiers           dbtypes.JSONList[LoyaltyTier] `gorm:"column:tiers;type:jsonb;not null"`
	CreatedAt       time.Time                     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                     `gorm:"column:updated_at;autoUpdateTime"`
}

type LoyaltyTier struct {
	Name      string `json:"name"`
	Level     int    `json:"level"`
	Threshold int64  `json:"threshold"`
}
