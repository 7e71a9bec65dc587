// Package loyalty accrues points on register sales and moves customers up
// the vendor's tier ladder.
package loyalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/canopyhq/canopy-backend/pkg/db/models"
	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
)

// Result summarises one accrual.
type Result struct {
	AccountID      uuid.UUID `json:"-"`
	PointsEarned   int64     `json:"points_earned"`
	NewBalance     int64     `json:"new_balance"`
	LifetimePoints int64     `json:"lifetime_points"`
	TierUpgraded   bool      `json:"tier_upgraded"`
	PreviousTier   string    `json:"previous_tier,omitempty"`
	NewTier        string    `json:"new_tier,omitempty"`
	TierLevel      int       `json:"tier_level"`
	// Enrolled is set when this purchase created the loyalty record.
	Enrolled bool `json:"enrolled"`
}

// Engine applies accruals inside the caller's transaction.
type Engine struct {
	programs *ProgramStore
}

func NewEngine(programs *ProgramStore) (*Engine, error) {
	if programs == nil {
		return nil, fmt.Errorf("loyalty program store required")
	}
	return &Engine{programs: programs}, nil
}

// PointsFor is floor(subtotal × rate). Negative subtotals earn nothing.
func PointsFor(subtotal, rate decimal.Decimal) int64 {
	if !subtotal.IsPositive() || !rate.IsPositive() {
		return 0
	}
	return subtotal.Mul(rate).Floor().IntPart()
}

// Accrue credits points for a purchase. A nil customer is a walk-in and
// touches nothing. Tiers only ever move up.
func (e *Engine) Accrue(ctx context.Context, tx *gorm.DB, customerID *uuid.UUID, vendorID uuid.UUID, subtotal decimal.Decimal) (Result, error) {
	if customerID == nil || *customerID == uuid.Nil {
		return Result{}, nil
	}
	if tx == nil {
		return Result{}, fmt.Errorf("transaction required")
	}

	program, err := e.programs.WithTx(tx).Load(ctx, vendorID)
	if err != nil {
		return Result{}, err
	}
	earned := PointsFor(subtotal, program.PointsPerDollar)

	account, err := findAccount(ctx, tx, *customerID, vendorID)
	enrolled := false
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		account, enrolled, err = enroll(ctx, tx, *customerID, vendorID, program.Tiers[0])
		if err != nil {
			return Result{}, err
		}
	case err != nil:
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load customer loyalty")
	}

	previousTier, previousLevel := account.CurrentTier, account.TierLevel
	lifetime := account.LifetimePoints + earned
	balance := account.PointsBalance + earned

	tier, level := previousTier, previousLevel
	if next := program.TierFor(lifetime); next.Level > previousLevel {
		tier, level = next.Name, next.Level
	}

	if earned > 0 || tier != previousTier {
		res := tx.WithContext(ctx).
			Model(&models.CustomerLoyalty{}).
			Where("id = ?", account.ID).
			Updates(map[string]any{
				"points_balance":  gorm.Expr("points_balance + ?", earned),
				"lifetime_points": gorm.Expr("lifetime_points + ?", earned),
				"current_tier":    tier,
				"tier_level":      level,
			})
		if res.Error != nil {
			return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "db: update customer loyalty")
		}
	}

	out := Result{
		AccountID:      account.ID,
		PointsEarned:   earned,
		NewBalance:     balance,
		LifetimePoints: lifetime,
		TierUpgraded:   level > previousLevel,
		NewTier:        tier,
		TierLevel:      level,
		Enrolled:       enrolled,
	}
	if out.TierUpgraded {
		out.PreviousTier = previousTier
	}
	return out, nil
}

func findAccount(ctx context.Context, tx *gorm.DB, customerID, vendorID uuid.UUID) (models.CustomerLoyalty, error) {
	var account models.CustomerLoyalty
	err := tx.WithContext(ctx).
		Where("customer_id = ? AND vendor_id = ?", customerID, vendorID).
		First(&account).Error
	return account, err
}

// enroll creates the loyalty record at the entry tier. When a concurrent
// first purchase enrolled the customer first, the existing record is
// returned and enrolled is false.
func enroll(ctx context.Context, tx *gorm.DB, customerID, vendorID uuid.UUID, entry models.LoyaltyTier) (models.CustomerLoyalty, bool, error) {
	account := models.CustomerLoyalty{
		CustomerID:  customerID,
		VendorID:    vendorID,
		CurrentTier: entry.Name,
		TierLevel:   entry.Level,
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "customer_id"}, {Name: "vendor_id"}},
			DoNothing: true,
		}).
		Create(&account)
	if res.Error != nil {
		return models.CustomerLoyalty{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "db: enroll customer loyalty")
	}
	if res.RowsAffected == 1 {
		return account, true, nil
	}

	existing, err := findAccount(ctx, tx, customerID, vendorID)
	if err != nil {
		return models.CustomerLoyalty{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: reload customer loyalty")
	}
	return existing, false, nil
}
