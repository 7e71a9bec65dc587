// Package inventory owns on-hand stock counts. Stock only leaves through
// Deduct and only arrives through Receive.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/canopyhq/canopy-backend/pkg/db/models"
	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
)

// Shortage describes a line the guard refused.
type Shortage struct {
	InventoryID uuid.UUID `json:"inventory_id"`
	Requested   int       `json:"requested"`
	Available   int       `json:"available"`
}

// Guard performs conditional stock updates inside a caller's transaction.
type Guard struct{}

func NewGuard() *Guard {
	return &Guard{}
}

// Deduct removes qty units from the inventory row. The decrement only applies
// when enough stock remains, so concurrent sales can never drive a row
// negative.
func (g *Guard) Deduct(ctx context.Context, tx *gorm.DB, inventoryID uuid.UUID, qty int) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if inventoryID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "inventory id is required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero").
			WithDetails(map[string]any{"inventory_id": inventoryID, "requested": qty})
	}

	applied, err := decrement(ctx, tx, inventoryID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: deduct inventory")
	}
	if applied {
		return nil
	}

	var current models.Inventory
	if err := tx.WithContext(ctx).Select("id", "quantity").First(&current, "id = ?", inventoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "inventory not found").
				WithDetails(map[string]any{"inventory_id": inventoryID})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load inventory")
	}
	return InsufficientError(Shortage{InventoryID: inventoryID, Requested: qty, Available: current.Quantity})
}

// decrement is the single statement that moves stock out. The quantity check
// lives in the WHERE clause, so a caller holding a stale read cannot oversell.
func decrement(ctx context.Context, tx *gorm.DB, inventoryID uuid.UUID, qty int) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&models.Inventory{}).
		Where("id = ? AND quantity >= ?", inventoryID, qty).
		UpdateColumn("quantity", gorm.Expr("quantity - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Receive adds qty units for the product at the location, creating the row on
// first receipt.
func (g *Guard) Receive(ctx context.Context, tx *gorm.DB, productID, locationID, vendorID uuid.UUID, qty int) (*models.Inventory, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "received quantity must be greater than zero")
	}

	row := &models.Inventory{
		ProductID:  productID,
		LocationID: locationID,
		VendorID:   vendorID,
		Quantity:   qty,
	}
	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "product_id"}, {Name: "location_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"quantity":   gorm.Expr("inventory.quantity + ?", qty),
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(row).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: receive inventory")
	}

	var stored models.Inventory
	if err := tx.WithContext(ctx).
		Where("product_id = ? AND location_id = ?", productID, locationID).
		First(&stored).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: reload inventory")
	}
	return &stored, nil
}

// InsufficientError builds the typed error for a refused deduction.
func InsufficientError(s Shortage) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientInventory,
		fmt.Sprintf("insufficient inventory: requested %d, available %d", s.Requested, s.Available)).
		WithDetails(map[string]any{
			"inventory_id": s.InventoryID,
			"requested":    s.Requested,
			"available":    s.Available,
		})
}

// IsInsufficient reports whether err is a refused deduction.
func IsInsufficient(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeInsufficientInventory)
}
