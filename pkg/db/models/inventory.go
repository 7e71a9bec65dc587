package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Inventory is the on-hand count of a product at one location.
type Inventory struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_inventory_product_location" json:"product_id"`
	LocationID uuid.UUID `gorm:"column:location_id;type:uuid;not null;uniqueIndex:idx_inventory_product_location" json:"location_id"`
	VendorID   uuid.UUID `gorm:"column:vendor_id;type:uuid;not null" json:"vendor_id"`
	Quantity   int       `gorm:"column:quantity;not null;check:quantity >= 0" json:"quantity"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Inventory) TableName() string {
	return "inventory"
}

func (i *Inventory) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
