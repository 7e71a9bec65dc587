package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Customer struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	FirstName string    `gorm:"column:first_name;not null"`
	LastName  string    `gorm:"column:last_name;not null"`
	Email     *string   `gorm:"column:email"`
	Phone     *string   `gorm:"column:phone"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (c *Customer) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// CustomerLoyalty tracks points and tier for one customer at one vendor.
type CustomerLoyalty struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID     uuid.UUID `gorm:"column:customer_id;type:uuid;not null;uniqueIndex:idx_customer_loyalty_customer_vendor"`
	VendorID       uuid.UUID `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex:idx_customer_loyalty_customer_vendor"`
	PointsBalance  int64     `gorm:"column:points_balance;not null"`
	LifetimePoints int64     `gorm:"column:lifetime_points;not null"`
	CurrentTier    string    `gorm:"column:current_tier;not null"`
	TierLevel      int       `gorm:"column:tier_level;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (CustomerLoyalty) TableName() string {
	return "customer_loyalty"
}

func (c *CustomerLoyalty) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
