package loyalty

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/canopyhq/canopy-backend/pkg/db/dbtest"
	"github.com/canopyhq/canopy-backend/pkg/db/models"
)

func newEngine(t *testing.T) (*Engine, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	engine, err := NewEngine(NewProgramStore(conn, decimal.NewFromInt(1)))
	require.NoError(t, err)
	return engine, conn
}

func loadAccount(t *testing.T, conn *gorm.DB, customerID, vendorID uuid.UUID) models.CustomerLoyalty {
	t.Helper()
	var row models.CustomerLoyalty
	require.NoError(t, conn.Where("customer_id = ? AND vendor_id = ?", customerID, vendorID).First(&row).Error)
	return row
}

func TestPointsFor(t *testing.T) {
	cases := []struct {
		subtotal, rate string
		want           int64
	}{
		{"99.99", "1", 99},
		{"100", "1", 100},
		{"10.50", "1.5", 15},
		{"0", "1", 0},
		{"-5", "1", 0},
		{"20", "0", 0},
	}
	for _, tc := range cases {
		got := PointsFor(decimal.RequireFromString(tc.subtotal), decimal.RequireFromString(tc.rate))
		require.Equal(t, tc.want, got, "subtotal %s rate %s", tc.subtotal, tc.rate)
	}
}

func TestAccrueWalkInTouchesNothing(t *testing.T) {
	engine, conn := newEngine(t)

	res, err := engine.Accrue(context.Background(), conn, nil, uuid.New(), decimal.NewFromInt(250))
	require.NoError(t, err)
	require.Equal(t, Result{}, res)

	var count int64
	require.NoError(t, conn.Model(&models.CustomerLoyalty{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestAccrueEnrollsOnFirstPurchase(t *testing.T) {
	engine, conn := newEngine(t)
	customerID, vendorID := uuid.New(), uuid.New()

	res, err := engine.Accrue(context.Background(), conn, &customerID, vendorID, decimal.RequireFromString("42.80"))
	require.NoError(t, err)
	require.True(t, res.Enrolled)
	require.EqualValues(t, 42, res.PointsEarned)
	require.EqualValues(t, 42, res.NewBalance)
	require.Equal(t, "Bronze", res.NewTier)
	require.False(t, res.TierUpgraded)

	row := loadAccount(t, conn, customerID, vendorID)
	require.EqualValues(t, 42, row.PointsBalance)
	require.EqualValues(t, 42, row.LifetimePoints)
	require.Equal(t, 1, row.TierLevel)
}

func TestAccrueUpgradesAtThreshold(t *testing.T) {
	engine, conn := newEngine(t)
	ctx := context.Background()
	customerID, vendorID := uuid.New(), uuid.New()

	require.NoError(t, conn.Create(&models.CustomerLoyalty{
		CustomerID:     customerID,
		VendorID:       vendorID,
		PointsBalance:  480,
		LifetimePoints: 480,
		CurrentTier:    "Bronze",
		TierLevel:      1,
	}).Error)

	res, err := engine.Accrue(ctx, conn, &customerID, vendorID, decimal.NewFromInt(20))
	require.NoError(t, err)
	require.True(t, res.TierUpgraded)
	require.Equal(t, "Bronze", res.PreviousTier)
	require.Equal(t, "Silver", res.NewTier)
	require.EqualValues(t, 500, res.LifetimePoints)

	row := loadAccount(t, conn, customerID, vendorID)
	require.Equal(t, "Silver", row.CurrentTier)
	require.Equal(t, 2, row.TierLevel)
}

func TestAccrueBelowThresholdDoesNotUpgrade(t *testing.T) {
	engine, conn := newEngine(t)
	customerID, vendorID := uuid.New(), uuid.New()

	require.NoError(t, conn.Create(&models.CustomerLoyalty{
		CustomerID: customerID, VendorID: vendorID,
		PointsBalance: 480, LifetimePoints: 480,
		CurrentTier: "Bronze", TierLevel: 1,
	}).Error)

	res, err := engine.Accrue(context.Background(), conn, &customerID, vendorID, decimal.RequireFromString("19.99"))
	require.NoError(t, err)
	require.False(t, res.TierUpgraded)
	require.Equal(t, "Bronze", res.NewTier)
	require.EqualValues(t, 499, res.LifetimePoints)
}

func TestAccrueNeverDowngrades(t *testing.T) {
	engine, conn := newEngine(t)
	customerID, vendorID := uuid.New(), uuid.New()

	// balance spent down and a tier granted by hand above what lifetime implies
	require.NoError(t, conn.Create(&models.CustomerLoyalty{
		CustomerID: customerID, VendorID: vendorID,
		PointsBalance: 10, LifetimePoints: 600,
		CurrentTier: "Gold", TierLevel: 3,
	}).Error)

	res, err := engine.Accrue(context.Background(), conn, &customerID, vendorID, decimal.NewFromInt(5))
	require.NoError(t, err)
	require.False(t, res.TierUpgraded)
	require.Equal(t, "Gold", res.NewTier)
	require.Equal(t, 3, res.TierLevel)
	require.EqualValues(t, 15, res.NewBalance)

	row := loadAccount(t, conn, customerID, vendorID)
	require.Equal(t, "Gold", row.CurrentTier)
}

func TestAccrueUsesVendorProgram(t *testing.T) {
	engine, conn := newEngine(t)
	ctx := context.Background()
	customerID, vendorID := uuid.New(), uuid.New()

	_, err := engine.programs.Save(ctx, vendorID, decimal.NewFromInt(2), []models.LoyaltyTier{
		{Name: "Member", Level: 1, Threshold: 0},
		{Name: "VIP", Level: 2, Threshold: 100},
	})
	require.NoError(t, err)

	res, err := engine.Accrue(ctx, conn, &customerID, vendorID, decimal.NewFromInt(60))
	require.NoError(t, err)
	require.EqualValues(t, 120, res.PointsEarned)
	require.Equal(t, "VIP", res.NewTier)
	require.True(t, res.TierUpgraded)
	require.Equal(t, "Member", res.PreviousTier)
}

func TestAccrueRollsBackWithCaller(t *testing.T) {
	engine, conn := newEngine(t)
	customerID, vendorID := uuid.New(), uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		if _, err := engine.Accrue(context.Background(), tx, &customerID, vendorID, decimal.NewFromInt(50)); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.ErrorIs(t, err, gorm.ErrInvalidTransaction)

	var count int64
	require.NoError(t, conn.Model(&models.CustomerLoyalty{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEnrollLosingRaceReturnsExistingAccount(t *testing.T) {
	_, conn := newEngine(t)
	ctx := context.Background()
	customerID, vendorID := uuid.New(), uuid.New()

	winner := models.CustomerLoyalty{
		CustomerID:     customerID,
		VendorID:       vendorID,
		PointsBalance:  40,
		LifetimePoints: 40,
		CurrentTier:    "Bronze",
		TierLevel:      1,
	}
	require.NoError(t, conn.Create(&winner).Error)

	account, enrolled, err := enroll(ctx, conn, customerID, vendorID, DefaultTiers[0])
	require.NoError(t, err)
	require.False(t, enrolled)
	require.Equal(t, winner.ID, account.ID)
	require.Equal(t, int64(40), account.PointsBalance)

	var count int64
	require.NoError(t, conn.Model(&models.CustomerLoyalty{}).Where("customer_id = ?", customerID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}
