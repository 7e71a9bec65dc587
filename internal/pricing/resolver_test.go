package pricing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/canopyhq/canopy-backend/pkg/db/models"
	dbtypes "github.com/canopyhq/canopy-backend/pkg/db/types"
	"github.com/canopyhq/canopy-backend/pkg/enums"
	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
)

func tenThenEight() []models.PriceBreak {
	return []models.PriceBreak{
		quantityBreak("1-10", 1, intPtr(10), "10", 1),
		quantityBreak("11+", 11, nil, "8", 2),
	}
}

func TestQuantityTierPricing(t *testing.T) {
	bp := &models.PricingBlueprint{TierType: enums.TierTypeQuantity, PriceBreaks: tenThenEight()}

	cases := []struct {
		qty       int
		unit      string
		lineTotal string
		breakID   string
	}{
		{qty: 5, unit: "10", lineTotal: "50", breakID: "1-10"},
		{qty: 10, unit: "10", lineTotal: "100", breakID: "1-10"},
		{qty: 11, unit: "8", lineTotal: "88", breakID: "11+"},
		{qty: 15, unit: "8", lineTotal: "120", breakID: "11+"},
	}
	for _, tc := range cases {
		q, err := QuoteBlueprint(bp, Selection{Quantity: tc.qty})
		require.NoError(t, err)
		require.True(t, q.UnitPrice.Equal(decimal.RequireFromString(tc.unit)), "qty %d unit %s", tc.qty, q.UnitPrice)
		require.True(t, q.LineTotal.Equal(decimal.RequireFromString(tc.lineTotal)), "qty %d total %s", tc.qty, q.LineTotal)
		require.Equal(t, tc.breakID, *q.BreakID)
	}
}

func TestOverlappingRangesPreferLowestSortOrder(t *testing.T) {
	breaks := []models.PriceBreak{
		quantityBreak("late", 1, intPtr(20), "7", 5),
		quantityBreak("early", 5, intPtr(10), "9", 2),
	}
	b, err := ResolveBreak(enums.TierTypeQuantity, breaks, Selection{Quantity: 6})
	require.NoError(t, err)
	require.Equal(t, "early", b.BreakID)

	b, err = ResolveBreak(enums.TierTypeQuantity, breaks, Selection{Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, "late", b.BreakID)
}

func TestQuantityOutsideRanges(t *testing.T) {
	breaks := []models.PriceBreak{quantityBreak("a", 1, intPtr(3), "5", 1)}
	_, err := ResolveBreak(enums.TierTypeQuantity, breaks, Selection{Quantity: 4})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ResolveBreak(enums.TierTypeQuantity, breaks, Selection{Quantity: 0})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestWeightTierNeedsExplicitBreak(t *testing.T) {
	breaks := []models.PriceBreak{
		{BreakID: "3_5g", Label: "Eighth", Qty: decPtr("3.5"), Unit: strPtr("g"), DefaultPrice: decPtr("35"), SortOrder: 1},
		{BreakID: "7g", Label: "Quarter", Qty: decPtr("7"), Unit: strPtr("g"), DefaultPrice: decPtr("60"), SortOrder: 2},
	}

	_, err := ResolveBreak(enums.TierTypeWeight, breaks, Selection{Quantity: 7})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "weight is never inferred from quantity")

	b, err := ResolveBreak(enums.TierTypeWeight, breaks, Selection{Quantity: 2, BreakID: "7g"})
	require.NoError(t, err)
	require.Equal(t, "Quarter", b.Label)

	_, err = ResolveBreak(enums.TierTypeFlat, breaks, Selection{Quantity: 1, BreakID: "28g"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestQuoteProductSinglePrice(t *testing.T) {
	p := &models.Product{ID: uuid.New(), PricingMode: enums.PricingModeSingle, RegularPrice: decimal.RequireFromString("12.49")}
	q, err := QuoteProduct(p, Selection{Quantity: 3})
	require.NoError(t, err)
	require.Nil(t, q.BreakID)
	require.Equal(t, "37.47", q.LineTotal.StringFixed(2))
}

func TestQuoteProductUsesSnapshot(t *testing.T) {
	tiers, err := SnapshotTiers(tenThenEight(), map[string]decimal.Decimal{"11+": decimal.RequireFromString("7.5")})
	require.NoError(t, err)

	p := &models.Product{
		ID:           uuid.New(),
		PricingMode:  enums.PricingModeTiered,
		PricingTiers: dbtypes.JSONList[models.PricingTier](tiers),
		RegularPrice: decimal.RequireFromString("99"),
	}

	q, err := QuoteProduct(p, Selection{Quantity: 4})
	require.NoError(t, err)
	require.True(t, q.UnitPrice.Equal(decimal.NewFromInt(10)))

	q, err = QuoteProduct(p, Selection{Quantity: 12})
	require.NoError(t, err)
	require.True(t, q.UnitPrice.Equal(decimal.RequireFromString("7.5")))

	q, err = QuoteProduct(p, Selection{Quantity: 2, BreakID: "11+"})
	require.NoError(t, err)
	require.Equal(t, "15.00", q.LineTotal.StringFixed(2))
}

func TestQuoteProductWeightSnapshotNeedsBreak(t *testing.T) {
	p := &models.Product{
		PricingMode: enums.PricingModeTiered,
		PricingTiers: dbtypes.JSONList[models.PricingTier]{
			{BreakID: "1g", Label: "1g", Qty: decPtr("1"), Unit: strPtr("g"), Price: decimal.NewFromInt(12), SortOrder: 1},
		},
	}
	_, err := QuoteProduct(p, Selection{Quantity: 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	q, err := QuoteProduct(p, Selection{Quantity: 2, BreakID: "1g"})
	require.NoError(t, err)
	require.Equal(t, "24.00", q.LineTotal.StringFixed(2))
}

func TestSnapshotTiersRequiresPrices(t *testing.T) {
	breaks := []models.PriceBreak{{BreakID: "a", Label: "A", SortOrder: 1}}
	_, err := SnapshotTiers(breaks, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = SnapshotTiers(breaks, map[string]decimal.Decimal{"b": decimal.NewFromInt(1)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = SnapshotTiers(breaks, map[string]decimal.Decimal{"a": decimal.NewFromInt(-1)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	tiers, err := SnapshotTiers(breaks, map[string]decimal.Decimal{"a": decimal.RequireFromString("4.999")})
	require.NoError(t, err)
	require.Equal(t, "5.00", tiers[0].Price.StringFixed(2))
}
