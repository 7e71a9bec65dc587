package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/canopyhq/canopy-backend/pkg/db/models"
	"github.com/canopyhq/canopy-backend/pkg/enums"
	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
	"github.com/canopyhq/canopy-backend/pkg/types"
)

// Selection is what the register or storefront asks to price.
type Selection struct {
	Quantity int
	BreakID  string
}

// Quote is a resolved unit price for a selection.
type Quote struct {
	BreakID   *string         `json:"break_id"`
	Label     string          `json:"label,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

func newQuote(breakID *string, label string, qty int, unit decimal.Decimal) *Quote {
	unit = types.RoundCents(unit)
	return &Quote{
		BreakID:   breakID,
		Label:     label,
		Quantity:  qty,
		UnitPrice: unit,
		LineTotal: types.RoundCents(unit.Mul(decimal.NewFromInt(int64(qty)))),
	}
}

func checkQuantity(qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero").
			WithDetails(map[string]any{"quantity": qty})
	}
	return nil
}

// ResolveBreak picks the blueprint break for a selection. Quantity blueprints
// match on range; every other tier type needs an explicit break_id.
func ResolveBreak(tierType enums.TierType, breaks []models.PriceBreak, sel Selection) (*models.PriceBreak, error) {
	if err := checkQuantity(sel.Quantity); err != nil {
		return nil, err
	}
	if tierType.UsesQuantityRanges() {
		idx := matchRange(len(breaks), func(i int) (*int, *int, int) {
			return breaks[i].MinQty, breaks[i].MaxQty, breaks[i].SortOrder
		}, sel.Quantity)
		if idx < 0 {
			return nil, noBreakForQuantity(sel.Quantity)
		}
		b := breaks[idx]
		return &b, nil
	}

	id := strings.TrimSpace(sel.BreakID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("break_id is required for %s pricing", tierType))
	}
	for _, b := range breaks {
		if b.BreakID == id {
			found := b
			return &found, nil
		}
	}
	return nil, unknownBreak(id)
}

// QuoteBlueprint prices a selection against a blueprint's default prices.
func QuoteBlueprint(bp *models.PricingBlueprint, sel Selection) (*Quote, error) {
	b, err := ResolveBreak(bp.TierType, bp.PriceBreaks, sel)
	if err != nil {
		return nil, err
	}
	if b.DefaultPrice == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("break %q has no default price", b.BreakID))
	}
	id := b.BreakID
	return newQuote(&id, b.Label, sel.Quantity, *b.DefaultPrice), nil
}

// QuoteProduct prices a selection against a product. Tiered products resolve
// against their own pricing_tiers snapshot, never the live blueprint.
func QuoteProduct(p *models.Product, sel Selection) (*Quote, error) {
	if err := checkQuantity(sel.Quantity); err != nil {
		return nil, err
	}
	if p.PricingMode != enums.PricingModeTiered || len(p.PricingTiers) == 0 {
		return newQuote(nil, "", sel.Quantity, p.RegularPrice), nil
	}

	tiers := p.PricingTiers
	if id := strings.TrimSpace(sel.BreakID); id != "" {
		for _, t := range tiers {
			if t.BreakID == id {
				breakID := t.BreakID
				return newQuote(&breakID, t.Label, sel.Quantity, t.Price), nil
			}
		}
		return nil, unknownBreak(id)
	}

	if !tiersUseRanges(tiers) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "break_id is required for this product").
			WithDetails(map[string]any{"product_id": p.ID})
	}
	idx := matchRange(len(tiers), func(i int) (*int, *int, int) {
		return tiers[i].MinQty, tiers[i].MaxQty, tiers[i].SortOrder
	}, sel.Quantity)
	if idx < 0 {
		return nil, noBreakForQuantity(sel.Quantity)
	}
	t := tiers[idx]
	breakID := t.BreakID
	return newQuote(&breakID, t.Label, sel.Quantity, t.Price), nil
}

func tiersUseRanges(tiers []models.PricingTier) bool {
	for _, t := range tiers {
		if t.MinQty == nil {
			return false
		}
	}
	return true
}

// matchRange returns the index of the matching range with the lowest
// sort_order, or -1.
func matchRange(n int, at func(int) (lo, hi *int, sortOrder int), q int) int {
	best := -1
	bestSort := 0
	for i := 0; i < n; i++ {
		lo, hi, order := at(i)
		if lo == nil || *lo > q {
			continue
		}
		if hi != nil && q > *hi {
			continue
		}
		if best < 0 || order < bestSort {
			best, bestSort = i, order
		}
	}
	return best
}

func noBreakForQuantity(q int) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no price break covers quantity %d", q)).
		WithDetails(map[string]any{"quantity": q})
}

func unknownBreak(id string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown price break %q", id)).
		WithDetails(map[string]any{"break_id": id})
}
