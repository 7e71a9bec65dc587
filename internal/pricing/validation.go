package pricing

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/canopyhq/canopy-backend/pkg/db/models"
	"github.com/canopyhq/canopy-backend/pkg/enums"
	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
)

var (
	slugRe        = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	breakIDCharRe = regexp.MustCompile(`[^a-z0-9_]+`)
	hundred       = decimal.NewFromInt(100)
)

// BlueprintInput is the validated shape of a create or update request.
type BlueprintInput struct {
	// VendorID picks the owner on admin creates; nil means global.
	VendorID               *uuid.UUID
	Name                   string
	Slug                   string
	Description            *string
	TierType               enums.TierType
	PriceBreaks            []models.PriceBreak
	ApplicableToCategories []string
	IsActive               bool
	IsDefault              bool
}

func fieldError(field, msg string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": field})
}

// NormalizeBlueprint checks a blueprint payload and returns it with trimmed
// strings, generated break ids, and sort_order rewritten to 1..N.
func NormalizeBlueprint(in BlueprintInput) (BlueprintInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))

	if in.Name == "" {
		return in, fieldError("name", "name is required")
	}
	if in.Slug == "" {
		return in, fieldError("slug", "slug is required")
	}
	if !slugRe.MatchString(in.Slug) {
		return in, fieldError("slug", "slug must be lowercase words separated by hyphens")
	}
	if !in.TierType.IsValid() {
		return in, fieldError("tier_type", fmt.Sprintf("unsupported tier type %q", in.TierType))
	}
	if len(in.PriceBreaks) == 0 {
		return in, fieldError("price_breaks", "at least one price break is required")
	}

	breaks := orderBreaks(in.PriceBreaks)
	seen := make(map[string]int, len(breaks))
	for i := range breaks {
		b := &breaks[i]
		field := fmt.Sprintf("price_breaks[%d]", i)

		b.Label = strings.TrimSpace(b.Label)
		if b.Label == "" {
			return in, fieldError(field+".label", "label is required")
		}
		b.BreakID = strings.TrimSpace(b.BreakID)
		if b.BreakID == "" {
			b.BreakID = breakIDFromLabel(b.Label)
		}
		if b.BreakID == "" {
			return in, fieldError(field+".break_id", "break_id is required")
		}
		if prev, dup := seen[b.BreakID]; dup {
			return in, fieldError(field+".break_id", fmt.Sprintf("break_id %q duplicates price_breaks[%d]", b.BreakID, prev))
		}
		seen[b.BreakID] = i

		if b.DefaultPrice != nil && b.DefaultPrice.IsNegative() {
			return in, fieldError(field+".default_price", "default_price cannot be negative")
		}
		if b.DiscountExpected != nil && (b.DiscountExpected.IsNegative() || b.DiscountExpected.GreaterThan(hundred)) {
			return in, fieldError(field+".discount_expected", "discount_expected must be between 0 and 100")
		}
		if in.TierType == enums.TierTypeWeight {
			if b.Qty == nil || !b.Qty.IsPositive() {
				return in, fieldError(field+".qty", "weight breaks need a positive qty")
			}
			if b.Unit == nil || strings.TrimSpace(*b.Unit) == "" {
				return in, fieldError(field+".unit", "weight breaks need a unit")
			}
		}
		b.SortOrder = i + 1
	}

	if in.TierType.UsesQuantityRanges() {
		if err := validateQuantityRanges(breaks); err != nil {
			return in, err
		}
	}

	in.PriceBreaks = breaks
	in.ApplicableToCategories = normalizeCategories(in.ApplicableToCategories)
	return in, nil
}

// orderBreaks copies the breaks ordered by client sort_order, keeping input
// order for ties.
func orderBreaks(src []models.PriceBreak) []models.PriceBreak {
	out := make([]models.PriceBreak, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SortOrder < out[j].SortOrder
	})
	return out
}

// validateQuantityRanges requires the ranges to tile 1..∞ with no gaps or
// overlaps and only the highest range left open.
func validateQuantityRanges(breaks []models.PriceBreak) error {
	ranges := make([]models.PriceBreak, len(breaks))
	copy(ranges, breaks)
	for i, b := range ranges {
		field := fmt.Sprintf("price_breaks[%d]", i)
		if b.MinQty == nil || *b.MinQty < 1 {
			return fieldError(field+".min_qty", "min_qty must be at least 1")
		}
		if b.MaxQty != nil && *b.MaxQty < *b.MinQty {
			return fieldError(field+".max_qty", "max_qty must be greater than or equal to min_qty")
		}
	}
	sort.SliceStable(ranges, func(i, j int) bool {
		return *ranges[i].MinQty < *ranges[j].MinQty
	})

	if *ranges[0].MinQty != 1 {
		return fieldError("price_breaks", "quantity breaks must start at 1")
	}
	for i := 1; i < len(ranges); i++ {
		prev, cur := ranges[i-1], ranges[i]
		if prev.MaxQty == nil {
			return fieldError("price_breaks", fmt.Sprintf("break %q is open-ended but is not the last range", prev.BreakID))
		}
		switch {
		case *cur.MinQty <= *prev.MaxQty:
			return fieldError("price_breaks", fmt.Sprintf("breaks %q and %q overlap", prev.BreakID, cur.BreakID))
		case *cur.MinQty > *prev.MaxQty+1:
			return fieldError("price_breaks", fmt.Sprintf("gap between breaks %q and %q", prev.BreakID, cur.BreakID))
		}
	}
	if ranges[len(ranges)-1].MaxQty != nil {
		return fieldError("price_breaks", "the highest quantity break must be open-ended")
	}
	return nil
}

func breakIDFromLabel(label string) string {
	id := strings.ToLower(strings.TrimSpace(label))
	id = strings.ReplaceAll(id, ".", "_")
	id = breakIDCharRe.ReplaceAllString(id, "_")
	return strings.Trim(id, "_")
}

func normalizeCategories(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, c := range in {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
