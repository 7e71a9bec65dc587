package enums

import (
	"fmt"
	"strings"
)

// TierType describes how a pricing blueprint's breaks are selected.
type TierType string

const (
	TierTypeWeight     TierType = "weight"
	TierTypeQuantity   TierType = "quantity"
	TierTypePercentage TierType = "percentage"
	TierTypeFlat       TierType = "flat"
	TierTypeCustom     TierType = "custom"
)

var validTierTypes = []TierType{
	TierTypeWeight,
	TierTypeQuantity,
	TierTypePercentage,
	TierTypeFlat,
	TierTypeCustom,
}

func (t TierType) String() string {
	return string(t)
}

func (t TierType) IsValid() bool {
	for _, candidate := range validTierTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// UsesQuantityRanges reports whether breaks are resolved from min/max quantity bounds.
func (t TierType) UsesQuantityRanges() bool {
	return t == TierTypeQuantity
}

func ParseTierType(value string) (TierType, error) {
	for _, candidate := range validTierTypes {
		if strings.EqualFold(string(candidate), strings.TrimSpace(value)) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tier type %q", value)
}

// PricingMode controls whether a product uses one price or snapshot tiers.
type PricingMode string

const (
	PricingModeSingle PricingMode = "single"
	PricingModeTiered PricingMode = "tiered"
)

func (m PricingMode) IsValid() bool {
	return m == PricingModeSingle || m == PricingModeTiered
}

func ParsePricingMode(value string) (PricingMode, error) {
	mode := PricingMode(strings.ToLower(strings.TrimSpace(value)))
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid pricing mode %q", value)
	}
	return mode, nil
}
