package types

import "github.com/shopspring/decimal"

func init() {
	// Prices travel as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// CentsTolerance is the largest client/server total mismatch accepted.
var CentsTolerance = decimal.New(1, -2)

// RoundCents rounds a currency amount half-up to two places.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// WithinCents reports whether two amounts differ by at most one cent.
func WithinCents(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(CentsTolerance)
}

// DecimalPtr is a convenience for optional decimal fields.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
