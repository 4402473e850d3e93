package domain

import "github.com/shopspring/decimal"

// AccountSnapshot holds the account-level balances a backend reports. All
// fields are optional: a nil field means the backend did not report it,
// which callers must never silently treat as zero.
type AccountSnapshot struct {
	BuyingPower       *decimal.Decimal
	Cash              *decimal.Decimal
	NetLiquidation    *decimal.Decimal
	Equity            *decimal.Decimal
	MaintenanceMargin *decimal.Decimal
}

// Money is a convenience for adapters building optional snapshot fields
// from backend floats.
func Money(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}
