package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Position represents a single netted holding in the account. Quantity
// carries the economic direction of exposure: positive is long, negative
// is short. Backends that report long and short sub-legs separately must
// be netted by the adapter before a Position is constructed, and option
// cost bases must be normalised to per-contract dollars regardless of
// how the backend prices them.
type Position struct {
	Symbol        string // broker-native for stock, composite for options
	Quantity      int64
	AverageCost   decimal.Decimal
	MarketValue   decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// IsOption reports whether the position's symbol embeds option metadata
// (the composite UNDERLYING_MMDDYY[C|P]SSSSSSSS encoding).
func (p Position) IsOption() bool {
	return strings.ContainsRune(p.Symbol, '_')
}

// IsShort reports whether the position is net short.
func (p Position) IsShort() bool {
	return p.Quantity < 0
}
