// Package domain holds the entity model shared by every layer: option
// contracts, positions, orders, account snapshots, quotes, and the
// errors broker adapters surface. Monetary values use decimals
// throughout; floats only appear at the wire boundary.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Right is an option's exercise right.
type Right string

const (
	RightCall Right = "CALL"
	RightPut  Right = "PUT"
)

// DefaultMultiplier is the contract multiplier of standard US equity
// options.
const DefaultMultiplier = 100

// ParseRight accepts the long and single-letter forms in any case.
func ParseRight(s string) (Right, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C", "CALL":
		return RightCall, nil
	case "P", "PUT":
		return RightPut, nil
	default:
		return "", fmt.Errorf("invalid option right %q", s)
	}
}

// Code returns the single-letter form used in option symbols.
func (r Right) Code() string {
	if r == RightCall {
		return "C"
	}
	return "P"
}

// Contract identifies one option contract.
type Contract struct {
	Symbol     string // underlying
	Strike     decimal.Decimal
	Expiration time.Time
	Right      Right
	Multiplier int
}

const (
	expDateLayout = "010206" // MMDDYY
	optionTailLen = 15       // MMDDYY + right + 8-digit strike
)

// OptionSymbol renders the composite symbol that identifies an option
// position across the codebase: the underlying, an underscore, MMDDYY,
// the right letter, and the strike in thousandths padded to eight
// digits, e.g. "AAPL_011525C00150000".
func (c Contract) OptionSymbol() string {
	return fmt.Sprintf("%s_%s%s%08d",
		c.Symbol,
		c.Expiration.Format(expDateLayout),
		c.Right.Code(),
		c.Strike.Shift(3).Round(0).IntPart(),
	)
}

// ParseOptionSymbol decodes a composite option symbol back into a
// contract. The underscore split is on the LAST underscore, so
// underlyings containing underscores survive.
func ParseOptionSymbol(s string) (Contract, error) {
	idx := strings.LastIndexByte(s, '_')
	if idx <= 0 {
		return Contract{}, fmt.Errorf("option symbol %q has no underlying", s)
	}
	symbol, tail := s[:idx], s[idx+1:]
	if len(tail) != optionTailLen {
		return Contract{}, fmt.Errorf("option symbol %q has malformed tail %q", s, tail)
	}

	expiration, err := time.ParseInLocation(expDateLayout, tail[:6], time.UTC)
	if err != nil {
		return Contract{}, fmt.Errorf("option symbol %q: bad expiration: %w", s, err)
	}
	right, err := ParseRight(tail[6:7])
	if err != nil {
		return Contract{}, fmt.Errorf("option symbol %q: %w", s, err)
	}
	mills, err := decimal.NewFromString(tail[7:])
	if err != nil {
		return Contract{}, fmt.Errorf("option symbol %q: bad strike: %w", s, err)
	}

	return Contract{
		Symbol:     symbol,
		Strike:     mills.Shift(-3),
		Expiration: expiration,
		Right:      right,
		Multiplier: DefaultMultiplier,
	}, nil
}

// DaysToExpiration counts whole days from now to expiration, negative
// once the contract has expired.
func (c Contract) DaysToExpiration(now time.Time) int {
	expiry := c.Expiration.UTC().Truncate(24 * time.Hour)
	today := now.UTC().Truncate(24 * time.Hour)
	return int(expiry.Sub(today).Hours() / 24)
}
