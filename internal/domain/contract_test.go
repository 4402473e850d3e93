package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestOptionSymbolFormat(t *testing.T) {
	t.Parallel()

	c := Contract{
		Symbol:     "AAPL",
		Strike:     decimal.RequireFromString("150"),
		Expiration: date(2025, time.January, 15),
		Right:      RightCall,
		Multiplier: DefaultMultiplier,
	}
	assert.Equal(t, "AAPL_011525C00150000", c.OptionSymbol())
}

func TestOptionSymbolRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		strike string
		right  Right
	}{
		{"whole dollar", "150", RightCall},
		{"half point", "105.5", RightPut},
		{"exact cents", "152.37", RightPut},
		{"quarter point", "37.25", RightCall},
		{"four figures", "4510", RightPut},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			orig := Contract{
				Symbol:     "SPY",
				Strike:     decimal.RequireFromString(tc.strike),
				Expiration: date(2026, time.March, 20),
				Right:      tc.right,
				Multiplier: DefaultMultiplier,
			}

			parsed, err := ParseOptionSymbol(orig.OptionSymbol())
			require.NoError(t, err)

			assert.Equal(t, orig.Symbol, parsed.Symbol)
			assert.True(t, orig.Strike.Equal(parsed.Strike),
				"strike %s round-tripped to %s", orig.Strike, parsed.Strike)
			assert.True(t, orig.Expiration.Equal(parsed.Expiration))
			assert.Equal(t, orig.Right, parsed.Right)
			assert.Equal(t, DefaultMultiplier, parsed.Multiplier)
		})
	}
}

func TestParseOptionSymbolRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, sym := range []string{
		"AAPL",                  // no underscore
		"_011525C00150000",      // empty underlying
		"AAPL_011525C0015000",   // short strike
		"AAPL_011525X00150000",  // bad right
		"AAPL_991399C00150000",  // impossible date
		"AAPL_011525C0015000a",  // non-numeric strike
		"AAPL_01525C001500000",  // short date
	} {
		_, err := ParseOptionSymbol(sym)
		assert.Error(t, err, "expected %q to fail", sym)
	}
}

func TestDaysToExpiration(t *testing.T) {
	t.Parallel()

	c := Contract{Symbol: "SPY", Expiration: date(2025, time.June, 20)}
	now := time.Date(2025, time.June, 1, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, 19, c.DaysToExpiration(now))

	past := time.Date(2025, time.June, 25, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, -5, c.DaysToExpiration(past))
}

func TestParseRight(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Right{
		"C": RightCall, "call": RightCall, "CALL": RightCall,
		"P": RightPut, "put": RightPut, " PUT ": RightPut,
	} {
		got, err := ParseRight(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseRight("straddle")
	assert.Error(t, err)
}
