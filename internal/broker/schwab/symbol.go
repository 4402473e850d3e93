package schwab

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/wheelbot/internal/domain"
)

// The API identifies options by OSI symbol: the underlying root padded
// to six characters, YYMMDD expiration, C or P, and the strike in
// thousandths padded to eight digits, e.g. "AAPL  250115P00105000".

const (
	osiRootWidth  = 6
	osiTailLen    = 15 // YYMMDD + right + 8-digit strike
	osiDateLayout = "060102"
)

// toOSI renders a contract as the API's option symbol.
func toOSI(c domain.Contract) string {
	return fmt.Sprintf("%-*s%s%s%08d",
		osiRootWidth,
		c.Symbol,
		c.Expiration.Format(osiDateLayout),
		c.Right.Code(),
		c.Strike.Shift(3).Round(0).IntPart(),
	)
}

// parseOSI decodes an API option symbol into a contract. The root may
// arrive padded or bare; both forms are accepted.
func parseOSI(s string) (domain.Contract, error) {
	if len(s) <= osiTailLen {
		return domain.Contract{}, fmt.Errorf("option symbol %q too short", s)
	}
	root := strings.TrimRight(s[:len(s)-osiTailLen], " ")
	if root == "" {
		return domain.Contract{}, fmt.Errorf("option symbol %q has empty root", s)
	}
	tail := s[len(s)-osiTailLen:]

	expiration, err := time.ParseInLocation(osiDateLayout, tail[:6], time.UTC)
	if err != nil {
		return domain.Contract{}, fmt.Errorf("option symbol %q: bad expiration: %w", s, err)
	}
	right, err := domain.ParseRight(tail[6:7])
	if err != nil {
		return domain.Contract{}, fmt.Errorf("option symbol %q: %w", s, err)
	}
	mills, err := decimal.NewFromString(tail[7:])
	if err != nil {
		return domain.Contract{}, fmt.Errorf("option symbol %q: bad strike: %w", s, err)
	}

	return domain.Contract{
		Symbol:     root,
		Strike:     mills.Shift(-3),
		Expiration: expiration,
		Right:      right,
		Multiplier: domain.DefaultMultiplier,
	}, nil
}
