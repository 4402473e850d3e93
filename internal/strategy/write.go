package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/wheelbot/internal/domain"
)

// SkipReason says why no put was written for a symbol this cycle.
type SkipReason string

const (
	SkipNone                    SkipReason = ""
	SkipPutsDisabled            SkipReason = "puts_disabled"
	SkipAtTarget                SkipReason = "at_target"
	SkipUnderlyingRed           SkipReason = "underlying_red"
	SkipNoQuote                 SkipReason = "no_quote"
	SkipMissingBuyingPower      SkipReason = "missing_buying_power"
	SkipInsufficientBuyingPower SkipReason = "insufficient_buying_power"
)

// WriteDecision is the outcome of one symbol's put-write evaluation.
// Exactly one of Order and Skip is meaningful.
type WriteDecision struct {
	Symbol string
	Order  *domain.Order
	Skip   SkipReason
}

// LimitPricer prices the limit of a new short put from the underlying's
// quote.
type LimitPricer func(quote *domain.Quote) decimal.Decimal

// placeholderLimit keeps the order deep out of the market so it rests
// instead of filling at a bad price.
// TODO(pricing): replace with option midpoint pricing once the option
// quote fetch lands; this prices off the underlying.
func placeholderLimit(quote *domain.Quote) decimal.Decimal {
	return quote.Price().Mul(decimal.NewFromFloat(0.01)).Round(2)
}

// PutWriter decides whether to sell a new put on an underlying.
type PutWriter struct {
	// Enabled gates all put writing (write_when.puts).
	Enabled bool
	// RequireGreen only writes when the underlying is up on the day.
	RequireGreen bool
	// Pricer defaults to placeholderLimit.
	Pricer LimitPricer
	// Now defaults to time.Now; expirations are computed from it.
	Now func() time.Time
}

func (w *PutWriter) pricer() LimitPricer {
	if w.Pricer != nil {
		return w.Pricer
	}
	return placeholderLimit
}

func (w *PutWriter) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Decide evaluates one symbol against its target. Only the stock
// position held under the exact symbol counts toward the target; option
// positions on the underlying do not.
func (w *PutWriter) Decide(target Target, positions []domain.Position, buyingPower *decimal.Decimal, quote *domain.Quote) WriteDecision {
	decision := WriteDecision{Symbol: target.Symbol}

	if !w.Enabled {
		decision.Skip = SkipPutsDisabled
		return decision
	}
	if currentValue(target.Symbol, positions).GreaterThanOrEqual(target.TargetValue) {
		decision.Skip = SkipAtTarget
		return decision
	}
	if quote == nil || quote.Price() == nil || quote.Price().IsZero() {
		decision.Skip = SkipNoQuote
		return decision
	}
	price := *quote.Price()
	if w.RequireGreen && quote.Close != nil && !price.GreaterThan(*quote.Close) {
		decision.Skip = SkipUnderlyingRed
		return decision
	}
	if buyingPower == nil {
		decision.Skip = SkipMissingBuyingPower
		return decision
	}

	needed := price.Mul(decimal.NewFromInt(domain.DefaultMultiplier))
	if buyingPower.LessThan(needed) {
		decision.Skip = SkipInsufficientBuyingPower
		return decision
	}

	limit := w.pricer()(quote)
	decision.Order = &domain.Order{
		Contract: domain.Contract{
			Symbol:     target.Symbol,
			Strike:     putStrike(price, target.Delta),
			Expiration: w.now().UTC().AddDate(0, 0, target.DTE).Truncate(24 * time.Hour),
			Right:      domain.RightPut,
			Multiplier: domain.DefaultMultiplier,
		},
		Action:     domain.OrderActionSell,
		Quantity:   1,
		Type:       domain.OrderTypeLimit,
		LimitPrice: &limit,
		Effect:     domain.EffectOpen,
	}
	return decision
}

// putStrike places the strike delta percent below the price, quantized
// to the half-dollar grid most option chains list.
func putStrike(price decimal.Decimal, delta float64) decimal.Decimal {
	raw := price.Mul(decimal.NewFromFloat(1 - delta))
	return raw.Mul(decimal.NewFromInt(2)).Round(0).Div(decimal.NewFromInt(2))
}

// currentValue is the market value of the position held under the exact
// symbol, zero when no such position exists.
func currentValue(symbol string, positions []domain.Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		if p.Symbol == symbol {
			total = total.Add(p.MarketValue)
		}
	}
	return total
}
