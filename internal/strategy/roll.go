package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/wheelbot/internal/domain"
)

// Roll-specific skip reasons.
const (
	SkipNotShortOption SkipReason = "not_short_option"
	SkipUnparsable     SkipReason = "unparsable_symbol"
	SkipBelowThreshold SkipReason = "below_threshold"
	SkipNoCostBasis    SkipReason = "no_cost_basis"
)

// RollDecision is the outcome of evaluating one position for a roll.
// When the position rolls, Close buys back the expiring contract and
// Open sells the replacement; both are market orders submitted as a
// pair.
type RollDecision struct {
	Position domain.Position
	Captured decimal.Decimal
	Close    *domain.Order
	Open     *domain.Order
	Skip     SkipReason
}

// Roller decides when short options are rolled forward.
type Roller struct {
	// PnLThreshold is the fraction of maximum profit that must be
	// captured before rolling (roll_when.pnl).
	PnLThreshold float64
	// TargetDTE is the days to expiration of the replacement contract.
	TargetDTE int
	// Now defaults to time.Now.
	Now func() time.Time
}

func (r *Roller) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Decide evaluates every position and returns one decision per short
// option. Stock and long option positions are not candidates and are
// omitted entirely.
func (r *Roller) Decide(positions []domain.Position) []RollDecision {
	var decisions []RollDecision
	for _, p := range positions {
		if !p.IsOption() || !p.IsShort() {
			continue
		}
		decisions = append(decisions, r.decideOne(p))
	}
	return decisions
}

func (r *Roller) decideOne(p domain.Position) RollDecision {
	decision := RollDecision{Position: p}

	contract, err := domain.ParseOptionSymbol(p.Symbol)
	if err != nil {
		decision.Skip = SkipUnparsable
		return decision
	}

	quantity := decimal.NewFromInt(-p.Quantity) // short, so positive
	basis := p.AverageCost.Mul(quantity)
	if basis.IsZero() {
		decision.Skip = SkipNoCostBasis
		return decision
	}

	decision.Captured = p.UnrealizedPnL.Div(basis)
	if decision.Captured.LessThan(decimal.NewFromFloat(r.PnLThreshold)) {
		decision.Skip = SkipBelowThreshold
		return decision
	}

	replacement := contract
	replacement.Expiration = r.now().UTC().AddDate(0, 0, r.TargetDTE).Truncate(24 * time.Hour)

	count := int(-p.Quantity)
	decision.Close = &domain.Order{
		Contract: contract,
		Action:   domain.OrderActionBuy,
		Quantity: count,
		Type:     domain.OrderTypeMarket,
		Effect:   domain.EffectClose,
	}
	decision.Open = &domain.Order{
		Contract: replacement,
		Action:   domain.OrderActionSell,
		Quantity: count,
		Type:     domain.OrderTypeMarket,
		Effect:   domain.EffectOpen,
	}
	return decision
}
