// Package strategy holds the pure decision engine: position targets,
// put-write decisions, and roll decisions. Nothing here talks to a
// broker; callers feed in portfolio state and quotes and submit the
// orders that come back.
package strategy

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/wheelbot/internal/config"
	"github.com/alanyoungcy/wheelbot/internal/domain"
)

// Target is one underlying's position target for the current cycle.
type Target struct {
	Symbol string
	Weight float64
	Delta  float64
	DTE    int

	// TargetValue is Weight applied to net liquidation.
	TargetValue decimal.Decimal
}

// ComputeTargets derives per-symbol targets from the configured weights
// and the account's net liquidation value. Net liquidation is the basis
// of every target, so its absence aborts the whole computation.
func ComputeTargets(cfg *config.Config, account domain.AccountSnapshot) ([]Target, error) {
	if account.NetLiquidation == nil {
		return nil, fmt.Errorf("strategy: compute targets: %w: net liquidation", domain.ErrMissingAccountField)
	}

	targets := make([]Target, 0, len(cfg.Symbols))
	for symbol, sc := range cfg.Symbols {
		weight := decimal.NewFromFloat(sc.Weight)
		targets = append(targets, Target{
			Symbol:      symbol,
			Weight:      sc.Weight,
			Delta:       cfg.SymbolDelta(symbol),
			DTE:         cfg.SymbolDTE(symbol),
			TargetValue: account.NetLiquidation.Mul(weight),
		})
	}
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].Symbol < targets[j].Symbol
	})
	return targets, nil
}
