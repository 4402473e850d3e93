// Package service orchestrates one management cycle: refresh portfolio
// state, evaluate the decision engine, and submit the orders it emits.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/wheelbot/internal/broker"
	"github.com/alanyoungcy/wheelbot/internal/config"
	"github.com/alanyoungcy/wheelbot/internal/domain"
	"github.com/alanyoungcy/wheelbot/internal/portfolio"
	"github.com/alanyoungcy/wheelbot/internal/strategy"
)

// Journal reasons recorded per order.
const (
	reasonWritePut  = "write_put"
	reasonRollClose = "roll_close"
	reasonRollOpen  = "roll_open"
)

// Manager runs management cycles against one broker.
type Manager struct {
	broker  broker.Broker
	cache   *portfolio.Cache
	cfg     *config.Config
	writer  *strategy.PutWriter
	roller  *strategy.Roller
	journal domain.OrderJournal // nil disables journaling
	logger  *slog.Logger
	dryRun  bool
}

// NewManager wires a manager from configuration. journal may be nil.
func NewManager(b broker.Broker, cache *portfolio.Cache, cfg *config.Config, journal domain.OrderJournal, logger *slog.Logger) *Manager {
	return &Manager{
		broker: b,
		cache:  cache,
		cfg:    cfg,
		writer: &strategy.PutWriter{
			Enabled:      true,
			RequireGreen: cfg.WriteWhen.Puts.Green,
		},
		roller: &strategy.Roller{
			PnLThreshold: cfg.RollWhen.PnL,
			TargetDTE:    cfg.Target.DTE,
		},
		journal: journal,
		logger:  logger.With(slog.String("component", "manager")),
		dryRun:  cfg.DryRun,
	}
}

// ManageCycle runs one cycle. Cycle-level failures (no portfolio state,
// no targets) abort it; per-symbol and per-order failures are logged and
// the cycle moves on.
func (m *Manager) ManageCycle(ctx context.Context) error {
	snap, err := m.cache.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("manager: portfolio state unavailable: %w", err)
	}

	m.logger.InfoContext(ctx, "starting management cycle",
		slog.String("broker", m.broker.Name()),
		slog.Bool("dry_run", m.dryRun),
		slog.Int("positions", len(snap.Positions)),
		moneyAttr("net_liquidation", snap.Account.NetLiquidation),
		moneyAttr("buying_power", snap.Account.BuyingPower),
	)

	targets, err := strategy.ComputeTargets(m.cfg, snap.Account)
	if err != nil {
		return fmt.Errorf("manager: %w", err)
	}

	quotes := m.fetchQuotes(ctx, targets)
	m.writePuts(ctx, targets, snap, quotes)
	m.rollPositions(ctx, snap)

	m.logger.InfoContext(ctx, "management cycle complete")
	return nil
}

// fetchQuotes batches all target symbols into one market data request.
// A failed fetch degrades to per-symbol no-quote skips rather than
// aborting the cycle.
func (m *Manager) fetchQuotes(ctx context.Context, targets []strategy.Target) map[string]*domain.Quote {
	symbols := make([]string, len(targets))
	for i, t := range targets {
		symbols[i] = t.Symbol
	}

	quotes, err := m.broker.GetMarketData(ctx, symbols)
	if err != nil {
		m.logger.WarnContext(ctx, "market data unavailable", slog.String("error", err.Error()))
		return map[string]*domain.Quote{}
	}
	return quotes
}

func (m *Manager) writePuts(ctx context.Context, targets []strategy.Target, snap *portfolio.Snapshot, quotes map[string]*domain.Quote) {
	for _, target := range targets {
		decision := m.writer.Decide(target, snap.Positions, snap.Account.BuyingPower, quotes[target.Symbol])
		if decision.Skip != strategy.SkipNone {
			m.logger.InfoContext(ctx, "not writing put",
				slog.String("symbol", target.Symbol),
				slog.String("reason", string(decision.Skip)),
			)
			continue
		}
		m.submit(ctx, *decision.Order, reasonWritePut)
	}
}

func (m *Manager) rollPositions(ctx context.Context, snap *portfolio.Snapshot) {
	for _, decision := range m.roller.Decide(snap.Positions) {
		if decision.Skip != strategy.SkipNone {
			m.logger.DebugContext(ctx, "not rolling position",
				slog.String("symbol", decision.Position.Symbol),
				slog.String("reason", string(decision.Skip)),
			)
			continue
		}

		m.logger.InfoContext(ctx, "rolling position",
			slog.String("symbol", decision.Position.Symbol),
			slog.String("captured", decision.Captured.StringFixed(4)),
		)
		// The opening leg only goes out once the close is accepted;
		// otherwise the roll would double the short exposure.
		if err := m.submit(ctx, *decision.Close, reasonRollClose); err != nil {
			continue
		}
		m.submit(ctx, *decision.Open, reasonRollOpen)
	}
}

// submit journals and places one order. In dry-run mode the order is
// journaled but never reaches the broker. Submission failures are
// logged, journaled without a broker id, and reported to the caller.
func (m *Manager) submit(ctx context.Context, order domain.Order, reason string) error {
	record := domain.OrderRecord{
		Broker:       m.broker.Name(),
		Symbol:       order.Contract.Symbol,
		OptionSymbol: order.Contract.OptionSymbol(),
		Action:       order.Action,
		Type:         order.Type,
		Quantity:     order.Quantity,
		LimitPrice:   order.LimitPrice,
		Reason:       reason,
		DryRun:       m.dryRun,
	}

	if m.dryRun {
		m.logger.InfoContext(ctx, "dry run, order not submitted",
			slog.String("symbol", record.OptionSymbol),
			slog.String("action", string(order.Action)),
			slog.String("reason", reason),
		)
		m.journalRecord(ctx, record)
		return nil
	}

	orderID, err := m.broker.PlaceOrder(ctx, order)
	if err != nil {
		var se *domain.SubmissionError
		if errors.As(err, &se) {
			m.logger.ErrorContext(ctx, "order rejected",
				slog.String("symbol", record.OptionSymbol),
				slog.String("broker", se.Broker),
				slog.String("rejection", se.Reason),
			)
		} else {
			m.logger.ErrorContext(ctx, "order submission failed",
				slog.String("symbol", record.OptionSymbol),
				slog.String("error", err.Error()),
			)
		}
		m.journalRecord(ctx, record)
		return err
	}

	record.BrokerOrderID = orderID
	m.logger.InfoContext(ctx, "order submitted",
		slog.String("symbol", record.OptionSymbol),
		slog.String("action", string(order.Action)),
		slog.String("order_id", orderID),
		slog.String("reason", reason),
	)
	m.journalRecord(ctx, record)

	// Positions and buying power just changed.
	m.cache.Invalidate()
	return nil
}

func (m *Manager) journalRecord(ctx context.Context, record domain.OrderRecord) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Record(ctx, record); err != nil {
		m.logger.WarnContext(ctx, "journal write failed", slog.String("error", err.Error()))
	}
}

func moneyAttr(key string, value *decimal.Decimal) slog.Attr {
	if value == nil {
		return slog.String(key, "unknown")
	}
	return slog.String(key, value.StringFixed(2))
}
