// Package portfolio caches the account's portfolio state so one
// management cycle's repeated reads hit the broker backend at most once
// per freshness window.
package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/wheelbot/internal/broker"
	"github.com/alanyoungcy/wheelbot/internal/domain"
)

// DefaultMaxAge is the freshness window for cached portfolio state.
const DefaultMaxAge = 30 * time.Second

// Snapshot is a point-in-time view of positions and account balances,
// captured together so they describe the same moment.
type Snapshot struct {
	Positions  []domain.Position
	Account    domain.AccountSnapshot
	CapturedAt time.Time
}

// Cache serves portfolio snapshots, refreshing from the broker when the
// held one is older than maxAge. Concurrent refreshes collapse into one
// backend round trip.
type Cache struct {
	broker broker.Broker
	logger *slog.Logger
	maxAge time.Duration
	now    func() time.Time

	group singleflight.Group

	mu   sync.Mutex
	snap *Snapshot
}

// NewCache creates a cache with the default freshness window.
func NewCache(b broker.Broker, logger *slog.Logger) *Cache {
	return &Cache{
		broker: b,
		logger: logger.With(slog.String("component", "portfolio")),
		maxAge: DefaultMaxAge,
		now:    time.Now,
	}
}

// Snapshot returns the cached snapshot, refreshing it first when stale
// or absent. A failed refresh leaves any previous snapshot in place and
// returns the error.
func (c *Cache) Snapshot(ctx context.Context) (*Snapshot, error) {
	if snap := c.fresh(); snap != nil {
		return snap, nil
	}

	result, err, _ := c.group.Do("refresh", func() (any, error) {
		// A waiter may arrive just after another flight finished.
		if snap := c.fresh(); snap != nil {
			return snap, nil
		}
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Snapshot), nil
}

// Invalidate drops the held snapshot so the next read refreshes. Called
// after order submissions, which change positions and buying power.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
}

func (c *Cache) fresh() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil || c.now().Sub(c.snap.CapturedAt) >= c.maxAge {
		return nil
	}
	return c.snap
}

func (c *Cache) refresh(ctx context.Context) (*Snapshot, error) {
	positions, err := c.broker.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio: refresh positions: %w", err)
	}
	account, err := c.broker.GetAccountInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio: refresh account: %w", err)
	}

	snap := &Snapshot{
		Positions:  positions,
		Account:    account,
		CapturedAt: c.now(),
	}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "refreshed portfolio snapshot",
		slog.Int("positions", len(positions)))
	return snap, nil
}
