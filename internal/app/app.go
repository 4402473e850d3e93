// Package app wires the configured broker, portfolio cache, journal,
// and manager together and runs one management cycle.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/wheelbot/internal/broker"
	"github.com/alanyoungcy/wheelbot/internal/config"
	"github.com/alanyoungcy/wheelbot/internal/domain"
	"github.com/alanyoungcy/wheelbot/internal/portfolio"
	"github.com/alanyoungcy/wheelbot/internal/service"
	"github.com/alanyoungcy/wheelbot/internal/store/sqlite"
)

// App owns the wired components and their teardown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an app. Wiring happens in Run so construction cannot fail.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run connects the broker, runs one management cycle, and tears down.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	b, err := broker.New(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if !b.Connect(ctx) {
		return fmt.Errorf("app: cannot connect to broker %q", b.Name())
	}
	a.closers = append(a.closers, func() {
		// Run's ctx may already be cancelled during shutdown.
		b.Disconnect(context.Background())
	})

	var journal domain.OrderJournal
	if a.cfg.Journal.Path != "" {
		j, err := sqlite.Open(a.cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("app: open journal: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := j.Close(); err != nil {
				a.logger.Warn("closing journal failed", slog.String("error", err.Error()))
			}
		})
		journal = j
	}

	cache := portfolio.NewCache(b, a.logger)
	manager := service.NewManager(b, cache, a.cfg, journal, a.logger)
	return manager.ManageCycle(ctx)
}

// close runs teardown in reverse wiring order.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
