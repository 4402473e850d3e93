package broker

import (
	"log/slog"
	"strings"

	"github.com/alanyoungcy/wheelbot/internal/broker/ibkr"
	"github.com/alanyoungcy/wheelbot/internal/broker/schwab"
	"github.com/alanyoungcy/wheelbot/internal/config"
	"github.com/alanyoungcy/wheelbot/internal/domain"
)

// Both adapters must satisfy the full capability contract.
var (
	_ Broker = (*ibkr.Broker)(nil)
	_ Broker = (*schwab.Broker)(nil)
)

// New builds the adapter named by cfg.Account.Broker. A name outside the
// supported set is a fatal configuration error reported as
// *domain.UnsupportedBrokerError.
func New(cfg *config.Config, logger *slog.Logger) (Broker, error) {
	switch strings.ToLower(cfg.Account.Broker) {
	case config.BrokerIBKR:
		return ibkr.New(cfg.Account.IBKR, cfg.Orders, logger), nil
	case config.BrokerSchwab:
		return schwab.New(cfg.Account.Schwab, logger), nil
	default:
		return nil, &domain.UnsupportedBrokerError{Name: cfg.Account.Broker}
	}
}
