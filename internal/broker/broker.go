// Package broker defines the capability contract every brokerage backend
// adapter implements, and the factory that selects an adapter from the
// closed set of supported backends.
//
// Adapters translate backend-native responses into the entity model in
// internal/domain and never leak backend-native types past their own
// boundary.
package broker

import (
	"context"
	"time"

	"github.com/alanyoungcy/wheelbot/internal/domain"
)

// Broker abstracts brokerage operations for account state, market data,
// and order execution.
type Broker interface {
	// Name returns the broker identifier ("ibkr" or "schwab").
	Name() string

	// Connect establishes or validates a session. It is idempotent when
	// already connected and returns false (never an error) on credential
	// or connectivity failure so callers can branch on the common case.
	Connect(ctx context.Context) bool

	// Disconnect releases the session. Calling it when not connected is
	// a no-op.
	Disconnect(ctx context.Context)

	// GetAccountInfo returns the account balances the backend reports.
	// It fails with domain.ErrNotConnected before a successful Connect.
	GetAccountInfo(ctx context.Context) (domain.AccountSnapshot, error)

	// GetPositions returns all current positions, with long/short
	// sub-legs netted per symbol. Ordering is unspecified.
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// GetOpenOrders returns the open orders the adapter could parse.
	// Backend-native orders that do not fit the single-leg option model
	// are logged and skipped; partial results are acceptable.
	GetOpenOrders(ctx context.Context) ([]domain.Order, error)

	// PlaceOrder resolves the contract against the backend's security
	// master where required, submits the order, and returns the
	// backend-assigned order id. Rejections surface as
	// *domain.SubmissionError, never as a sentinel id.
	PlaceOrder(ctx context.Context, order domain.Order) (string, error)

	// CancelOrder cancels an open order. It returns false when the id is
	// not found among currently open orders; "not found" and "found and
	// cancelled" are the only two outcomes exposed.
	CancelOrder(ctx context.Context, orderID string) (bool, error)

	// GetOptionChain returns the distinct expirations and strikes for an
	// underlying, optionally narrowed to one expiration. An empty chain
	// is a valid result.
	GetOptionChain(ctx context.Context, symbol string, expiration *time.Time) (domain.OptionChain, error)

	// GetMarketData returns a quote per requested symbol. A symbol with
	// no quote available within the wait budget maps to a nil entry; a
	// per-symbol failure never aborts the rest of the batch.
	GetMarketData(ctx context.Context, symbols []string) (map[string]*domain.Quote, error)
}
