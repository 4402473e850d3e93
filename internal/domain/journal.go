package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderRecord is one row of the append-only order journal: an order the
// bot decided to place, the decision that produced it, and the id the
// backend assigned (empty for dry runs and failed submissions).
type OrderRecord struct {
	ID            string
	Broker        string
	Symbol        string // underlying
	OptionSymbol  string
	Action        OrderAction
	Type          OrderType
	Quantity      int
	LimitPrice    *decimal.Decimal
	BrokerOrderID string
	Reason        string // e.g. "write_put", "roll_close", "roll_open"
	DryRun        bool
	CreatedAt     time.Time
}

// OrderJournal persists order records.
type OrderJournal interface {
	Record(ctx context.Context, rec OrderRecord) error
	ListRecent(ctx context.Context, limit int) ([]OrderRecord, error)
	Close() error
}
