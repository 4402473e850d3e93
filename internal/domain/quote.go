package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time market data snapshot for one symbol. Fields a
// backend did not deliver within the wait budget are nil.
type Quote struct {
	Last   *decimal.Decimal
	Bid    *decimal.Decimal
	Ask    *decimal.Decimal
	Close  *decimal.Decimal
	Volume int64
}

// Price returns the most useful tradable price: last, falling back to
// bid, or nil when neither is available.
func (q Quote) Price() *decimal.Decimal {
	if q.Last != nil {
		return q.Last
	}
	return q.Bid
}

// OptionChain lists the distinct expirations and strikes a backend offers
// for one underlying. Both slices are deduplicated and sorted ascending;
// an empty chain is a valid result, not an error.
type OptionChain struct {
	Symbol      string
	Expirations []time.Time
	Strikes     []decimal.Decimal
}
