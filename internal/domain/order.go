package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderAction indicates whether this is a buy or sell.
type OrderAction string

const (
	OrderActionBuy  OrderAction = "BUY"
	OrderActionSell OrderAction = "SELL"
)

// OrderType indicates the pricing discipline of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// PositionEffect says whether an order opens new exposure or closes
// existing exposure. Backends that distinguish opening from closing
// instructions (Schwab) need it; backends that only take a side (IBKR)
// ignore it, so it may be left empty when the intent is unknown.
type PositionEffect string

const (
	EffectOpen  PositionEffect = "OPEN"
	EffectClose PositionEffect = "CLOSE"
)

// Order is a single-leg option order. Multi-leg combo orders are out of
// scope for this model.
type Order struct {
	Contract   Contract
	Action     OrderAction
	Quantity   int // number of contracts, always positive
	Type       OrderType
	LimitPrice *decimal.Decimal // required iff Type is OrderTypeLimit
	Effect     PositionEffect   // optional, see PositionEffect
}

// Validate checks the order invariants before it is handed to a broker
// adapter.
func (o Order) Validate() error {
	if o.Contract.Symbol == "" {
		return fmt.Errorf("domain: order has no underlying symbol")
	}
	if o.Action != OrderActionBuy && o.Action != OrderActionSell {
		return fmt.Errorf("domain: invalid order action %q", o.Action)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("domain: order quantity must be positive, got %d", o.Quantity)
	}
	switch o.Type {
	case OrderTypeMarket:
		// no price to check
	case OrderTypeLimit:
		if o.LimitPrice == nil {
			return fmt.Errorf("domain: limit order for %s has no limit price", o.Contract.OptionSymbol())
		}
	default:
		return fmt.Errorf("domain: invalid order type %q", o.Type)
	}
	switch o.Effect {
	case "", EffectOpen, EffectClose:
	default:
		return fmt.Errorf("domain: invalid position effect %q", o.Effect)
	}
	return nil
}
