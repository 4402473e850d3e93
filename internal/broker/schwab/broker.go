package schwab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/wheelbot/internal/config"
	"github.com/alanyoungcy/wheelbot/internal/domain"
)

// enteredTimeLayout is the timestamp format the orders endpoint expects.
const enteredTimeLayout = "2006-01-02T15:04:05.000Z"

// openOrderWindow bounds the order search; the API requires an explicit
// entered-time range.
const openOrderWindow = 60 * 24 * time.Hour

// Broker is the Schwab trader API adapter.
type Broker struct {
	cfg    config.SchwabConfig
	client *Client
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	connected bool
}

// New creates the adapter. The session is not validated until Connect.
func New(cfg config.SchwabConfig, logger *slog.Logger) *Broker {
	return &Broker{
		cfg:    cfg,
		client: NewClient(cfg.BaseURL, cfg.MarketDataURL, cfg.AppKey, cfg.AppSecret, cfg.TokenPath),
		logger: logger.With(slog.String("component", "schwab")),
		now:    time.Now,
	}
}

// Name returns "schwab".
func (b *Broker) Name() string {
	return config.BrokerSchwab
}

// Connect exercises the token refresh path and verifies the configured
// account hash belongs to this login. Idempotent; failure reports false.
func (b *Broker) Connect(ctx context.Context) bool {
	b.mu.Lock()
	if b.connected {
		b.mu.Unlock()
		return true
	}
	b.mu.Unlock()

	var accounts []accountNumbersItem
	if err := b.client.get(ctx, b.client.baseURL+"/trader/v1/accounts/accountNumbers", &accounts); err != nil {
		b.logger.WarnContext(ctx, "account lookup failed", slog.String("error", err.Error()))
		return false
	}

	found := false
	for _, acct := range accounts {
		if acct.HashValue == b.cfg.AccountHash {
			found = true
			break
		}
	}
	if !found {
		b.logger.WarnContext(ctx, "configured account hash not found in login",
			slog.Int("accounts", len(accounts)))
		return false
	}

	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()

	b.logger.InfoContext(ctx, "connected to trader api")
	return true
}

// Disconnect drops the local session flag. The API is stateless beyond
// the token file, so there is nothing to tear down remotely.
func (b *Broker) Disconnect(ctx context.Context) {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
}

func (b *Broker) requireConnected() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return domain.ErrNotConnected
	}
	return nil
}

func (b *Broker) accountURL(suffix string) string {
	return b.client.baseURL + "/trader/v1/accounts/" + url.PathEscape(b.cfg.AccountHash) + suffix
}

// GetAccountInfo maps the account's current balances onto a snapshot.
// Balances the API omits stay nil.
func (b *Broker) GetAccountInfo(ctx context.Context) (domain.AccountSnapshot, error) {
	if err := b.requireConnected(); err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("schwab: get account info: %w", err)
	}

	var resp accountResponse
	if err := b.client.get(ctx, b.accountURL(""), &resp); err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("schwab: get account info: %w", err)
	}

	balances := resp.SecuritiesAccount.CurrentBalances
	snap := domain.AccountSnapshot{}
	if balances.BuyingPower != nil {
		snap.BuyingPower = domain.Money(*balances.BuyingPower)
	}
	if balances.CashBalance != nil {
		snap.Cash = domain.Money(*balances.CashBalance)
	}
	if balances.LiquidationValue != nil {
		snap.NetLiquidation = domain.Money(*balances.LiquidationValue)
	}
	if balances.Equity != nil {
		snap.Equity = domain.Money(*balances.Equity)
	}
	if balances.MaintenanceRequirement != nil {
		snap.MaintenanceMargin = domain.Money(*balances.MaintenanceRequirement)
	}
	return snap, nil
}

// GetPositions returns current positions with the API's separate long
// and short quantities netted into one signed quantity per row.
func (b *Broker) GetPositions(ctx context.Context) ([]domain.Position, error) {
	if err := b.requireConnected(); err != nil {
		return nil, fmt.Errorf("schwab: get positions: %w", err)
	}

	var resp accountResponse
	if err := b.client.get(ctx, b.accountURL("?fields=positions"), &resp); err != nil {
		return nil, fmt.Errorf("schwab: get positions: %w", err)
	}

	rows := resp.SecuritiesAccount.Positions
	positions := make([]domain.Position, 0, len(rows))
	for _, row := range rows {
		avgCost := decimal.NewFromFloat(row.AveragePrice)
		if row.Instrument.AssetType == "OPTION" {
			// The API prices options per share; the cost basis the rest
			// of the codebase works with is per contract.
			avgCost = avgCost.Mul(decimal.NewFromInt(domain.DefaultMultiplier))
		}
		positions = append(positions, domain.Position{
			Symbol:        b.positionSymbol(ctx, row.Instrument),
			Quantity:      int64(math.Round(row.LongQuantity - row.ShortQuantity)),
			AverageCost:   avgCost,
			MarketValue:   decimal.NewFromFloat(row.MarketValue),
			UnrealizedPnL: decimal.NewFromFloat(row.LongOpenProfitLoss + row.ShortOpenProfitLoss),
		})
	}

	b.logger.DebugContext(ctx, "retrieved positions", slog.Int("count", len(positions)))
	return positions, nil
}

func (b *Broker) positionSymbol(ctx context.Context, inst instrument) string {
	if inst.AssetType != "OPTION" {
		return inst.Symbol
	}
	contract, err := parseOSI(inst.Symbol)
	if err != nil {
		b.logger.WarnContext(ctx, "cannot normalise option position",
			slog.String("symbol", inst.Symbol),
			slog.String("error", err.Error()),
		)
		return inst.Symbol
	}
	return contract.OptionSymbol()
}

// GetOpenOrders returns working orders from the trailing search window
// that fit the single-leg option model; the rest are logged and skipped.
func (b *Broker) GetOpenOrders(ctx context.Context) ([]domain.Order, error) {
	if err := b.requireConnected(); err != nil {
		return nil, fmt.Errorf("schwab: get open orders: %w", err)
	}

	now := b.now().UTC()
	query := url.Values{}
	query.Set("status", "WORKING")
	query.Set("fromEnteredTime", now.Add(-openOrderWindow).Format(enteredTimeLayout))
	query.Set("toEnteredTime", now.Format(enteredTimeLayout))

	var rows []orderResponse
	if err := b.client.get(ctx, b.accountURL("/orders?"+query.Encode()), &rows); err != nil {
		return nil, fmt.Errorf("schwab: get open orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		order, err := parseOrder(row)
		if err != nil {
			b.logger.WarnContext(ctx, "skipping unparsable open order",
				slog.Int64("order_id", row.OrderID),
				slog.String("error", err.Error()),
			)
			continue
		}
		orders = append(orders, order)
	}

	b.logger.DebugContext(ctx, "retrieved open orders", slog.Int("count", len(orders)))
	return orders, nil
}

func parseOrder(row orderResponse) (domain.Order, error) {
	if len(row.OrderLegCollection) != 1 {
		return domain.Order{}, fmt.Errorf("order has %d legs", len(row.OrderLegCollection))
	}
	leg := row.OrderLegCollection[0]
	if leg.Instrument.AssetType != "OPTION" {
		return domain.Order{}, fmt.Errorf("unsupported asset type %q", leg.Instrument.AssetType)
	}

	contract, err := parseOSI(leg.Instrument.Symbol)
	if err != nil {
		return domain.Order{}, err
	}

	var action domain.OrderAction
	var effect domain.PositionEffect
	switch leg.Instruction {
	case "BUY_TO_OPEN":
		action, effect = domain.OrderActionBuy, domain.EffectOpen
	case "BUY_TO_CLOSE":
		action, effect = domain.OrderActionBuy, domain.EffectClose
	case "SELL_TO_OPEN":
		action, effect = domain.OrderActionSell, domain.EffectOpen
	case "SELL_TO_CLOSE":
		action, effect = domain.OrderActionSell, domain.EffectClose
	case "BUY":
		action = domain.OrderActionBuy
	case "SELL":
		action = domain.OrderActionSell
	default:
		return domain.Order{}, fmt.Errorf("unsupported instruction %q", leg.Instruction)
	}

	quantity := int(math.Round(leg.Quantity))
	if quantity <= 0 {
		return domain.Order{}, fmt.Errorf("order has no quantity")
	}

	order := domain.Order{
		Contract: contract,
		Action:   action,
		Quantity: quantity,
		Effect:   effect,
	}
	switch row.OrderType {
	case "LIMIT":
		price := decimal.NewFromFloat(row.Price)
		order.Type = domain.OrderTypeLimit
		order.LimitPrice = &price
	case "MARKET":
		order.Type = domain.OrderTypeMarket
	default:
		return domain.Order{}, fmt.Errorf("unsupported order type %q", row.OrderType)
	}
	return order, nil
}

// PlaceOrder submits a single-leg option order and reads the assigned id
// out of the Location header. The instruction combines the order's side
// with its position effect; orders without an effect fall back to
// BUY_TO_OPEN / SELL_TO_CLOSE.
func (b *Broker) PlaceOrder(ctx context.Context, order domain.Order) (string, error) {
	if err := b.requireConnected(); err != nil {
		return "", fmt.Errorf("schwab: place order: %w", err)
	}
	if err := order.Validate(); err != nil {
		return "", fmt.Errorf("schwab: place order: %w", err)
	}

	body := orderRequest{
		OrderType:         string(order.Type),
		Session:           "NORMAL",
		Duration:          "DAY",
		OrderStrategyType: "SINGLE",
		OrderLegCollection: []orderLeg{{
			Instruction: instruction(order),
			Quantity:    float64(order.Quantity),
			Instrument: instrument{
				AssetType: "OPTION",
				Symbol:    toOSI(order.Contract),
			},
		}},
	}
	if order.Type == domain.OrderTypeLimit {
		body.Price = order.LimitPrice.StringFixed(2)
	}

	headers, err := b.client.post(ctx, b.accountURL("/orders"), body, nil)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return "", &domain.SubmissionError{Broker: config.BrokerSchwab, Reason: se.Body}
		}
		return "", fmt.Errorf("schwab: place order: %w", err)
	}

	location := headers.Get("Location")
	if location == "" {
		return "", &domain.SubmissionError{
			Broker: config.BrokerSchwab,
			Reason: "response carried no order location",
		}
	}
	orderID := location[strings.LastIndexByte(location, '/')+1:]
	if orderID == "" {
		return "", &domain.SubmissionError{
			Broker: config.BrokerSchwab,
			Reason: fmt.Sprintf("cannot extract order id from location %q", location),
		}
	}

	b.logger.InfoContext(ctx, "placed order",
		slog.String("order_id", orderID),
		slog.String("symbol", order.Contract.OptionSymbol()),
	)
	return orderID, nil
}

// instruction renders the API's opening/closing order instruction.
func instruction(order domain.Order) string {
	if order.Action == domain.OrderActionBuy {
		if order.Effect == domain.EffectClose {
			return "BUY_TO_CLOSE"
		}
		return "BUY_TO_OPEN"
	}
	if order.Effect == domain.EffectOpen {
		return "SELL_TO_OPEN"
	}
	return "SELL_TO_CLOSE"
}

// CancelOrder cancels a working order. An id the API does not know maps
// to the "not found" outcome.
func (b *Broker) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if err := b.requireConnected(); err != nil {
		return false, fmt.Errorf("schwab: cancel order: %w", err)
	}

	err := b.client.delete(ctx, b.accountURL("/orders/"+url.PathEscape(orderID)))
	if err == nil {
		b.logger.InfoContext(ctx, "cancelled order", slog.String("order_id", orderID))
		return true, nil
	}

	var se *statusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("schwab: cancel order: %w", err)
}

// GetOptionChain returns the distinct expirations and strikes of the
// underlying's chain, optionally narrowed to one expiration date.
func (b *Broker) GetOptionChain(ctx context.Context, symbol string, expiration *time.Time) (domain.OptionChain, error) {
	if err := b.requireConnected(); err != nil {
		return domain.OptionChain{}, fmt.Errorf("schwab: get option chain: %w", err)
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	if expiration != nil {
		day := expiration.UTC().Format("2006-01-02")
		query.Set("fromDate", day)
		query.Set("toDate", day)
	}

	var resp chainResponse
	chainURL := b.client.marketDataURL + "/chains?" + query.Encode()
	if err := b.client.get(ctx, chainURL, &resp); err != nil {
		return domain.OptionChain{}, fmt.Errorf("schwab: get option chain %s: %w", symbol, err)
	}

	chain := domain.OptionChain{Symbol: symbol}
	seenExp := make(map[string]struct{})
	seenStrike := make(map[string]struct{})
	for _, expMap := range []map[string]map[string][]chainContract{resp.CallExpDateMap, resp.PutExpDateMap} {
		for key, strikes := range expMap {
			// Expiration keys carry a DTE suffix, e.g. "2025-01-15:45".
			day, _, _ := strings.Cut(key, ":")
			exp, err := time.ParseInLocation("2006-01-02", day, time.UTC)
			if err != nil {
				continue
			}
			if _, ok := seenExp[day]; !ok {
				seenExp[day] = struct{}{}
				chain.Expirations = append(chain.Expirations, exp)
			}
			for strikeKey := range strikes {
				strike, err := decimal.NewFromString(strikeKey)
				if err != nil {
					continue
				}
				if _, ok := seenStrike[strike.String()]; !ok {
					seenStrike[strike.String()] = struct{}{}
					chain.Strikes = append(chain.Strikes, strike)
				}
			}
		}
	}

	sort.Slice(chain.Expirations, func(i, j int) bool {
		return chain.Expirations[i].Before(chain.Expirations[j])
	})
	sort.Slice(chain.Strikes, func(i, j int) bool {
		return chain.Strikes[i].LessThan(chain.Strikes[j])
	})

	b.logger.DebugContext(ctx, "retrieved option chain",
		slog.String("symbol", symbol),
		slog.Int("expirations", len(chain.Expirations)),
		slog.Int("strikes", len(chain.Strikes)),
	)
	return chain, nil
}

// GetMarketData returns a quote per requested symbol from one batched
// request. Symbols the response omits map to nil entries.
func (b *Broker) GetMarketData(ctx context.Context, symbols []string) (map[string]*domain.Quote, error) {
	if err := b.requireConnected(); err != nil {
		return nil, fmt.Errorf("schwab: get market data: %w", err)
	}

	quotes := make(map[string]*domain.Quote, len(symbols))
	for _, symbol := range symbols {
		quotes[symbol] = nil
	}
	if len(symbols) == 0 {
		return quotes, nil
	}

	query := url.Values{}
	query.Set("symbols", strings.Join(symbols, ","))

	var resp map[string]quoteEnvelope
	quotesURL := b.client.marketDataURL + "/quotes?" + query.Encode()
	if err := b.client.get(ctx, quotesURL, &resp); err != nil {
		return nil, fmt.Errorf("schwab: get market data: %w", err)
	}

	for _, symbol := range symbols {
		envelope, ok := resp[symbol]
		if !ok {
			b.logger.WarnContext(ctx, "no quote in response", slog.String("symbol", symbol))
			continue
		}
		data := envelope.Quote
		quote := &domain.Quote{}
		if data.LastPrice != nil {
			quote.Last = domain.Money(*data.LastPrice)
		}
		if data.BidPrice != nil {
			quote.Bid = domain.Money(*data.BidPrice)
		}
		if data.AskPrice != nil {
			quote.Ask = domain.Money(*data.AskPrice)
		}
		if data.ClosePrice != nil {
			quote.Close = domain.Money(*data.ClosePrice)
		}
		if data.TotalVolume != nil {
			quote.Volume = *data.TotalVolume
		}
		quotes[symbol] = quote
	}
	return quotes, nil
}
