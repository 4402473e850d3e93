package ibkr

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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/wheelbot/internal/config"
	"github.com/alanyoungcy/wheelbot/internal/domain"
)

// backendExpiryLayout is the YYYYMMDD date form the gateway uses for
// option expirations.
const backendExpiryLayout = "20060102"

// monthLayout is the MMMYY month token used by secdef endpoints.
const monthLayout = "Jan06"

// Broker is the Client Portal gateway adapter.
type Broker struct {
	cfg    config.IBKRConfig
	orders config.OrdersConfig
	client *Client
	logger *slog.Logger

	mu        sync.Mutex
	connected bool
	session   string
	conids    map[string]int64 // underlying symbol -> qualified conid
}

// New creates the adapter. The session is not established until Connect.
func New(cfg config.IBKRConfig, orders config.OrdersConfig, logger *slog.Logger) *Broker {
	return &Broker{
		cfg:    cfg,
		orders: orders,
		client: NewClient(cfg.GatewayURL),
		logger: logger.With(slog.String("component", "ibkr")),
		conids: make(map[string]int64),
	}
}

// Name returns "ibkr".
func (b *Broker) Name() string {
	return config.BrokerIBKR
}

// Connect validates the gateway session, reauthenticating once when the
// session went stale. It is idempotent and reports failure as false.
func (b *Broker) Connect(ctx context.Context) bool {
	b.mu.Lock()
	if b.connected {
		b.mu.Unlock()
		return true
	}
	b.mu.Unlock()

	var status authStatus
	if err := b.client.get(ctx, "/iserver/auth/status", &status); err != nil {
		b.logger.WarnContext(ctx, "auth status check failed", slog.String("error", err.Error()))
		return false
	}
	if !status.Authenticated {
		// The gateway keeps sessions alive during the day but drops
		// them overnight; one reauthentication attempt covers that.
		if err := b.client.post(ctx, "/iserver/reauthenticate", nil, nil); err != nil {
			b.logger.WarnContext(ctx, "reauthenticate failed", slog.String("error", err.Error()))
			return false
		}
		if err := b.client.get(ctx, "/iserver/auth/status", &status); err != nil || !status.Authenticated {
			b.logger.WarnContext(ctx, "gateway session not authenticated",
				slog.String("message", status.Message))
			return false
		}
	}

	var tickle tickleResponse
	if err := b.client.post(ctx, "/tickle", nil, &tickle); err != nil {
		b.logger.WarnContext(ctx, "tickle failed", slog.String("error", err.Error()))
		return false
	}

	b.mu.Lock()
	b.connected = true
	b.session = tickle.Session
	b.mu.Unlock()

	b.logger.InfoContext(ctx, "connected to gateway",
		slog.String("account", b.cfg.AccountID))
	return true
}

// Disconnect logs out of the gateway session. Safe to call when not
// connected.
func (b *Broker) Disconnect(ctx context.Context) {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return
	}
	b.connected = false
	b.session = ""
	b.mu.Unlock()

	if err := b.client.post(ctx, "/logout", nil, nil); err != nil {
		b.logger.WarnContext(ctx, "logout failed", slog.String("error", err.Error()))
	}
}

func (b *Broker) requireConnected() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return domain.ErrNotConnected
	}
	return nil
}

// GetAccountInfo maps the portfolio summary tags onto an account
// snapshot. Tags the gateway does not report stay nil.
func (b *Broker) GetAccountInfo(ctx context.Context) (domain.AccountSnapshot, error) {
	if err := b.requireConnected(); err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("ibkr: get account info: %w", err)
	}

	var summary map[string]summaryValue
	path := "/portfolio/" + url.PathEscape(b.cfg.AccountID) + "/summary"
	if err := b.client.get(ctx, path, &summary); err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("ibkr: get account info: %w", err)
	}

	snap := domain.AccountSnapshot{}
	if v, ok := summary["buyingpower"]; ok {
		snap.BuyingPower = domain.Money(v.Amount)
	}
	if v, ok := summary["totalcashvalue"]; ok {
		snap.Cash = domain.Money(v.Amount)
	}
	if v, ok := summary["netliquidation"]; ok {
		snap.NetLiquidation = domain.Money(v.Amount)
	}
	if v, ok := summary["grosspositionvalue"]; ok {
		snap.Equity = domain.Money(v.Amount)
	}
	if v, ok := summary["maintmarginreq"]; ok {
		snap.MaintenanceMargin = domain.Money(v.Amount)
	}
	return snap, nil
}

// GetPositions returns the account's positions. The gateway reports net
// signed quantities per contract, so no long/short netting is needed on
// this backend; option rows are normalised to the composite symbol.
func (b *Broker) GetPositions(ctx context.Context) ([]domain.Position, error) {
	if err := b.requireConnected(); err != nil {
		return nil, fmt.Errorf("ibkr: get positions: %w", err)
	}

	var items []positionItem
	path := "/portfolio/" + url.PathEscape(b.cfg.AccountID) + "/positions/0"
	if err := b.client.get(ctx, path, &items); err != nil {
		return nil, fmt.Errorf("ibkr: get positions: %w", err)
	}

	positions := make([]domain.Position, 0, len(items))
	for _, item := range items {
		positions = append(positions, domain.Position{
			Symbol:        b.positionSymbol(ctx, item),
			Quantity:      int64(math.Round(item.Position)),
			AverageCost:   decimal.NewFromFloat(item.AvgCost),
			MarketValue:   decimal.NewFromFloat(item.MktValue),
			UnrealizedPnL: decimal.NewFromFloat(item.UnrealizedPnl),
		})
	}

	b.logger.DebugContext(ctx, "retrieved positions", slog.Int("count", len(positions)))
	return positions, nil
}

// positionSymbol normalises an option row to the composite symbol so the
// strategy layer can recover the contract later. Rows that cannot be
// normalised keep the gateway's contract description; the roll engine
// skips those.
func (b *Broker) positionSymbol(ctx context.Context, item positionItem) string {
	if item.AssetClass != "OPT" {
		if item.Ticker != "" {
			return item.Ticker
		}
		return item.ContractDesc
	}

	contract, err := optionContract(item.UndSym, item.Strike, item.Expiry, item.PutOrCall)
	if err != nil {
		b.logger.WarnContext(ctx, "cannot normalise option position",
			slog.String("contract", item.ContractDesc),
			slog.String("error", err.Error()),
		)
		return item.ContractDesc
	}
	return contract.OptionSymbol()
}

// optionContract builds a domain contract from the gateway's option
// fields.
func optionContract(undSym string, strike float64, expiry, right string) (domain.Contract, error) {
	if undSym == "" {
		return domain.Contract{}, fmt.Errorf("missing underlying symbol")
	}
	expiration, err := time.ParseInLocation(backendExpiryLayout, expiry, time.UTC)
	if err != nil {
		return domain.Contract{}, fmt.Errorf("parse expiry %q: %w", expiry, err)
	}
	r, err := domain.ParseRight(right)
	if err != nil {
		return domain.Contract{}, err
	}
	return domain.Contract{
		Symbol:     undSym,
		Strike:     decimal.NewFromFloat(strike),
		Expiration: expiration,
		Right:      r,
		Multiplier: domain.DefaultMultiplier,
	}, nil
}

// GetOpenOrders returns the live orders the adapter can express as
// single-leg option orders. Anything else is logged and skipped; a
// partial result is preferable to failing the retrieval.
func (b *Broker) GetOpenOrders(ctx context.Context) ([]domain.Order, error) {
	if err := b.requireConnected(); err != nil {
		return nil, fmt.Errorf("ibkr: get open orders: %w", err)
	}

	var resp openOrdersResponse
	if err := b.client.get(ctx, "/iserver/account/orders", &resp); err != nil {
		return nil, fmt.Errorf("ibkr: get open orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(resp.Orders))
	for _, item := range resp.Orders {
		order, err := parseOrder(item)
		if err != nil {
			b.logger.WarnContext(ctx, "skipping unparsable open order",
				slog.Int64("order_id", item.OrderID),
				slog.String("error", err.Error()),
			)
			continue
		}
		orders = append(orders, order)
	}

	b.logger.DebugContext(ctx, "retrieved open orders", slog.Int("count", len(orders)))
	return orders, nil
}

func parseOrder(item orderItem) (domain.Order, error) {
	if item.SecType != "OPT" {
		return domain.Order{}, fmt.Errorf("unsupported security type %q", item.SecType)
	}

	contract, err := optionContract(item.UndSym, item.Strike, item.Expiry, item.PutOrCall)
	if err != nil {
		return domain.Order{}, err
	}

	var action domain.OrderAction
	switch strings.ToUpper(item.Side) {
	case "BUY":
		action = domain.OrderActionBuy
	case "SELL":
		action = domain.OrderActionSell
	default:
		return domain.Order{}, fmt.Errorf("unsupported side %q", item.Side)
	}

	quantity := item.TotalSize
	if quantity == 0 {
		quantity = item.RemainingQty
	}
	if quantity <= 0 {
		return domain.Order{}, fmt.Errorf("order has no quantity")
	}

	order := domain.Order{
		Contract: contract,
		Action:   action,
		Quantity: int(math.Round(quantity)),
	}
	switch strings.ToUpper(item.OrderType) {
	case "LIMIT", "LMT":
		price := decimal.NewFromFloat(item.Price)
		order.Type = domain.OrderTypeLimit
		order.LimitPrice = &price
	case "MARKET", "MKT":
		order.Type = domain.OrderTypeMarket
	default:
		return domain.Order{}, fmt.Errorf("unsupported order type %q", item.OrderType)
	}
	return order, nil
}

// PlaceOrder qualifies the option contract against the security master,
// submits the order, and answers any confirmation prompts the gateway
// raises before it hands back an order id.
func (b *Broker) PlaceOrder(ctx context.Context, order domain.Order) (string, error) {
	if err := b.requireConnected(); err != nil {
		return "", fmt.Errorf("ibkr: place order: %w", err)
	}
	if err := order.Validate(); err != nil {
		return "", fmt.Errorf("ibkr: place order: %w", err)
	}

	conid, err := b.qualifyOption(ctx, order.Contract)
	if err != nil {
		return "", err
	}

	payload := orderPayload{
		AcctID:    b.cfg.AccountID,
		Conid:     conid,
		COID:      uuid.NewString(),
		Side:      string(order.Action),
		Quantity:  order.Quantity,
		TIF:       "DAY",
		OrderType: "MKT",
	}
	if order.Type == domain.OrderTypeLimit {
		payload.OrderType = "LMT"
		payload.Price, _ = order.LimitPrice.Float64()
	}
	if b.orders.Exchange != "" {
		payload.ListingExchange = b.orders.Exchange
	}
	if b.orders.Algo.Strategy != "" {
		payload.AlgoStrategy = b.orders.Algo.Strategy
		payload.AlgoParams = b.orders.Algo.Params
	}

	var replies []orderReply
	path := "/iserver/account/" + url.PathEscape(b.cfg.AccountID) + "/orders"
	if err := b.client.post(ctx, path, orderSubmission{Orders: []orderPayload{payload}}, &replies); err != nil {
		return "", submissionError(err, "place order")
	}

	// The gateway may interpose one or more confirmation prompts
	// (price cap warnings and the like) before assigning an id.
	for attempts := 0; attempts < 3; attempts++ {
		if len(replies) == 0 {
			break
		}
		if replies[0].OrderID != "" {
			b.logger.InfoContext(ctx, "placed order",
				slog.String("order_id", replies[0].OrderID),
				slog.String("symbol", order.Contract.OptionSymbol()),
			)
			return replies[0].OrderID, nil
		}
		if replies[0].ID == "" {
			break
		}
		b.logger.InfoContext(ctx, "answering order confirmation",
			slog.String("reply_id", replies[0].ID),
			slog.Any("messages", replies[0].Message),
		)
		var next []orderReply
		replyPath := "/iserver/reply/" + url.PathEscape(replies[0].ID)
		if err := b.client.post(ctx, replyPath, map[string]bool{"confirmed": true}, &next); err != nil {
			return "", submissionError(err, "confirm order")
		}
		replies = next
	}

	return "", &domain.SubmissionError{Broker: config.BrokerIBKR, Reason: "gateway returned no order id"}
}

// submissionError turns a gateway rejection into a SubmissionError
// carrying the backend's reason; transport failures pass through wrapped.
func submissionError(err error, action string) error {
	var se *statusError
	if errors.As(err, &se) {
		return &domain.SubmissionError{Broker: config.BrokerIBKR, Reason: se.Body}
	}
	return fmt.Errorf("ibkr: %s: %w", action, err)
}

// qualifyOption resolves an option contract to its conid. The gateway
// requires this round trip before any order submission.
func (b *Broker) qualifyOption(ctx context.Context, c domain.Contract) (int64, error) {
	underlying, err := b.resolveUnderlying(ctx, c.Symbol)
	if err != nil {
		return 0, err
	}

	month := strings.ToUpper(c.Expiration.Format(monthLayout))
	path := fmt.Sprintf("/iserver/secdef/info?conid=%d&sectype=OPT&month=%s&strike=%s&right=%s",
		underlying, month, c.Strike.String(), c.Right.Code())

	var infos []secdefInfo
	if err := b.client.get(ctx, path, &infos); err != nil {
		return 0, fmt.Errorf("ibkr: qualify %s: %w", c.OptionSymbol(), err)
	}

	want := c.Expiration.Format(backendExpiryLayout)
	for _, info := range infos {
		if info.MaturityDate != want {
			continue
		}
		if !decimal.NewFromFloat(info.Strike).Equal(c.Strike) {
			continue
		}
		if right, err := domain.ParseRight(info.Right); err != nil || right != c.Right {
			continue
		}
		return info.Conid, nil
	}
	return 0, &domain.SubmissionError{
		Broker: config.BrokerIBKR,
		Reason: fmt.Sprintf("no qualified contract for %s", c.OptionSymbol()),
	}
}

// resolveUnderlying resolves and caches the conid of an underlying stock.
func (b *Broker) resolveUnderlying(ctx context.Context, symbol string) (int64, error) {
	b.mu.Lock()
	if conid, ok := b.conids[symbol]; ok {
		b.mu.Unlock()
		return conid, nil
	}
	b.mu.Unlock()

	var results []searchResult
	path := "/iserver/secdef/search?symbol=" + url.QueryEscape(symbol)
	if err := b.client.get(ctx, path, &results); err != nil {
		return 0, fmt.Errorf("ibkr: resolve %s: %w", symbol, err)
	}

	for _, r := range results {
		if r.SecType == "STK" && strings.EqualFold(r.Symbol, symbol) {
			b.mu.Lock()
			b.conids[symbol] = r.Conid
			b.mu.Unlock()
			return r.Conid, nil
		}
	}
	return 0, fmt.Errorf("ibkr: no stock conid for %q", symbol)
}

// CancelOrder cancels a live order. An id the gateway does not know maps
// to the "not found" outcome; transport failures stay errors.
func (b *Broker) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if err := b.requireConnected(); err != nil {
		return false, fmt.Errorf("ibkr: cancel order: %w", err)
	}

	path := "/iserver/account/" + url.PathEscape(b.cfg.AccountID) + "/order/" + url.PathEscape(orderID)
	if err := b.client.delete(ctx, path, nil); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("ibkr: cancel order: %w", err)
	}

	b.logger.InfoContext(ctx, "cancelled order", slog.String("order_id", orderID))
	return true, nil
}

// GetOptionChain walks the option months the security master lists for
// the underlying and collects distinct expirations and strikes. A month
// that fails to load degrades the result instead of failing it.
func (b *Broker) GetOptionChain(ctx context.Context, symbol string, expiration *time.Time) (domain.OptionChain, error) {
	if err := b.requireConnected(); err != nil {
		return domain.OptionChain{}, fmt.Errorf("ibkr: get option chain: %w", err)
	}

	var results []searchResult
	path := "/iserver/secdef/search?symbol=" + url.QueryEscape(symbol)
	if err := b.client.get(ctx, path, &results); err != nil {
		return domain.OptionChain{}, fmt.Errorf("ibkr: get option chain %s: %w", symbol, err)
	}

	var months []string
	var underlying int64
	for _, r := range results {
		if r.SecType != "STK" || !strings.EqualFold(r.Symbol, symbol) {
			continue
		}
		underlying = r.Conid
		for _, section := range r.Sections {
			if section.SecType == "OPT" && section.Months != "" {
				months = strings.Split(section.Months, ";")
			}
		}
		break
	}
	if expiration != nil {
		months = []string{strings.ToUpper(expiration.Format(monthLayout))}
	}

	chain := domain.OptionChain{Symbol: symbol}
	if underlying == 0 || len(months) == 0 {
		return chain, nil
	}

	seenExp := make(map[string]struct{})
	seenStrike := make(map[string]struct{})
	for _, month := range months {
		infoPath := fmt.Sprintf("/iserver/secdef/info?conid=%d&sectype=OPT&month=%s", underlying, month)
		var infos []secdefInfo
		if err := b.client.get(ctx, infoPath, &infos); err != nil {
			b.logger.WarnContext(ctx, "option month failed to load",
				slog.String("symbol", symbol),
				slog.String("month", month),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, info := range infos {
			exp, err := time.ParseInLocation(backendExpiryLayout, info.MaturityDate, time.UTC)
			if err != nil {
				continue
			}
			if expiration != nil && !exp.Equal(expiration.UTC().Truncate(24*time.Hour)) {
				continue
			}
			if _, ok := seenExp[info.MaturityDate]; !ok {
				seenExp[info.MaturityDate] = struct{}{}
				chain.Expirations = append(chain.Expirations, exp)
			}
			strike := decimal.NewFromFloat(info.Strike)
			if _, ok := seenStrike[strike.String()]; !ok {
				seenStrike[strike.String()] = struct{}{}
				chain.Strikes = append(chain.Strikes, strike)
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
