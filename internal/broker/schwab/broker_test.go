package schwab

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/wheelbot/internal/config"
	"github.com/alanyoungcy/wheelbot/internal/domain"
)

const testHash = "ABC123HASH"

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// writeTokenFile seeds a token file. expiresIn <= 60 forces a refresh on
// first use.
func writeTokenFile(t *testing.T, expiresIn int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token.json")
	raw, err := json.Marshal(token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
		ObtainedAt:   time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func accountNumbersHandler(mux *http.ServeMux) {
	mux.HandleFunc("GET /trader/v1/accounts/accountNumbers", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]accountNumbersItem{
			{AccountNumber: "12345678", HashValue: testHash},
		})
	})
}

func newTestBroker(t *testing.T, mux *http.ServeMux) *Broker {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	b := New(config.SchwabConfig{
		AppKey:        "key",
		AppSecret:     "secret",
		AccountHash:   testHash,
		TokenPath:     writeTokenFile(t, 1800),
		BaseURL:       srv.URL,
		MarketDataURL: srv.URL + "/marketdata/v1",
	}, discardLogger())
	require.True(t, b.Connect(context.Background()))
	return b
}

func TestConnectRefreshesExpiredToken(t *testing.T) {
	var refreshed bool
	mux := http.NewServeMux()
	accountNumbersHandler(mux)
	mux.HandleFunc("POST /v1/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
		assert.Equal(t, "refresh-1", r.FormValue("refresh_token"))
		refreshed = true
		json.NewEncoder(w).Encode(token{
			AccessToken:  "access-2",
			RefreshToken: "refresh-2",
			TokenType:    "Bearer",
			ExpiresIn:    1800,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	tokenPath := writeTokenFile(t, 30)
	b := New(config.SchwabConfig{
		AppKey:      "key",
		AppSecret:   "secret",
		AccountHash: testHash,
		TokenPath:   tokenPath,
		BaseURL:     srv.URL,
	}, discardLogger())

	assert.True(t, b.Connect(context.Background()))
	assert.True(t, refreshed)

	// The refreshed pair must be persisted for the next run.
	raw, err := os.ReadFile(tokenPath)
	require.NoError(t, err)
	var saved token
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Equal(t, "access-2", saved.AccessToken)
	assert.Equal(t, "refresh-2", saved.RefreshToken)
	assert.False(t, saved.ObtainedAt.IsZero())
}

func TestConnectRejectsUnknownAccountHash(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /trader/v1/accounts/accountNumbers", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]accountNumbersItem{
			{AccountNumber: "12345678", HashValue: "OTHERHASH"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	b := New(config.SchwabConfig{
		AppKey:      "key",
		AppSecret:   "secret",
		AccountHash: testHash,
		TokenPath:   writeTokenFile(t, 1800),
		BaseURL:     srv.URL,
	}, discardLogger())
	assert.False(t, b.Connect(context.Background()))
}

func TestOperationsRequireConnect(t *testing.T) {
	b := New(config.SchwabConfig{AccountHash: testHash, TokenPath: "unused"}, discardLogger())

	_, err := b.GetAccountInfo(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	_, err = b.GetMarketData(context.Background(), []string{"AAPL"})
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestGetAccountInfoMapsBalances(t *testing.T) {
	mux := http.NewServeMux()
	accountNumbersHandler(mux)
	mux.HandleFunc("GET /trader/v1/accounts/"+testHash, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"securitiesAccount": {"accountNumber": "12345678",
			"currentBalances": {"buyingPower": 25000, "cashBalance": 10000,
			"liquidationValue": 100000}}}`))
	})
	b := newTestBroker(t, mux)

	snap, err := b.GetAccountInfo(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.BuyingPower.Equal(decimal.NewFromInt(25000)))
	assert.True(t, snap.Cash.Equal(decimal.NewFromInt(10000)))
	assert.True(t, snap.NetLiquidation.Equal(decimal.NewFromInt(100000)))
	assert.Nil(t, snap.Equity, "omitted balance stays nil")
	assert.Nil(t, snap.MaintenanceMargin)
}

func TestGetPositionsNetsLongShort(t *testing.T) {
	mux := http.NewServeMux()
	accountNumbersHandler(mux)
	mux.HandleFunc("GET /trader/v1/accounts/"+testHash, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "positions", r.URL.Query().Get("fields"))
		w.Write([]byte(`{"securitiesAccount": {"positions": [
			{"instrument": {"assetType": "EQUITY", "symbol": "AAPL"},
			 "longQuantity": 100, "shortQuantity": 0, "averagePrice": 145.5,
			 "marketValue": 15000, "longOpenProfitLoss": 450},
			{"instrument": {"assetType": "OPTION", "symbol": "AAPL  250115P00105000"},
			 "longQuantity": 0, "shortQuantity": 1, "averagePrice": 2.5,
			 "marketValue": -120, "shortOpenProfitLoss": 130}
		]}}`))
	})
	b := newTestBroker(t, mux)

	positions, err := b.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.EqualValues(t, 100, positions[0].Quantity)

	assert.Equal(t, "AAPL_011525P00105000", positions[1].Symbol)
	assert.EqualValues(t, -1, positions[1].Quantity)
	assert.True(t, positions[1].IsShort())
	assert.True(t, positions[1].UnrealizedPnL.Equal(decimal.NewFromInt(130)))
	// The API's 2.50 per-share premium is a $250 per-contract basis.
	assert.True(t, positions[1].AverageCost.Equal(decimal.NewFromInt(250)),
		"got %s", positions[1].AverageCost)
	// Stock cost bases are already in position units.
	assert.True(t, positions[0].AverageCost.Equal(decimal.NewFromFloat(145.5)))
}

func TestGetOpenOrdersParsesWorkingOrders(t *testing.T) {
	mux := http.NewServeMux()
	accountNumbersHandler(mux)
	mux.HandleFunc("GET /trader/v1/accounts/"+testHash+"/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "WORKING", r.URL.Query().Get("status"))
		assert.NotEmpty(t, r.URL.Query().Get("fromEnteredTime"))
		assert.NotEmpty(t, r.URL.Query().Get("toEnteredTime"))
		w.Write([]byte(`[
			{"orderId": 1001, "status": "WORKING", "orderType": "LIMIT", "price": 1.5,
			 "orderLegCollection": [{"instruction": "SELL_TO_OPEN", "quantity": 2,
			   "instrument": {"assetType": "OPTION", "symbol": "AAPL  250115P00105000"}}]},
			{"orderId": 1002, "status": "WORKING", "orderType": "MARKET",
			 "orderLegCollection": [{"instruction": "BUY", "quantity": 100,
			   "instrument": {"assetType": "EQUITY", "symbol": "MSFT"}}]}
		]`))
	})
	b := newTestBroker(t, mux)

	orders, err := b.GetOpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1, "equity order does not fit the model and is skipped")

	order := orders[0]
	assert.Equal(t, domain.OrderActionSell, order.Action)
	assert.Equal(t, domain.EffectOpen, order.Effect)
	assert.Equal(t, domain.OrderTypeLimit, order.Type)
	assert.Equal(t, 2, order.Quantity)
	assert.Equal(t, "AAPL_011525P00105000", order.Contract.OptionSymbol())
}

func testPutOrder() domain.Order {
	limit := decimal.NewFromFloat(1.5)
	return domain.Order{
		Contract: domain.Contract{
			Symbol:     "AAPL",
			Strike:     decimal.NewFromInt(105),
			Expiration: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			Right:      domain.RightPut,
			Multiplier: domain.DefaultMultiplier,
		},
		Action:     domain.OrderActionSell,
		Quantity:   1,
		Type:       domain.OrderTypeLimit,
		LimitPrice: &limit,
		Effect:     domain.EffectOpen,
	}
}

func placeOrderMux(t *testing.T) (*http.ServeMux, *orderRequest) {
	t.Helper()
	captured := &orderRequest{}
	mux := http.NewServeMux()
	accountNumbersHandler(mux)
	mux.HandleFunc("POST /trader/v1/accounts/"+testHash+"/orders", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		w.Header().Set("Location", "https://api.schwabapi.com/trader/v1/accounts/"+testHash+"/orders/456789")
		w.WriteHeader(http.StatusCreated)
	})
	return mux, captured
}

func TestPlaceOrderReadsLocationHeader(t *testing.T) {
	mux, captured := placeOrderMux(t)
	b := newTestBroker(t, mux)

	orderID, err := b.PlaceOrder(context.Background(), testPutOrder())
	require.NoError(t, err)
	assert.Equal(t, "456789", orderID)

	assert.Equal(t, "LIMIT", captured.OrderType)
	assert.Equal(t, "1.50", captured.Price)
	require.Len(t, captured.OrderLegCollection, 1)
	leg := captured.OrderLegCollection[0]
	assert.Equal(t, "SELL_TO_OPEN", leg.Instruction, "a new short put opens exposure")
	assert.Equal(t, "AAPL  250115P00105000", leg.Instrument.Symbol)
	assert.Equal(t, "OPTION", leg.Instrument.AssetType)
}

func TestPlaceOrderInstructionFollowsEffect(t *testing.T) {
	cases := []struct {
		name   string
		action domain.OrderAction
		effect domain.PositionEffect
		want   string
	}{
		{"roll close leg", domain.OrderActionBuy, domain.EffectClose, "BUY_TO_CLOSE"},
		{"roll open leg", domain.OrderActionSell, domain.EffectOpen, "SELL_TO_OPEN"},
		{"buy without effect", domain.OrderActionBuy, "", "BUY_TO_OPEN"},
		{"sell without effect", domain.OrderActionSell, "", "SELL_TO_CLOSE"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux, captured := placeOrderMux(t)
			b := newTestBroker(t, mux)

			order := testPutOrder()
			order.Action = tc.action
			order.Effect = tc.effect
			order.Type = domain.OrderTypeMarket
			order.LimitPrice = nil

			_, err := b.PlaceOrder(context.Background(), order)
			require.NoError(t, err)
			require.Len(t, captured.OrderLegCollection, 1)
			assert.Equal(t, tc.want, captured.OrderLegCollection[0].Instruction)
		})
	}
}

func TestPlaceOrderWithoutLocationIsSubmissionError(t *testing.T) {
	mux := http.NewServeMux()
	accountNumbersHandler(mux)
	mux.HandleFunc("POST /trader/v1/accounts/"+testHash+"/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	b := newTestBroker(t, mux)

	_, err := b.PlaceOrder(context.Background(), testPutOrder())
	var se *domain.SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, config.BrokerSchwab, se.Broker)
}

func TestPlaceOrderRejectionIsSubmissionError(t *testing.T) {
	mux := http.NewServeMux()
	accountNumbersHandler(mux)
	mux.HandleFunc("POST /trader/v1/accounts/"+testHash+"/orders", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "account not approved for naked options"}`, http.StatusBadRequest)
	})
	b := newTestBroker(t, mux)

	_, err := b.PlaceOrder(context.Background(), testPutOrder())
	var se *domain.SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Reason, "not approved")
}

func TestCancelOrder(t *testing.T) {
	mux := http.NewServeMux()
	accountNumbersHandler(mux)
	mux.HandleFunc("DELETE /trader/v1/accounts/"+testHash+"/orders/42", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("DELETE /trader/v1/accounts/"+testHash+"/orders/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "order not found"}`, http.StatusNotFound)
	})
	b := newTestBroker(t, mux)

	ok, err := b.CancelOrder(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.CancelOrder(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetOptionChainParsesExpDateMaps(t *testing.T) {
	mux := http.NewServeMux()
	accountNumbersHandler(mux)
	mux.HandleFunc("GET /marketdata/v1/chains", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"symbol": "AAPL",
			"callExpDateMap": {"2025-01-15:19": {"100.0": [{"strikePrice": 100}], "105.0": [{"strikePrice": 105}]}},
			"putExpDateMap": {"2025-01-15:19": {"100.0": [{"strikePrice": 100}]},
			                  "2025-02-21:56": {"95.0": [{"strikePrice": 95}]}}}`))
	})
	b := newTestBroker(t, mux)

	chain, err := b.GetOptionChain(context.Background(), "AAPL", nil)
	require.NoError(t, err)
	require.Len(t, chain.Expirations, 2)
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), chain.Expirations[0])
	require.Len(t, chain.Strikes, 3)
	assert.True(t, chain.Strikes[0].Equal(decimal.NewFromInt(95)), "strikes sorted ascending")
}

func TestGetMarketDataMapsMissingSymbolsToNil(t *testing.T) {
	mux := http.NewServeMux()
	accountNumbersHandler(mux)
	mux.HandleFunc("GET /marketdata/v1/quotes", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL,ZZZZ", r.URL.Query().Get("symbols"))
		w.Write([]byte(`{"AAPL": {"quote": {"lastPrice": 150.25, "bidPrice": 150.20,
			"askPrice": 150.30, "totalVolume": 1200}}}`))
	})
	b := newTestBroker(t, mux)

	quotes, err := b.GetMarketData(context.Background(), []string{"AAPL", "ZZZZ"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	require.NotNil(t, quotes["AAPL"])
	assert.True(t, quotes["AAPL"].Last.Equal(decimal.NewFromFloat(150.25)))
	assert.EqualValues(t, 1200, quotes["AAPL"].Volume)
	assert.Nil(t, quotes["AAPL"].Close, "field absent from the response stays nil")

	assert.Nil(t, quotes["ZZZZ"], "symbol missing from the response maps to nil")
}
