package ibkr

// Wire types for the Client Portal gateway REST API. These never escape
// the adapter; every public operation translates to internal/domain.

// authStatus is the response of GET /iserver/auth/status.
type authStatus struct {
	Authenticated bool   `json:"authenticated"`
	Connected     bool   `json:"connected"`
	Competing     bool   `json:"competing"`
	Message       string `json:"message"`
}

// tickleResponse is the response of POST /tickle. Session is the token
// the streaming websocket authenticates with.
type tickleResponse struct {
	Session string `json:"session"`
}

// summaryValue is one tag of GET /portfolio/{acct}/summary.
type summaryValue struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// positionItem is one row of GET /portfolio/{acct}/positions/{page}.
// Position is already net signed; the gateway does not split long/short
// sub-legs.
type positionItem struct {
	Conid         int64   `json:"conid"`
	ContractDesc  string  `json:"contractDesc"`
	Position      float64 `json:"position"`
	AvgCost       float64 `json:"avgCost"`
	MktValue      float64 `json:"mktValue"`
	UnrealizedPnl float64 `json:"unrealizedPnl"`
	AssetClass    string  `json:"assetClass"` // "STK", "OPT", ...
	Ticker        string  `json:"ticker"`
	UndSym        string  `json:"undSym"`
	Strike        float64 `json:"strike,string"`
	Expiry        string  `json:"expiry"` // YYYYMMDD
	PutOrCall     string  `json:"putOrCall"`
	Multiplier    float64 `json:"multiplier"`
}

// openOrdersResponse is the response of GET /iserver/account/orders.
type openOrdersResponse struct {
	Orders []orderItem `json:"orders"`
}

// orderItem is one live order row.
type orderItem struct {
	OrderID       int64   `json:"orderId"`
	Conid         int64   `json:"conid"`
	Ticker        string  `json:"ticker"`
	SecType       string  `json:"secType"`
	Side          string  `json:"side"` // "BUY" / "SELL"
	OrderType     string  `json:"origOrderType"`
	Price         float64 `json:"price"`
	RemainingQty  float64 `json:"remainingQuantity"`
	TotalSize     float64 `json:"totalSize"`
	Status        string  `json:"status"`
	UndSym        string  `json:"undSym"`
	Strike        float64 `json:"strike,string"`
	Expiry        string  `json:"expiry"` // YYYYMMDD
	PutOrCall     string  `json:"putOrCall"`
	LastExecution string  `json:"lastExecutionTime"`
}

// searchResult is one row of GET /iserver/secdef/search.
type searchResult struct {
	Conid    int64           `json:"conid,string"`
	Symbol   string          `json:"symbol"`
	SecType  string          `json:"secType"`
	Sections []searchSection `json:"sections"`
}

// searchSection lists the derivative months available per security type.
type searchSection struct {
	SecType string `json:"secType"`
	Months  string `json:"months"` // semicolon-separated, e.g. "JAN26;FEB26"
}

// secdefInfo is one row of GET /iserver/secdef/info: a fully qualified
// contract in the backend's security master.
type secdefInfo struct {
	Conid        int64   `json:"conid"`
	MaturityDate string  `json:"maturityDate"` // YYYYMMDD
	Strike       float64 `json:"strike"`
	Right        string  `json:"right"` // "C" / "P"
}

// orderSubmission is the payload of POST /iserver/account/{acct}/orders.
type orderSubmission struct {
	Orders []orderPayload `json:"orders"`
}

type orderPayload struct {
	AcctID          string            `json:"acctId"`
	Conid           int64             `json:"conid"`
	COID            string            `json:"cOID"`
	OrderType       string            `json:"orderType"` // "MKT" / "LMT"
	Side            string            `json:"side"`
	Quantity        int               `json:"quantity"`
	Price           float64           `json:"price,omitempty"`
	TIF             string            `json:"tif"`
	ListingExchange string            `json:"listingExchange,omitempty"`
	AlgoStrategy    string            `json:"algoStrategy,omitempty"`
	AlgoParams      map[string]string `json:"algoParams,omitempty"`
}

// orderReply is one element of the order submission response. The gateway
// either returns an order id directly or a confirmation prompt that must
// be answered via POST /iserver/reply/{id}.
type orderReply struct {
	OrderID string   `json:"order_id"`
	ID      string   `json:"id"`
	Message []string `json:"message"`
}

// mdMessage is one streaming market data frame. Numeric fields arrive as
// strings keyed by field code.
type mdMessage struct {
	Topic  string `json:"topic"`
	Conid  int64  `json:"conid"`
	Last   string `json:"31"`
	Bid    string `json:"84"`
	Ask    string `json:"86"`
	Volume string `json:"87"`
	Close  string `json:"7296"`
}
