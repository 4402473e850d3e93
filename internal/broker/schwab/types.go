package schwab

// Wire types for the Schwab trader and market data APIs. As with the
// other adapter, these never escape the package.

// accountNumbersItem maps a plain account number to the opaque hash the
// trader API keys account endpoints by.
type accountNumbersItem struct {
	AccountNumber string `json:"accountNumber"`
	HashValue     string `json:"hashValue"`
}

// accountResponse is the response of GET /trader/v1/accounts/{hash}.
type accountResponse struct {
	SecuritiesAccount securitiesAccount `json:"securitiesAccount"`
}

type securitiesAccount struct {
	AccountNumber   string           `json:"accountNumber"`
	CurrentBalances currentBalances  `json:"currentBalances"`
	Positions       []accountPosition `json:"positions"`
}

// currentBalances uses pointers so balances the API omits stay nil in
// the snapshot.
type currentBalances struct {
	BuyingPower            *float64 `json:"buyingPower"`
	CashBalance            *float64 `json:"cashBalance"`
	LiquidationValue       *float64 `json:"liquidationValue"`
	Equity                 *float64 `json:"equity"`
	MaintenanceRequirement *float64 `json:"maintenanceRequirement"`
}

// accountPosition is one position row. The API reports long and short
// exposure as separate non-negative quantities.
type accountPosition struct {
	Instrument          instrument `json:"instrument"`
	LongQuantity        float64    `json:"longQuantity"`
	ShortQuantity       float64    `json:"shortQuantity"`
	AveragePrice        float64    `json:"averagePrice"`
	MarketValue         float64    `json:"marketValue"`
	LongOpenProfitLoss  float64    `json:"longOpenProfitLoss"`
	ShortOpenProfitLoss float64    `json:"shortOpenProfitLoss"`
}

type instrument struct {
	AssetType string `json:"assetType"` // "EQUITY", "OPTION", ...
	Symbol    string `json:"symbol"`
	Cusip     string `json:"cusip,omitempty"`
}

// orderResponse is one order of GET /trader/v1/accounts/{hash}/orders.
type orderResponse struct {
	OrderID            int64      `json:"orderId"`
	Status             string     `json:"status"`
	OrderType          string     `json:"orderType"`
	Price              float64    `json:"price"`
	Quantity           float64    `json:"quantity"`
	OrderLegCollection []orderLeg `json:"orderLegCollection"`
}

type orderLeg struct {
	Instruction string     `json:"instruction"` // "BUY_TO_OPEN", "SELL_TO_CLOSE", ...
	Quantity    float64    `json:"quantity"`
	Instrument  instrument `json:"instrument"`
}

// orderRequest is the payload of POST /trader/v1/accounts/{hash}/orders.
type orderRequest struct {
	OrderType          string     `json:"orderType"` // "MARKET" / "LIMIT"
	Session            string     `json:"session"`
	Duration           string     `json:"duration"`
	OrderStrategyType  string     `json:"orderStrategyType"`
	Price              string     `json:"price,omitempty"`
	OrderLegCollection []orderLeg `json:"orderLegCollection"`
}

// chainResponse is the response of GET /marketdata/v1/chains. The outer
// map keys are "YYYY-MM-DD:dte", the inner map keys are strike prices.
type chainResponse struct {
	Symbol         string                               `json:"symbol"`
	CallExpDateMap map[string]map[string][]chainContract `json:"callExpDateMap"`
	PutExpDateMap  map[string]map[string][]chainContract `json:"putExpDateMap"`
}

type chainContract struct {
	Symbol      string  `json:"symbol"`
	StrikePrice float64 `json:"strikePrice"`
}

// quoteEnvelope is one entry of GET /marketdata/v1/quotes.
type quoteEnvelope struct {
	Quote quoteData `json:"quote"`
}

// quoteData uses pointers for the same reason currentBalances does:
// a field the API omits must stay nil, not become zero.
type quoteData struct {
	LastPrice   *float64 `json:"lastPrice"`
	BidPrice    *float64 `json:"bidPrice"`
	AskPrice    *float64 `json:"askPrice"`
	ClosePrice  *float64 `json:"closePrice"`
	TotalVolume *int64   `json:"totalVolume"`
}
