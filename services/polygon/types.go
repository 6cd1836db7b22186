package polygon

// Agg is one aggregate bar as returned by the provider.
type Agg struct {
	Open         float64 `json:"o"`
	High         float64 `json:"h"`
	Low          float64 `json:"l"`
	Close        float64 `json:"c"`
	Volume       float64 `json:"v"`
	VWAP         float64 `json:"vw"`
	Timestamp    int64   `json:"t"` // epoch milliseconds, start of the bar window
	Transactions int64   `json:"n"`
}

type aggsResponse struct {
	Ticker       string `json:"ticker"`
	ResultsCount int    `json:"resultsCount"`
	Results      []Agg  `json:"results"`
	Status       string `json:"status"`
	Error        string `json:"error"`
}

// TickerDetails is the reference metadata of a listed symbol.
type TickerDetails struct {
	Ticker          string `json:"ticker"`
	Name            string `json:"name"`
	Market          string `json:"market"`
	Locale          string `json:"locale"`
	PrimaryExchange string `json:"primary_exchange"`
	Type            string `json:"type"`
	Active          bool   `json:"active"`
	CurrencyName    string `json:"currency_name"`
	CIK             string `json:"cik"`
	CompositeFIGI   string `json:"composite_figi"`
	ShareClassFIGI  string `json:"share_class_figi"`
	LastUpdatedUTC  string `json:"last_updated_utc"`
}

type tickerDetailsResponse struct {
	Results *TickerDetails `json:"results"`
	Status  string         `json:"status"`
	Error   string         `json:"error"`
}

// MarketStatus is the provider's current view of the market session.
type MarketStatus struct {
	AfterHours bool              `json:"afterHours"`
	EarlyHours bool              `json:"earlyHours"`
	Market     string            `json:"market"`
	ServerTime string            `json:"serverTime"`
	Exchanges  map[string]string `json:"exchanges"`
	Currencies map[string]string `json:"currencies"`
}
