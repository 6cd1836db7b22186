package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Fetch types recorded in the audit log.
const (
	FetchTypeTickerInit      = "ticker_init"
	FetchTypeTickerDetails   = "ticker_details"
	FetchTypeDailyAggregates = "daily_aggregates"
	FetchTypeMarketStatus    = "market_status"
)

// Terminal and initial statuses of a DataFetchLog row.
const (
	FetchStatusStarted   = "started"
	FetchStatusCompleted = "completed"
	FetchStatusFailed    = "failed"
)

// StockTicker holds exchange-listed symbol metadata from the provider.
// Rows are upserted on the symbol and never deleted.
type StockTicker struct {
	Ticker          string     `gorm:"primaryKey;size:10" json:"ticker"`
	Name            string     `json:"name"`
	Market          string     `json:"market"`
	Locale          string     `json:"locale"`
	PrimaryExchange string     `json:"primary_exchange"`
	Type            string     `json:"type"`
	Active          bool       `json:"active"`
	CurrencyName    string     `json:"currency_name"`
	CIK             *string    `json:"cik,omitempty"`
	CompositeFIGI   *string    `json:"composite_figi,omitempty"`
	ShareClassFIGI  *string    `json:"share_class_figi,omitempty"`
	LastUpdatedUTC  *time.Time `json:"last_updated_utc,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DailyAggregate is one OHLCV bar for a ticker on a calendar date.
// At most one row exists per (ticker, date); re-ingestion overwrites all
// mutable fields and bumps UpdatedAt.
type DailyAggregate struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	Ticker       string           `gorm:"uniqueIndex:idx_ticker_date;size:10;not null" json:"ticker"`
	Date         time.Time        `gorm:"uniqueIndex:idx_ticker_date;not null" json:"date"`
	Open         decimal.Decimal  `gorm:"type:decimal(15,4)" json:"open"`
	High         decimal.Decimal  `gorm:"type:decimal(15,4)" json:"high"`
	Low          decimal.Decimal  `gorm:"type:decimal(15,4)" json:"low"`
	Close        decimal.Decimal  `gorm:"type:decimal(15,4)" json:"close"`
	Volume       int64            `json:"volume"`
	VWAP         *decimal.Decimal `gorm:"type:decimal(15,4)" json:"vwap,omitempty"`
	Transactions *int64           `json:"transactions,omitempty"`
	Timestamp    int64            `json:"timestamp"` // provider epoch milliseconds
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// MarketStatus is a point-in-time snapshot of the market state. Duplicate
// snapshots for the same (market, server_time) are silently ignored.
type MarketStatus struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Market     string    `gorm:"uniqueIndex:idx_market_server_time;size:20;not null" json:"market"`
	ServerTime time.Time `gorm:"uniqueIndex:idx_market_server_time;not null" json:"server_time"`
	Exchanges  string    `json:"exchanges"`  // JSON-encoded per-exchange status map
	Currencies string    `json:"currencies"` // JSON-encoded per-currency status map
	EarlyHours bool      `json:"early_hours"`
	MarketOpen bool      `json:"market_open"`
	AfterHours bool      `json:"after_hours"`
	CreatedAt  time.Time `json:"created_at"`
}

// DataFetchLog is the audit record for one pipeline invocation. It is
// created with status "started" and finalized exactly once to "completed"
// or "failed". Rows older than the retention window are purged by the
// scheduler's cleanup job; nothing else deletes them.
type DataFetchLog struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	FetchType            string     `gorm:"index;size:32;not null" json:"fetch_type"`
	Ticker               *string    `gorm:"size:10" json:"ticker,omitempty"`
	StartDate            *time.Time `json:"start_date,omitempty"`
	EndDate              *time.Time `json:"end_date,omitempty"`
	Status               string     `gorm:"index;size:16;not null" json:"status"`
	RecordsFetched       int        `json:"records_fetched"`
	ErrorMessage         *string    `json:"error_message,omitempty"`
	FetchDurationSeconds float64    `json:"fetch_duration_seconds"`
	CreatedAt            time.Time  `gorm:"index" json:"created_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

// MigrateMarketModels runs database migrations for market-data models
func MigrateMarketModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&StockTicker{},
		&DailyAggregate{},
		&MarketStatus{},
		&DataFetchLog{},
	)
}
