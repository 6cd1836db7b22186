// Package fetcher implements the fetch-persist pipeline: every public
// operation opens an audit record, calls the provider through the retry
// wrapper, upserts the result and finalizes the audit record with a
// terminal status.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"polygon_data_monitor/config"
	"polygon_data_monitor/models"
	"polygon_data_monitor/pkg/ratelimit"
	"polygon_data_monitor/pkg/retry"
	"polygon_data_monitor/services/polygon"
)

// Fetcher pulls market data from the upstream client and persists it.
// It exclusively owns the audit-record lifecycle.
type Fetcher struct {
	db       *gorm.DB
	client   polygon.Client
	audit    *AuditLog
	retryer  *retry.Retryer
	cfg      *config.Config
	throttle time.Duration // coarse sleep between tickers in batch loops
	log      *logrus.Logger
}

// New creates a fetch pipeline around the given client and database.
func New(db *gorm.DB, client polygon.Client, cfg *config.Config, log *logrus.Logger) *Fetcher {
	return &Fetcher{
		db:     db,
		client: client,
		audit:  NewAuditLog(db, log),
		retryer: retry.New(retry.Config{
			MaxAttempts:   cfg.MaxRetries,
			InitialDelay:  cfg.RetryDelay,
			BackoffFactor: 2.0,
		}, log),
		cfg:      cfg,
		throttle: ratelimit.Interval(cfg.RequestsPerMinute),
		log:      log,
	}
}

// AuditLog exposes the audit component for the scheduler's purge and
// health-check jobs and the operational API.
func (f *Fetcher) AuditLog() *AuditLog { return f.audit }

// SyncAggregates fetches daily bars for ticker over [start, end] and
// upserts them keyed by (ticker, date). It returns the number of bars
// persisted. Re-running the same range is idempotent.
func (f *Fetcher) SyncAggregates(ctx context.Context, ticker string, start, end time.Time) (int, error) {
	if ticker == "" {
		return 0, fmt.Errorf("fetcher: ticker must not be empty")
	}
	if start.After(end) {
		return 0, fmt.Errorf("fetcher: start date %s is after end date %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	fetchID := f.audit.Begin(models.FetchTypeDailyAggregates, ticker, &start, &end)
	started := time.Now()

	f.log.WithFields(logrus.Fields{
		"ticker": ticker,
		"start":  start.Format("2006-01-02"),
		"end":    end.Format("2006-01-02"),
	}).Info("Fetching daily aggregates")

	var bars []polygon.Agg
	err := f.retryer.Do(ctx, "list_aggs", func() error {
		var callErr error
		bars, callErr = f.client.ListAggs(ctx, ticker, start, end)
		return callErr
	})
	if err != nil {
		upErr := &UpstreamError{Op: "list_aggs", Err: err}
		f.audit.Finish(fetchID, 0, upErr, time.Since(started))
		f.log.WithField("ticker", ticker).Errorf("Failed to fetch daily aggregates: %v", err)
		return 0, upErr
	}

	records := 0
	err = f.db.Transaction(func(tx *gorm.DB) error {
		for _, bar := range bars {
			agg, convErr := convertAgg(ticker, bar)
			if convErr != nil {
				// Partial-failure semantics: a malformed bar is skipped,
				// never aborts the batch.
				f.log.WithField("ticker", ticker).Warnf("Skipping malformed bar: %v", convErr)
				continue
			}

			if dbErr := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "ticker"}, {Name: "date"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"open", "high", "low", "close", "volume", "vwap",
					"transactions", "timestamp", "updated_at",
				}),
			}).Create(&agg).Error; dbErr != nil {
				return dbErr
			}
			records++
		}
		return nil
	})
	if err != nil {
		perr := &PersistenceError{Op: "upsert_aggregates", Err: err}
		f.audit.Finish(fetchID, 0, perr, time.Since(started))
		return 0, perr
	}

	f.audit.Finish(fetchID, records, nil, time.Since(started))
	f.log.WithFields(logrus.Fields{
		"ticker":  ticker,
		"records": records,
	}).Info("Daily aggregates stored")
	return records, nil
}

// SyncTickerMetadata fetches the reference metadata for a ticker and
// upserts it. A nil provider result completes with zero records.
func (f *Fetcher) SyncTickerMetadata(ctx context.Context, ticker string) error {
	if ticker == "" {
		return fmt.Errorf("fetcher: ticker must not be empty")
	}

	fetchID := f.audit.Begin(models.FetchTypeTickerDetails, ticker, nil, nil)
	started := time.Now()

	details, err := f.fetchDetails(ctx, ticker)
	if err != nil {
		f.audit.Finish(fetchID, 0, err, time.Since(started))
		f.log.WithField("ticker", ticker).Errorf("Failed to fetch ticker details: %v", err)
		return err
	}
	if details == nil {
		f.log.WithField("ticker", ticker).Warn("No ticker details available")
		f.audit.Finish(fetchID, 0, nil, time.Since(started))
		return nil
	}

	if err := f.upsertTicker(detailsToModel(details)); err != nil {
		f.audit.Finish(fetchID, 0, err, time.Since(started))
		return err
	}

	f.audit.Finish(fetchID, 1, nil, time.Since(started))
	return nil
}

// SyncMarketStatus fetches the current market session snapshot and stores
// it. A snapshot for an already-seen instant is silently ignored.
func (f *Fetcher) SyncMarketStatus(ctx context.Context) error {
	fetchID := f.audit.Begin(models.FetchTypeMarketStatus, "", nil, nil)
	started := time.Now()

	var status *polygon.MarketStatus
	err := f.retryer.Do(ctx, "market_status", func() error {
		var callErr error
		status, callErr = f.client.GetMarketStatus(ctx)
		return callErr
	})
	if err != nil {
		upErr := &UpstreamError{Op: "market_status", Err: err}
		f.audit.Finish(fetchID, 0, upErr, time.Since(started))
		f.log.Errorf("Failed to fetch market status: %v", err)
		return upErr
	}

	snapshot, convErr := statusToModel(status)
	if convErr != nil {
		// An unparseable payload counts as an upstream fault.
		upErr := &UpstreamError{Op: "market_status", Err: convErr}
		f.audit.Finish(fetchID, 0, upErr, time.Since(started))
		return upErr
	}

	res := f.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "market"}, {Name: "server_time"}},
		DoNothing: true,
	}).Create(&snapshot)
	if res.Error != nil {
		perr := &PersistenceError{Op: "insert_market_status", Err: res.Error}
		f.audit.Finish(fetchID, 0, perr, time.Since(started))
		return perr
	}

	f.audit.Finish(fetchID, int(res.RowsAffected), nil, time.Since(started))
	return nil
}

// InitTicker seeds the ticker table for one configured symbol. When the
// provider has no details (or the call fails after retries) a minimal
// active row is written instead, so a fresh deployment always has a seed
// row per symbol.
func (f *Fetcher) InitTicker(ctx context.Context, ticker string) error {
	fetchID := f.audit.Begin(models.FetchTypeTickerInit, ticker, nil, nil)
	started := time.Now()

	row := models.StockTicker{
		Ticker:       ticker,
		Market:       "stocks",
		Locale:       "us",
		Active:       true,
		CurrencyName: "usd",
	}

	details, err := f.fetchDetails(ctx, ticker)
	switch {
	case err != nil:
		f.log.WithField("ticker", ticker).Warnf("Using minimal ticker entry, details unavailable: %v", err)
	case details == nil:
		f.log.WithField("ticker", ticker).Warn("Using minimal ticker entry, provider has no record")
	default:
		row = detailsToModel(details)
	}

	if err := f.upsertTicker(row); err != nil {
		f.audit.Finish(fetchID, 0, err, time.Since(started))
		return err
	}

	f.audit.Finish(fetchID, 1, nil, time.Since(started))
	f.log.WithField("ticker", ticker).Info("Initialized ticker")
	return nil
}

// RunInitialSetup seeds tickers, backfills the historical lookback window
// and records an initial market-status snapshot. Per-ticker failures are
// logged and skipped; the setup keeps going.
func (f *Fetcher) RunInitialSetup(ctx context.Context) error {
	f.log.Info("Starting initial setup")

	for _, ticker := range f.cfg.DefaultTickers {
		if err := f.InitTicker(ctx, ticker); err != nil {
			f.log.WithField("ticker", ticker).Errorf("Failed to initialize ticker: %v", err)
		}
		if err := f.throttleSleep(ctx); err != nil {
			return err
		}
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -f.cfg.DaysBackInitial)
	for _, ticker := range f.cfg.DefaultTickers {
		if f.cfg.EnableDailyAggregates {
			if _, err := f.SyncAggregates(ctx, ticker, start, end); err != nil {
				f.log.WithField("ticker", ticker).Errorf("Failed to backfill history: %v", err)
			}
		}
		if err := f.throttleSleep(ctx); err != nil {
			return err
		}
	}

	if err := f.SyncMarketStatus(ctx); err != nil {
		f.log.Errorf("Failed to fetch market status: %v", err)
	}

	f.log.Info("Initial setup completed")
	return nil
}

// TickerCount reports how many tickers are stored. The scheduler uses it
// to decide whether a fresh deployment needs the initial setup.
func (f *Fetcher) TickerCount() (int64, error) {
	var count int64
	err := f.db.Model(&models.StockTicker{}).Count(&count).Error
	return count, err
}

// Throttle is the coarse per-ticker delay batch jobs sleep between
// symbols, layered on top of the call-level limiter.
func (f *Fetcher) Throttle() time.Duration { return f.throttle }

// fetchDetails wraps the details call with the retry discipline and maps
// exhausted retries to an UpstreamError.
func (f *Fetcher) fetchDetails(ctx context.Context, ticker string) (*polygon.TickerDetails, error) {
	var details *polygon.TickerDetails
	err := f.retryer.Do(ctx, "ticker_details", func() error {
		var callErr error
		details, callErr = f.client.GetTickerDetails(ctx, ticker)
		return callErr
	})
	if err != nil {
		return nil, &UpstreamError{Op: "ticker_details", Err: err}
	}
	return details, nil
}

func (f *Fetcher) upsertTicker(row models.StockTicker) error {
	err := f.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ticker"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "market", "locale", "primary_exchange", "type", "active",
			"currency_name", "cik", "composite_figi", "share_class_figi",
			"last_updated_utc", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return &PersistenceError{Op: "upsert_ticker", Err: err}
	}
	return nil
}

func (f *Fetcher) throttleSleep(ctx context.Context) error {
	select {
	case <-time.After(f.throttle):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// convertAgg turns a provider bar into a row, mapping the epoch-millisecond
// timestamp to a UTC calendar date.
func convertAgg(ticker string, bar polygon.Agg) (models.DailyAggregate, error) {
	if bar.Timestamp <= 0 {
		return models.DailyAggregate{}, fmt.Errorf("bar has invalid timestamp %d", bar.Timestamp)
	}

	t := time.UnixMilli(bar.Timestamp).UTC()
	date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	agg := models.DailyAggregate{
		Ticker:    ticker,
		Date:      date,
		Open:      decimal.NewFromFloat(bar.Open),
		High:      decimal.NewFromFloat(bar.High),
		Low:       decimal.NewFromFloat(bar.Low),
		Close:     decimal.NewFromFloat(bar.Close),
		Volume:    int64(bar.Volume),
		Timestamp: bar.Timestamp,
	}
	if bar.VWAP != 0 {
		vwap := decimal.NewFromFloat(bar.VWAP)
		agg.VWAP = &vwap
	}
	if bar.Transactions != 0 {
		n := bar.Transactions
		agg.Transactions = &n
	}
	return agg, nil
}

func detailsToModel(d *polygon.TickerDetails) models.StockTicker {
	row := models.StockTicker{
		Ticker:          d.Ticker,
		Name:            d.Name,
		Market:          d.Market,
		Locale:          d.Locale,
		PrimaryExchange: d.PrimaryExchange,
		Type:            d.Type,
		Active:          d.Active,
		CurrencyName:    d.CurrencyName,
	}
	if d.CIK != "" {
		row.CIK = &d.CIK
	}
	if d.CompositeFIGI != "" {
		row.CompositeFIGI = &d.CompositeFIGI
	}
	if d.ShareClassFIGI != "" {
		row.ShareClassFIGI = &d.ShareClassFIGI
	}
	if d.LastUpdatedUTC != "" {
		if ts, err := time.Parse(time.RFC3339, d.LastUpdatedUTC); err == nil {
			utc := ts.UTC()
			row.LastUpdatedUTC = &utc
		}
	}
	return row
}

func statusToModel(s *polygon.MarketStatus) (models.MarketStatus, error) {
	serverTime, err := time.Parse(time.RFC3339, s.ServerTime)
	if err != nil {
		return models.MarketStatus{}, fmt.Errorf("fetcher: invalid server time %q: %w", s.ServerTime, err)
	}

	exchanges, _ := json.Marshal(s.Exchanges)
	currencies, _ := json.Marshal(s.Currencies)

	return models.MarketStatus{
		Market:     "stocks",
		ServerTime: serverTime.UTC(),
		Exchanges:  string(exchanges),
		Currencies: string(currencies),
		EarlyHours: s.EarlyHours,
		MarketOpen: s.Market == "open",
		AfterHours: s.AfterHours,
	}, nil
}
