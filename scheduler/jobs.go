package scheduler

import (
	"context"
	"time"

	"polygon_data_monitor/config"
)

const healthCheckEvery = 6 * time.Hour

// registerJobs builds the standard job set. Cadences follow the upstream
// data availability: daily bars after market close, reference data weekly,
// intraday status polling only while the market trades.
func (m *Monitor) registerJobs(now time.Time) {
	dailyHour, dailyMin, _ := config.ParseClock(m.cfg.DailyFetchTime)

	m.jobs = []*Job{
		{
			name: "daily_aggregates",
			next: nextDailyAt(now, dailyHour, dailyMin),
			reschedule: func(t time.Time) time.Time {
				return nextDailyAt(t, dailyHour, dailyMin)
			},
			run: m.fetchLatestDailyData,
		},
		{
			name: "ticker_refresh",
			next: nextWeeklyAt(now, time.Sunday, 6, 0),
			reschedule: func(t time.Time) time.Time {
				return nextWeeklyAt(t, time.Sunday, 6, 0)
			},
			run: m.updateTickerInfo,
		},
		{
			name: "audit_purge",
			next: nextWeeklyAt(now, time.Monday, 2, 0),
			reschedule: func(t time.Time) time.Time {
				return nextWeeklyAt(t, time.Monday, 2, 0)
			},
			run: m.purgeAuditLogs,
		},
		{
			name: "health_check",
			next: now.Add(healthCheckEvery),
			reschedule: func(t time.Time) time.Time {
				return t.Add(healthCheckEvery)
			},
			run: m.healthCheck,
		},
	}

	if m.cfg.EnableRealtime {
		every := time.Duration(m.cfg.FetchIntervalMinutes) * time.Minute
		m.jobs = append(m.jobs, &Job{
			name: "market_status",
			next: now.Add(every),
			reschedule: func(t time.Time) time.Time {
				return t.Add(every)
			},
			run: m.fetchCurrentMarketData,
		})
	}
}

// fetchLatestDailyData refreshes yesterday's bars for every configured
// ticker. Daily data is only final after market close, hence the fixed
// evening cadence. A single ticker's failure never halts the batch.
func (m *Monitor) fetchLatestDailyData(ctx context.Context) {
	if !m.cfg.EnableDailyAggregates {
		m.log.Debug("Daily aggregates disabled, skipping")
		return
	}

	m.log.Info("Starting scheduled daily data fetch")
	yesterday := time.Now().UTC().AddDate(0, 0, -1)

	for _, ticker := range m.cfg.DefaultTickers {
		if m.stopping() {
			m.log.Info("Shutdown requested, stopping daily fetch early")
			return
		}
		if _, err := m.fetcher.SyncAggregates(ctx, ticker, yesterday, yesterday); err != nil {
			m.log.WithField("ticker", ticker).Errorf("Failed to fetch daily data: %v", err)
		}
		m.throttle(ctx)
	}

	m.log.Info("Completed scheduled daily data fetch")
}

// updateTickerInfo refreshes reference metadata for every configured ticker.
func (m *Monitor) updateTickerInfo(ctx context.Context) {
	m.log.Info("Updating ticker information")

	for _, ticker := range m.cfg.DefaultTickers {
		if m.stopping() {
			m.log.Info("Shutdown requested, stopping ticker update early")
			return
		}
		if err := m.fetcher.SyncTickerMetadata(ctx, ticker); err != nil {
			m.log.WithField("ticker", ticker).Errorf("Failed to update ticker info: %v", err)
		}
		m.throttle(ctx)
	}

	m.log.Info("Completed ticker information update")
}

// purgeAuditLogs trims fetch records past the retention window.
func (m *Monitor) purgeAuditLogs(ctx context.Context) {
	deleted, err := m.fetcher.AuditLog().PurgeOlderThan(m.cfg.AuditRetention())
	if err != nil {
		m.log.Errorf("Failed to cleanup old fetch logs: %v", err)
		return
	}
	m.log.Infof("Cleaned up %d old fetch log entries", deleted)
}

// healthCheck looks for successful fetches in the trailing 24 hours. It is
// purely observational and never remediates.
func (m *Monitor) healthCheck(ctx context.Context) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	count, err := m.fetcher.AuditLog().CompletedSince(since)
	if err != nil {
		m.log.Errorf("Health check failed: %v", err)
		return
	}
	if count == 0 {
		m.log.Warn("No successful fetches in the last 24 hours")
		return
	}
	m.log.Debugf("Health check passed: %d successful fetches in last 24h", count)
}

// fetchCurrentMarketData polls the market status on the intraday cadence.
// The job fires on schedule regardless, but exits early outside trading
// hours.
func (m *Monitor) fetchCurrentMarketData(ctx context.Context) {
	if !isMarketHours(time.Now()) {
		m.log.Debug("Market is closed, skipping current data fetch")
		return
	}

	m.log.Info("Fetching current market data")
	if err := m.fetcher.SyncMarketStatus(ctx); err != nil {
		m.log.Errorf("Failed to fetch market status: %v", err)
	}

	if m.cfg.EnableMinuteAggregates {
		// Minute bars need a paid upstream plan; only the status poll runs
		// on the free tier.
		m.log.Debug("Minute aggregates not available on this plan, skipping")
	}
}

// throttle sleeps the coarse per-ticker delay between symbols in a batch,
// cut short by shutdown or context cancellation.
func (m *Monitor) throttle(ctx context.Context) {
	select {
	case <-time.After(m.fetcher.Throttle()):
	case <-m.stop:
	case <-ctx.Done():
	}
}
