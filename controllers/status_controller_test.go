package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"polygon_data_monitor/config"
	"polygon_data_monitor/models"
	"polygon_data_monitor/scheduler"
	"polygon_data_monitor/services/fetcher"
)

var testDBSeq atomic.Int64

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:controllertest%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateMarketModels(db))

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.Config{
		DefaultTickers:       []string{"AAPL"},
		FetchIntervalMinutes: 15,
		MaxRetries:           1,
		RetryDelay:           time.Millisecond,
		RequestsPerMinute:    60000,
		AuditRetentionDays:   30,
		DailyFetchTime:       "22:00",
	}
	f := fetcher.New(db, nil, cfg, log)
	monitor := scheduler.NewMonitor(cfg, f, log)
	sc := NewStatusController(db, f.AuditLog(), monitor)

	router := gin.New()
	router.GET("/health", sc.Health)
	router.GET("/api/v1/stats", sc.Stats)
	router.GET("/api/v1/fetches", sc.RecentFetches)
	router.GET("/api/v1/scheduler/status", sc.SchedulerStatus)
	return router, db
}

func doGET(t *testing.T, router *gin.Engine, path string) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	code, body := doGET(t, router, "/health")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body["status"])
}

func TestStats(t *testing.T) {
	router, db := newTestRouter(t)

	require.NoError(t, db.Create(&models.StockTicker{
		Ticker: "AAPL", Market: "stocks", Locale: "us", Active: true, CurrencyName: "usd",
	}).Error)
	require.NoError(t, db.Create(&models.DataFetchLog{
		FetchType: models.FetchTypeDailyAggregates,
		Status:    models.FetchStatusCompleted,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}).Error)

	code, body := doGET(t, router, "/api/v1/stats")
	require.Equal(t, http.StatusOK, code)

	counts, ok := body["table_counts"].(map[string]interface{})
	require.True(t, ok)
	require.EqualValues(t, 1, counts["stock_tickers"])
	require.EqualValues(t, 0, counts["daily_aggregates"])

	recent, ok := body["recent_fetches"].(map[string]interface{})
	require.True(t, ok)
	require.EqualValues(t, 1, recent["total"])
	require.EqualValues(t, 1, recent["completed"])
	require.EqualValues(t, 0, recent["failed"])
}

func TestStatsLatestDailyDate(t *testing.T) {
	router, db := newTestRouter(t)

	code, body := doGET(t, router, "/api/v1/stats")
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, body["latest_daily_date"], "no aggregates reports null")

	for _, day := range []int{2, 3} {
		require.NoError(t, db.Create(&models.DailyAggregate{
			Ticker: "AAPL",
			Date:   time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
			Open:   decimal.NewFromFloat(185.0),
			High:   decimal.NewFromFloat(188.0),
			Low:    decimal.NewFromFloat(184.0),
			Close:  decimal.NewFromFloat(187.0),
			Volume: 1000000,
		}).Error)
	}

	code, body = doGET(t, router, "/api/v1/stats")
	require.Equal(t, http.StatusOK, code)

	latest, ok := body["latest_daily_date"].(string)
	require.True(t, ok, "latest_daily_date must be set once aggregates exist")
	require.Contains(t, latest, "2024-01-03")
}

func TestRecentFetches(t *testing.T) {
	router, db := newTestRouter(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&models.DataFetchLog{
			FetchType: models.FetchTypeMarketStatus,
			Status:    models.FetchStatusCompleted,
			CreatedAt: time.Now().UTC().Add(time.Duration(-i) * time.Minute),
		}).Error)
	}

	code, body := doGET(t, router, "/api/v1/fetches?limit=2")
	require.Equal(t, http.StatusOK, code)

	data, ok := body["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 2)
}

func TestRecentFetchesLimitClamped(t *testing.T) {
	router, db := newTestRouter(t)

	require.NoError(t, db.Create(&models.DataFetchLog{
		FetchType: models.FetchTypeMarketStatus,
		Status:    models.FetchStatusCompleted,
	}).Error)

	code, body := doGET(t, router, "/api/v1/fetches?limit=9999")
	require.Equal(t, http.StatusOK, code)
	data, ok := body["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 1)
}

func TestSchedulerStatus(t *testing.T) {
	router, _ := newTestRouter(t)

	code, body := doGET(t, router, "/api/v1/scheduler/status")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "idle", body["state"])

	jobs, ok := body["jobs"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, jobs)
}
