package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"polygon_data_monitor/models"
	"polygon_data_monitor/scheduler"
	"polygon_data_monitor/services/fetcher"
)

// StatusController serves the read-only operational API: health, store
// statistics, recent fetch activity and scheduler state.
type StatusController struct {
	db      *gorm.DB
	audit   *fetcher.AuditLog
	monitor *scheduler.Monitor
}

// NewStatusController creates a new status controller
func NewStatusController(db *gorm.DB, audit *fetcher.AuditLog, monitor *scheduler.Monitor) *StatusController {
	return &StatusController{
		db:      db,
		audit:   audit,
		monitor: monitor,
	}
}

// Health reports liveness and database reachability
// GET /health
func (sc *StatusController) Health(c *gin.Context) {
	sqlDB, err := sc.db.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"error":  "database unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Stats returns store row counts and trailing-24h fetch activity
// GET /api/v1/stats
func (sc *StatusController) Stats(c *gin.Context) {
	counts := gin.H{}
	for name, model := range map[string]interface{}{
		"stock_tickers":    &models.StockTicker{},
		"daily_aggregates": &models.DailyAggregate{},
		"market_status":    &models.MarketStatus{},
		"data_fetch_log":   &models.DataFetchLog{},
	} {
		var n int64
		if err := sc.db.Model(model).Count(&n).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to collect statistics"})
			return
		}
		counts[name] = n
	}

	var latestDailyDate *time.Time
	var latest models.DailyAggregate
	err := sc.db.Order("date DESC").First(&latest).Error
	switch {
	case err == nil:
		latestDailyDate = &latest.Date
	case errors.Is(err, gorm.ErrRecordNotFound):
		// no aggregates yet, reported as null
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to collect statistics"})
		return
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	var recent struct {
		Total     int64
		Completed int64
		Failed    int64
	}
	base := sc.db.Model(&models.DataFetchLog{}).Where("created_at > ?", since)
	base.Session(&gorm.Session{}).Count(&recent.Total)
	base.Session(&gorm.Session{}).Where("status = ?", models.FetchStatusCompleted).Count(&recent.Completed)
	base.Session(&gorm.Session{}).Where("status = ?", models.FetchStatusFailed).Count(&recent.Failed)

	c.JSON(http.StatusOK, gin.H{
		"table_counts":      counts,
		"latest_daily_date": latestDailyDate,
		"recent_fetches": gin.H{
			"total":     recent.Total,
			"completed": recent.Completed,
			"failed":    recent.Failed,
		},
	})
}

// RecentFetches returns the latest audit rows, newest first
// GET /api/v1/fetches
func (sc *StatusController) RecentFetches(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 500 {
		limit = 50
	}

	rows, err := sc.audit.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch audit log"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}

// SchedulerStatus reports the monitor state and per-job next-due times
// GET /api/v1/scheduler/status
func (sc *StatusController) SchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state": sc.monitor.State().String(),
		"jobs":  sc.monitor.Jobs(),
	})
}
