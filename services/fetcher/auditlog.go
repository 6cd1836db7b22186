package fetcher

import (
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"polygon_data_monitor/models"
)

// InvalidFetchID is returned by Begin when the audit row could not be
// written. Finish treats it as a no-op.
const InvalidFetchID = -1

// AuditLog persists one DataFetchLog row per pipeline invocation. Every
// write is best-effort: an internal failure is logged and never surfaced
// to the pipeline's caller.
type AuditLog struct {
	db  *gorm.DB
	log *logrus.Logger
}

// NewAuditLog creates an audit log backed by the given database.
func NewAuditLog(db *gorm.DB, log *logrus.Logger) *AuditLog {
	return &AuditLog{db: db, log: log}
}

// Begin records the start of a fetch and returns the row id, or
// InvalidFetchID when the write fails. ticker may be empty and the date
// range nil for fetch types they do not apply to.
func (a *AuditLog) Begin(fetchType, ticker string, start, end *time.Time) int {
	row := models.DataFetchLog{
		FetchType: fetchType,
		StartDate: start,
		EndDate:   end,
		Status:    models.FetchStatusStarted,
	}
	if ticker != "" {
		row.Ticker = &ticker
	}

	if err := a.db.Create(&row).Error; err != nil {
		a.log.WithField("fetch_type", fetchType).Errorf("Failed to log fetch start: %v", err)
		return InvalidFetchID
	}
	return int(row.ID)
}

// Finish finalizes a fetch record with its terminal status. A nil fetchErr
// marks the row completed, anything else failed with the error message.
func (a *AuditLog) Finish(id int, records int, fetchErr error, duration time.Duration) {
	if id == InvalidFetchID {
		return
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":                 models.FetchStatusCompleted,
		"records_fetched":        records,
		"fetch_duration_seconds": duration.Seconds(),
		"completed_at":           now,
	}
	if fetchErr != nil {
		msg := fetchErr.Error()
		updates["status"] = models.FetchStatusFailed
		updates["error_message"] = msg
	}

	if err := a.db.Model(&models.DataFetchLog{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		a.log.WithField("fetch_id", id).Errorf("Failed to log fetch completion: %v", err)
	}
}

// PurgeOlderThan deletes audit rows created before the retention window.
// This is the only deletion path for fetch records.
func (a *AuditLog) PurgeOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res := a.db.Where("created_at < ?", cutoff).Delete(&models.DataFetchLog{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// CompletedSince counts fetches that completed successfully after t. The
// scheduler's health check uses it to spot a stalled pipeline.
func (a *AuditLog) CompletedSince(t time.Time) (int64, error) {
	var count int64
	err := a.db.Model(&models.DataFetchLog{}).
		Where("status = ? AND created_at > ?", models.FetchStatusCompleted, t).
		Count(&count).Error
	return count, err
}

// Recent returns the latest n audit rows, newest first.
func (a *AuditLog) Recent(n int) ([]models.DataFetchLog, error) {
	var rows []models.DataFetchLog
	err := a.db.Order("created_at DESC").Limit(n).Find(&rows).Error
	return rows, err
}
