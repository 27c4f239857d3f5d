package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"OpsPulse/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// logEntryRow is the GORM mapping of one row in the log_entries table. The
// table is written by the platform's logging pipeline; this repository only
// reads it.
type logEntryRow struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"column:timestamp;index"`
	Service   string    `gorm:"column:service;size:64;index"`
	Level     string    `gorm:"column:level;size:16;index"`
	Logger    string    `gorm:"column:logger;size:128"`
	Message   string    `gorm:"column:message;type:text"`
	Data      string    `gorm:"column:data;type:json"`
	Host      string    `gorm:"column:host;size:128"`
}

// TableName implements the GORM Tabler interface.
func (logEntryRow) TableName() string {
	return "log_entries"
}

// toModel converts a row to the domain log entry. An unreadable data column
// is dropped rather than failing the whole query.
func (r *logEntryRow) toModel() model.LogEntry {
	entry := model.LogEntry{
		Timestamp: r.Timestamp.UTC(),
		Service:   r.Service,
		Level:     r.Level,
		Logger:    r.Logger,
		Message:   r.Message,
		Host:      r.Host,
	}
	if r.Data != "" {
		var data map[string]any
		if err := json.Unmarshal([]byte(r.Data), &data); err == nil {
			entry.Data = data
		}
	}
	return entry
}

// LogStoreRepo implements the biz.LogStore interface over the shared MySQL
// log store.
type LogStoreRepo struct {
	db     *gorm.DB
	logger *log.Helper
}

// NewLogStoreRepo creates a new log store repository.
func NewLogStoreRepo(data *Data, logger log.Logger) *LogStoreRepo {
	return &LogStoreRepo{
		db:     data.db,
		logger: log.NewHelper(logger),
	}
}

// ErrorsSince returns error-level entries with timestamp >= since, newest
// first, capped at limit.
func (r *LogStoreRepo) ErrorsSince(ctx context.Context, since time.Time, limit int) ([]model.LogEntry, error) {
	var rows []logEntryRow
	err := r.db.WithContext(ctx).
		Where("timestamp >= ?", since).
		Where("level IN ?", model.ErrorLevels).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query errors since %s: %w", since.Format(time.RFC3339), err)
	}

	return rowsToModel(rows), nil
}

// ServiceErrors returns error-level entries for one service since the given
// time, newest first, capped at limit.
func (r *LogStoreRepo) ServiceErrors(ctx context.Context, service string, since time.Time, limit int) ([]model.LogEntry, error) {
	var rows []logEntryRow
	err := r.db.WithContext(ctx).
		Where("service = ?", service).
		Where("timestamp >= ?", since).
		Where("level IN ?", model.ErrorLevels).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query errors for service %s: %w", service, err)
	}

	return rowsToModel(rows), nil
}

// ErrorCounts returns error counts since the given time, grouped by service
// and level.
func (r *LogStoreRepo) ErrorCounts(ctx context.Context, since time.Time) ([]model.ErrorCount, error) {
	var counts []model.ErrorCount
	err := r.db.WithContext(ctx).
		Model(&logEntryRow{}).
		Select("service, level, COUNT(*) AS count").
		Where("timestamp >= ?", since).
		Where("level IN ?", model.ErrorLevels).
		Group("service").
		Group("level").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count errors since %s: %w", since.Format(time.RFC3339), err)
	}

	return counts, nil
}

func rowsToModel(rows []logEntryRow) []model.LogEntry {
	entries := make([]model.LogEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].toModel())
	}
	return entries
}
