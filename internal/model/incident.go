package model

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// Log levels that the incident detector treats as incident-worthy.
const (
	LevelError    = "ERROR"
	LevelCritical = "CRITICAL"
	LevelFatal    = "FATAL"
)

// ErrorLevels is the level filter applied to log store queries.
var ErrorLevels = []string{LevelError, LevelCritical, LevelFatal}

// IsErrorLevel reports whether a log level is incident-worthy.
func IsErrorLevel(level string) bool {
	switch level {
	case LevelError, LevelCritical, LevelFatal:
		return true
	}
	return false
}

// LogEntry is one row returned by the log store. The store itself is an
// external collaborator; this is the shape the detector consumes.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Service   string         `json:"service"`
	Level     string         `json:"level"`
	Logger    string         `json:"logger,omitempty"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Host      string         `json:"host,omitempty"`
}

// Incident is a detected adverse log event. Incidents are immutable once
// created; the ID doubles as the consumer-side dedup key.
type Incident struct {
	ID            string         `json:"incident_id"`
	Timestamp     time.Time      `json:"timestamp"`
	Service       string         `json:"service"`
	Level         string         `json:"level"`
	Logger        string         `json:"logger,omitempty"`
	Message       string         `json:"message"`
	Data          map[string]any `json:"data,omitempty"`
	Host          string         `json:"host,omitempty"`
	DetectionTime time.Time      `json:"detection_time"`
}

// NewIncident builds an Incident from a log entry. The same underlying row
// always yields the same incident ID, whichever detection cycle reads it.
func NewIncident(entry LogEntry, detectedAt time.Time) Incident {
	return Incident{
		ID:            IncidentID(entry.Service, entry.Level, entry.Timestamp, entry.Message),
		Timestamp:     entry.Timestamp,
		Service:       entry.Service,
		Level:         entry.Level,
		Logger:        entry.Logger,
		Message:       entry.Message,
		Data:          entry.Data,
		Host:          entry.Host,
		DetectionTime: detectedAt,
	}
}

// IncidentID derives the deterministic incident identifier: the first 16 hex
// characters of the md5 of service, level, the timestamp truncated to whole
// seconds, and the first 50 bytes of the message. Truncating the timestamp
// keeps the id stable across stores that differ in sub-second precision.
func IncidentID(service, level string, ts time.Time, message string) string {
	if len(message) > 50 {
		message = message[:50]
	}
	key := fmt.Sprintf("%s_%s_%s_%s",
		service, level, ts.UTC().Truncate(time.Second).Format(time.RFC3339), message)
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// TimeRange is the half-open window an analytics update covers.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AnalyticsUpdate is the per-service error count emitted once per detection
// cycle alongside the individual incidents.
type AnalyticsUpdate struct {
	Service    string    `json:"service"`
	ErrorCount int       `json:"error_count"`
	TimeRange  TimeRange `json:"time_range"`
	Summary    string    `json:"summary"`
}

// ErrorCount is one row of the aggregate count query, grouped by service
// and level.
type ErrorCount struct {
	Service string `json:"service"`
	Level   string `json:"level"`
	Count   int64  `json:"count"`
}

// ServiceErrorBreakdown groups a service's error counts by level.
type ServiceErrorBreakdown struct {
	TotalErrors int64            `json:"total_errors"`
	ErrorLevels map[string]int64 `json:"error_levels"`
}

// IncidentSummary is the aggregate view returned by the incident API for a
// time window.
type IncidentSummary struct {
	TotalErrors      int64                            `json:"total_errors"`
	ServicesAffected int                              `json:"services_affected"`
	ErrorBreakdown   map[string]ServiceErrorBreakdown `json:"error_breakdown"`
	TimeRange        TimeRange                        `json:"time_range"`
	RecentErrorCount int                              `json:"recent_error_count"`
	RecentErrors     []LogEntry                       `json:"recent_errors"`
}
