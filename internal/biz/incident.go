package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"OpsPulse/internal/conf"
	"OpsPulse/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
)

// EventSource identifies this detector in published event envelopes.
const EventSource = "incident-detector"

// LogStore is the time-series log store the detector mines for new errors.
// The storage engine itself is an external collaborator; only range queries
// and aggregate counts are consumed.
type LogStore interface {
	// ErrorsSince returns error-level entries with timestamp >= since,
	// newest first, capped at limit.
	ErrorsSince(ctx context.Context, since time.Time, limit int) ([]model.LogEntry, error)

	// ServiceErrors returns error-level entries for one service since the
	// given time, newest first, capped at limit.
	ServiceErrors(ctx context.Context, service string, since time.Time, limit int) ([]model.LogEntry, error)

	// ErrorCounts returns error counts since the given time, grouped by
	// service and level.
	ErrorCounts(ctx context.Context, since time.Time) ([]model.ErrorCount, error)
}

// IncidentDetectorUsecase periodically scans the log store for new
// error-level entries and publishes deduplicated incident events.
//
// The checkpoint marks the last scanned boundary and never regresses. Each
// cycle re-reads a small trailing overlap behind the checkpoint on purpose:
// it covers entries that landed with slightly older timestamps than the
// previous cycle's snapshot (store/detector clock skew), and the
// deterministic incident id plus the dedup cache make the re-read harmless.
type IncidentDetectorUsecase struct {
	store     LogStore
	relay     Relay
	overlap   time.Duration
	batchSize int
	logger    *log.Helper

	mu         sync.Mutex
	checkpoint time.Time

	// seen caches recently emitted incident ids so an overlapping window
	// does not produce duplicate alerts.
	seen *lru.Cache[string, struct{}]

	now func() time.Time
}

// NewIncidentDetectorUsecase creates the detector. The checkpoint starts at
// construction time: only errors logged after startup are surfaced as
// incidents, matching the notification (not backfill) contract.
func NewIncidentDetectorUsecase(store LogStore, relay Relay, c *conf.Detector, logger log.Logger) (*IncidentDetectorUsecase, error) {
	dedupSize := c.DedupSize
	if dedupSize <= 0 {
		dedupSize = 4096
	}
	seen, err := lru.New[string, struct{}](dedupSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create incident dedup cache: %w", err)
	}

	batchSize := c.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	return &IncidentDetectorUsecase{
		store:      store,
		relay:      relay,
		overlap:    c.Overlap.AsDuration(),
		batchSize:  batchSize,
		logger:     log.NewHelper(logger),
		checkpoint: time.Now().UTC(),
		seen:       seen,
		now:        time.Now,
	}, nil
}

// DetectOnce runs one detection cycle. On query failure the checkpoint is
// left untouched so the same window is rescanned next cycle; on publish
// failure the event is dropped since the incident remains discoverable by
// querying the store directly.
func (uc *IncidentDetectorUsecase) DetectOnce(ctx context.Context) error {
	cycleStart := uc.now().UTC()

	uc.mu.Lock()
	since := uc.checkpoint.Add(-uc.overlap)
	uc.mu.Unlock()

	entries, err := uc.store.ErrorsSince(ctx, since, uc.batchSize)
	if err != nil {
		// Checkpoint stays put; retry the same window next tick.
		return fmt.Errorf("failed to query errors since %s: %w", since.Format(time.RFC3339), err)
	}

	uc.mu.Lock()
	if cycleStart.After(uc.checkpoint) {
		uc.checkpoint = cycleStart
	}
	uc.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}
	uc.logger.Infow("msg", "new errors detected", "count", len(entries), "since", since)

	counts := make(map[string]int)
	for _, entry := range entries {
		counts[entry.Service]++
		uc.emit(ctx, entry, cycleStart)
	}

	for service, count := range counts {
		update := model.AnalyticsUpdate{
			Service:    service,
			ErrorCount: count,
			TimeRange:  model.TimeRange{Start: since, End: cycleStart},
			Summary:    fmt.Sprintf("Detected %d errors for %s", count, service),
		}
		uc.publish(ctx, model.ChannelAnalytics, model.Event{
			EventType: model.EventAnalyticsUpdate,
			Timestamp: cycleStart,
			Data:      update,
			Source:    EventSource,
		})
	}

	return nil
}

// emit publishes one incident plus its raw error-log echo, suppressing ids
// already emitted in a previous (overlapping) cycle.
func (uc *IncidentDetectorUsecase) emit(ctx context.Context, entry model.LogEntry, detectedAt time.Time) {
	incident := model.NewIncident(entry, detectedAt)

	if _, dup := uc.seen.Get(incident.ID); dup {
		uc.logger.Debugw("msg", "suppressing duplicate incident", "incident_id", incident.ID)
		return
	}
	uc.seen.Add(incident.ID, struct{}{})

	uc.publish(ctx, model.ChannelIncidents, model.Event{
		EventType: model.EventErrorDetected,
		Timestamp: detectedAt,
		Data:      incident,
		Source:    EventSource,
	})

	// Raw echo for real-time log tails.
	uc.publish(ctx, model.ChannelErrorLogs, model.Event{
		EventType: "error_log",
		Timestamp: detectedAt,
		Data:      entry,
		Source:    EventSource,
	})
}

func (uc *IncidentDetectorUsecase) publish(ctx context.Context, channel string, event model.Event) {
	if err := uc.relay.Publish(ctx, channel, event); err != nil {
		uc.logger.Warnw("msg", "failed to publish event",
			"channel", channel,
			"event_type", event.EventType,
			"error", err)
	}
}

// Checkpoint returns the last scanned boundary timestamp.
func (uc *IncidentDetectorUsecase) Checkpoint() time.Time {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.checkpoint
}

// Summary aggregates errors over the window ending now: grouped counts from
// the store plus the most recent rows for context.
func (uc *IncidentDetectorUsecase) Summary(ctx context.Context, window time.Duration) (*model.IncidentSummary, error) {
	end := uc.now().UTC()
	start := end.Add(-window)

	counts, err := uc.store.ErrorCounts(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("failed to count errors: %w", err)
	}

	summary := &model.IncidentSummary{
		ErrorBreakdown: make(map[string]model.ServiceErrorBreakdown),
		TimeRange:      model.TimeRange{Start: start, End: end},
	}
	for _, count := range counts {
		breakdown, ok := summary.ErrorBreakdown[count.Service]
		if !ok {
			breakdown = model.ServiceErrorBreakdown{ErrorLevels: make(map[string]int64)}
		}
		breakdown.TotalErrors += count.Count
		breakdown.ErrorLevels[count.Level] = count.Count
		summary.ErrorBreakdown[count.Service] = breakdown
		summary.TotalErrors += count.Count
	}
	summary.ServicesAffected = len(summary.ErrorBreakdown)

	recent, err := uc.store.ErrorsSince(ctx, start, 10)
	if err != nil {
		// Counts alone are still a useful answer.
		uc.logger.Warnw("msg", "failed to fetch recent errors for summary", "error", err)
	} else {
		summary.RecentErrorCount = len(recent)
		summary.RecentErrors = recent
	}

	return summary, nil
}

// ServiceErrors returns error rows for one service over the window ending now.
func (uc *IncidentDetectorUsecase) ServiceErrors(ctx context.Context, service string, window time.Duration) ([]model.LogEntry, error) {
	since := uc.now().UTC().Add(-window)
	entries, err := uc.store.ServiceErrors(ctx, service, since, uc.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query errors for %s: %w", service, err)
	}
	return entries, nil
}
