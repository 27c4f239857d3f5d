package biz

import (
	"context"
	"sort"
	"sync"
	"time"

	"OpsPulse/internal/conf"
	"OpsPulse/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// Prober performs one bounded health probe against a service.
type Prober interface {
	Probe(ctx context.Context, svc *model.ServiceDescriptor) model.ProbeResult
}

// HealthMonitorUsecase maintains one health record per registered service.
// It owns the records exclusively; accessors hand out copies.
type HealthMonitorUsecase struct {
	registry     *ServiceRegistry
	prober       Prober
	relay        Relay
	probeTimeout time.Duration
	logger       *log.Helper

	mu      sync.RWMutex
	records map[string]*model.HealthRecord
}

// NewHealthMonitorUsecase creates the monitor with an UNKNOWN record per
// registered service.
func NewHealthMonitorUsecase(registry *ServiceRegistry, prober Prober, relay Relay, c *conf.Monitor, logger log.Logger) *HealthMonitorUsecase {
	records := make(map[string]*model.HealthRecord, len(registry.Services()))
	for _, svc := range registry.Services() {
		records[svc.Name] = &model.HealthRecord{
			Service: svc.Name,
			Status:  model.StatusUnknown,
		}
	}

	return &HealthMonitorUsecase{
		registry:     registry,
		prober:       prober,
		relay:        relay,
		probeTimeout: c.ProbeTimeout.AsDuration(),
		logger:       log.NewHelper(logger),
		records:      records,
	}
}

// CheckAll runs one monitoring cycle: every service is probed concurrently
// with a bounded timeout, each record is updated from its result, and every
// record is published on the health-updates channel whether it changed or
// not. A failing probe or publish never aborts the cycle.
func (uc *HealthMonitorUsecase) CheckAll(ctx context.Context) {
	services := uc.registry.Services()

	var wg sync.WaitGroup
	for _, svc := range services {
		wg.Add(1)
		go func(svc *model.ServiceDescriptor) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, uc.probeTimeout)
			defer cancel()

			result := uc.prober.Probe(probeCtx, svc)
			record := uc.apply(svc.Name, result)
			uc.publish(ctx, record)
		}(svc)
	}
	wg.Wait()
}

// apply folds a probe result into the service's record and returns a copy.
func (uc *HealthMonitorUsecase) apply(service string, result model.ProbeResult) model.HealthRecord {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	record, ok := uc.records[service]
	if !ok {
		record = &model.HealthRecord{Service: service}
		uc.records[service] = record
	}

	oldStatus := record.Status
	record.Status = result.Status
	record.ResponseTime = result.ResponseTime
	record.LastCheck = time.Now().UTC()
	record.ErrorMessage = result.ErrorMessage
	record.Details = result.Details

	if result.Status == model.StatusHealthy {
		record.ConsecutiveFailures = 0
	} else {
		record.ConsecutiveFailures++
	}

	if oldStatus != record.Status {
		uc.logger.Infow("msg", "service status changed",
			"service", service,
			"from", oldStatus,
			"to", record.Status,
			"error", record.ErrorMessage)
	}

	return *record
}

// publish sends one health update; failures are logged and swallowed since
// publishing is a side effect of probing, not its contract.
func (uc *HealthMonitorUsecase) publish(ctx context.Context, record model.HealthRecord) {
	update := model.HealthUpdate{
		Service:   record.Service,
		Status:    record,
		Timestamp: time.Now().UTC(),
	}
	if err := uc.relay.Publish(ctx, model.ChannelHealthUpdates, update); err != nil {
		uc.logger.Warnw("msg", "failed to publish health update",
			"service", record.Service,
			"error", err)
	}
}

// Record returns a copy of one service's health record.
func (uc *HealthMonitorUsecase) Record(service string) (model.HealthRecord, bool) {
	uc.mu.RLock()
	defer uc.mu.RUnlock()

	record, ok := uc.records[service]
	if !ok {
		return model.HealthRecord{}, false
	}
	return *record, true
}

// Records returns copies of every health record, ordered by service name.
func (uc *HealthMonitorUsecase) Records() []model.HealthRecord {
	uc.mu.RLock()
	defer uc.mu.RUnlock()

	records := make([]model.HealthRecord, 0, len(uc.records))
	for _, record := range uc.records {
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Service < records[j].Service })
	return records
}

// Overall aggregates the record set: any UNHEALTHY makes the system
// UNHEALTHY, else any DEGRADED makes it DEGRADED, else all HEALTHY makes it
// HEALTHY; anything short of that is UNKNOWN.
func (uc *HealthMonitorUsecase) Overall() model.SystemHealth {
	uc.mu.RLock()
	defer uc.mu.RUnlock()

	health := model.SystemHealth{
		TotalServices: len(uc.records),
		Timestamp:     time.Now().UTC(),
	}
	for _, record := range uc.records {
		switch record.Status {
		case model.StatusHealthy:
			health.Healthy++
		case model.StatusDegraded:
			health.Degraded++
		case model.StatusUnhealthy:
			health.Unhealthy++
		default:
			health.Unknown++
		}
	}

	switch {
	case health.Unhealthy > 0:
		health.OverallStatus = model.StatusUnhealthy
	case health.Degraded > 0:
		health.OverallStatus = model.StatusDegraded
	case health.Healthy == health.TotalServices && health.TotalServices > 0:
		health.OverallStatus = model.StatusHealthy
	default:
		health.OverallStatus = model.StatusUnknown
	}

	return health
}
