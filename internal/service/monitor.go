package service

import (
	"net/http"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"

	"OpsPulse/internal/biz"
)

// MonitorService exposes the health monitor state over HTTP.
type MonitorService struct {
	monitor  *biz.HealthMonitorUsecase
	breakers *biz.BreakerGroup
	log      *log.Helper
}

func NewMonitorService(monitor *biz.HealthMonitorUsecase, breakers *biz.BreakerGroup, logger log.Logger) *MonitorService {
	return &MonitorService{
		monitor:  monitor,
		breakers: breakers,
		log:      log.NewHelper(log.With(logger, "module", "service/monitor")),
	}
}

// ListServices returns the latest health record for every monitored service.
func (s *MonitorService) ListServices(ctx khttp.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"services":  s.monitor.Records(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetService returns the health record for a single service.
func (s *MonitorService) GetService(ctx khttp.Context) error {
	name := ctx.Vars().Get("name")
	record, ok := s.monitor.Record(name)
	if !ok {
		return errors.NotFound("SERVICE_NOT_FOUND", "no monitored service named "+name)
	}
	return ctx.JSON(http.StatusOK, record)
}

// SystemHealth returns the aggregate status across all monitored services.
func (s *MonitorService) SystemHealth(ctx khttp.Context) error {
	return ctx.JSON(http.StatusOK, s.monitor.Overall())
}

// GatewayHealth is the gateway's own health endpoint.
func (s *MonitorService) GatewayHealth(ctx khttp.Context) error {
	overall := s.monitor.Overall()
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":         overall.OverallStatus,
		"total_services": overall.TotalServices,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// GatewayStatus reports per-service records plus circuit breaker snapshots.
func (s *MonitorService) GatewayStatus(ctx khttp.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"services":         s.monitor.Records(),
		"circuit_breakers": s.breakers.Snapshots(),
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}
