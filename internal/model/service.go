// Package model contains the domain types shared by the biz, data and
// service layers: service descriptors, health records, incidents and the
// pub/sub event envelopes.
package model

import "time"

// ServiceStatus is the health classification of a monitored service.
type ServiceStatus string

const (
	StatusHealthy   ServiceStatus = "healthy"
	StatusDegraded  ServiceStatus = "degraded"
	StatusUnhealthy ServiceStatus = "unhealthy"
	StatusUnknown   ServiceStatus = "unknown"
)

// ParseServiceStatus maps a self-reported status string to a ServiceStatus.
// Anything that is not an exact known value falls back to StatusUnknown;
// callers decide what the fallback means in their context.
func ParseServiceStatus(s string) ServiceStatus {
	switch ServiceStatus(s) {
	case StatusHealthy, StatusDegraded, StatusUnhealthy:
		return ServiceStatus(s)
	default:
		return StatusUnknown
	}
}

// ServiceDescriptor describes one upstream service registered at startup.
// Descriptors are immutable; routing, probing and circuit breaking all key
// off the Name.
type ServiceDescriptor struct {
	// Name is the unique service identifier, e.g. "file-service".
	Name string
	// BaseURL is the scheme://host:port root of the service.
	BaseURL string
	// HealthPath is the health probe path, usually "/health".
	HealthPath string
	// RoutePrefix is the gateway path prefix routed to this service.
	RoutePrefix string
	// Timeout bounds a single forwarded request or probe.
	Timeout time.Duration
	// Retries is the forward retry budget for idempotent transport errors.
	Retries int
	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit for this service.
	BreakerThreshold int
}

// HealthURL returns the absolute probe URL for the service.
func (d *ServiceDescriptor) HealthURL() string {
	path := d.HealthPath
	if path == "" {
		path = "/health"
	}
	return d.BaseURL + path
}

// HealthRecord is the monitor's view of one service. It is owned and
// mutated exclusively by the health monitor; everyone else receives copies.
type HealthRecord struct {
	Service             string         `json:"service"`
	Status              ServiceStatus  `json:"status"`
	ResponseTime        float64        `json:"response_time"`
	LastCheck           time.Time      `json:"last_check"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	ErrorMessage        string         `json:"error_message,omitempty"`
	Details             map[string]any `json:"details,omitempty"`
}

// SystemHealth is the aggregate over all health records.
type SystemHealth struct {
	OverallStatus ServiceStatus `json:"overall_status"`
	TotalServices int           `json:"total_services"`
	Healthy       int           `json:"healthy"`
	Degraded      int           `json:"degraded"`
	Unhealthy     int           `json:"unhealthy"`
	Unknown       int           `json:"unknown"`
	Timestamp     time.Time     `json:"timestamp"`
}

// ProbeResult is the outcome of a single health probe, already reduced to
// the four-state status plus diagnostics. The prober applies exactly one
// fallback rule: HTTP <400 without a parseable status field means healthy.
type ProbeResult struct {
	Status       ServiceStatus
	ResponseTime float64
	ErrorMessage string
	Details      map[string]any
}

// BreakerSnapshot is a point-in-time copy of one circuit breaker, exposed
// on the gateway /status endpoint.
type BreakerSnapshot struct {
	Service         string     `json:"service"`
	State           string     `json:"state"`
	FailureCount    int        `json:"failure_count"`
	LastFailureTime *time.Time `json:"last_failure_time,omitempty"`
}
