package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"OpsPulse/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// maxProbeBody caps how much of a health response is read.
const maxProbeBody = 1 << 20

// HTTPProber implements the biz.Prober interface: one GET against a
// service's health endpoint, bounded by the caller's context deadline.
type HTTPProber struct {
	client *http.Client
	logger *log.Helper
}

// NewHTTPProber creates a new HTTP health prober.
func NewHTTPProber(logger log.Logger) *HTTPProber {
	return &HTTPProber{
		client: &http.Client{
			// Per-probe deadlines come from the caller's context; the
			// transport only bounds connection setup.
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: log.NewHelper(logger),
	}
}

// Probe performs one health check and reduces the response to a tagged
// four-state result.
//
// HTTP <400 with a parseable "status" field drives the result; <400 without
// one defaults to healthy, since many probes do not self-report. HTTP >=400
// and transport errors are unhealthy, with an error message distinguishing
// timeout, connection failure and status code.
func (p *HTTPProber) Probe(ctx context.Context, svc *model.ServiceDescriptor) model.ProbeResult {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.HealthURL(), nil)
	if err != nil {
		return model.ProbeResult{
			Status:       model.StatusUnhealthy,
			ErrorMessage: fmt.Sprintf("invalid probe request: %v", err),
		}
	}

	resp, err := p.client.Do(req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		return model.ProbeResult{
			Status:       model.StatusUnhealthy,
			ResponseTime: elapsed,
			ErrorMessage: classifyProbeError(err),
		}
	}
	defer resp.Body.Close()

	details := map[string]any{"http_status": resp.StatusCode}

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxProbeBody))
		return model.ProbeResult{
			Status:       model.StatusUnhealthy,
			ResponseTime: elapsed,
			ErrorMessage: fmt.Sprintf("HTTP %d", resp.StatusCode),
			Details:      details,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		// The service answered; a truncated body is not worth an alert.
		p.logger.Debugw("msg", "failed to read probe body", "service", svc.Name, "error", err)
		return model.ProbeResult{
			Status:       model.StatusHealthy,
			ResponseTime: elapsed,
			Details:      details,
		}
	}

	return model.ProbeResult{
		Status:       parseProbeStatus(body),
		ResponseTime: elapsed,
		Details:      details,
	}
}

// parseProbeStatus applies the single fallback rule: anything short of an
// explicit, recognized status field on a successful response means healthy.
func parseProbeStatus(body []byte) model.ServiceStatus {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return model.StatusHealthy
	}

	raw, ok := payload["status"].(string)
	if !ok {
		return model.StatusHealthy
	}

	status := model.ParseServiceStatus(strings.ToLower(raw))
	if status == model.StatusUnknown {
		return model.StatusHealthy
	}
	return status
}

// classifyProbeError distinguishes timeouts from connection failures in the
// record's error message.
func classifyProbeError(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "probe timeout"
	}
	return fmt.Sprintf("connection failed: %v", err)
}
