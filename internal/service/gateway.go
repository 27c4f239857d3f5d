package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/net/http2"

	"OpsPulse/internal/biz"
	"OpsPulse/internal/model"
)

// Hop-by-hop headers are meaningful only for a single transport hop and
// must not be forwarded to the upstream or back to the caller.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// GatewayService forwards incoming requests to the backend service whose
// route prefix matches the request path, with a circuit breaker in front
// of every backend.
type GatewayService struct {
	registry *biz.ServiceRegistry
	breakers *biz.BreakerGroup
	client   *http.Client
	log      *log.Helper
}

func NewGatewayService(registry *biz.ServiceRegistry, breakers *biz.BreakerGroup, logger log.Logger) (*GatewayService, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, err
	}
	return &GatewayService{
		registry: registry,
		breakers: breakers,
		client:   &http.Client{Transport: transport},
		log:      log.NewHelper(log.With(logger, "module", "service/gateway")),
	}, nil
}

// Proxy returns the catch-all handler that routes requests to backends.
func (s *GatewayService) Proxy() http.Handler {
	return http.HandlerFunc(s.serveProxy)
}

func (s *GatewayService) serveProxy(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	svc := s.registry.Route(path)
	if svc == nil {
		s.log.Warnw("msg", "no route for request", "path", path)
		writeGatewayError(w, http.StatusNotFound, "ROUTE_NOT_FOUND", "no backend service matches "+path)
		return
	}

	breaker := s.breakers.Get(svc.Name)
	if breaker != nil && !breaker.Allow() {
		s.log.Warnw("msg", "request rejected by open circuit", "service", svc.Name, "path", path)
		writeGatewayError(w, http.StatusServiceUnavailable, "CIRCUIT_OPEN", svc.Name+" is temporarily unavailable")
		return
	}

	start := time.Now()
	resp, err := s.forward(r, svc)
	latency := time.Since(start)
	if err != nil {
		if breaker != nil {
			breaker.OnFailure()
		}
		status, reason := classifyForwardError(err)
		s.log.Errorw(
			"msg", "upstream request failed",
			"service", svc.Name,
			"method", r.Method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
			"error", err,
		)
		writeGatewayError(w, status, reason, "request to "+svc.Name+" failed")
		return
	}
	defer resp.Body.Close()

	// Any upstream response, including 5xx, proves the backend is
	// reachable. Status codes are relayed verbatim and never trip the
	// breaker.
	if breaker != nil {
		breaker.OnSuccess()
	}

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.log.Warnw("msg", "response relay interrupted", "service", svc.Name, "error", err)
	}

	s.log.Infow(
		"msg", "request forwarded",
		"service", svc.Name,
		"method", r.Method,
		"path", path,
		"status", resp.StatusCode,
		"latency_ms", latency.Milliseconds(),
	)
}

func (s *GatewayService) forward(r *http.Request, svc *model.ServiceDescriptor) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(r.Context(), svc.Timeout)
	defer cancel()

	target := svc.BaseURL + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	// Only idempotent requests without a body are retried; a consumed body
	// cannot be replayed.
	attempts := 1
	if svc.Retries > 0 && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		attempts += svc.Retries
	}

	var resp *http.Response
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		var out *http.Request
		out, err = http.NewRequestWithContext(ctx, r.Method, target, r.Body)
		if err != nil {
			return nil, err
		}
		copyHeaders(out.Header, r.Header)
		if host, _, splitErr := net.SplitHostPort(r.RemoteAddr); splitErr == nil {
			out.Header.Set("X-Forwarded-For", host)
		}

		resp, err = s.client.Do(out)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	// Detach the body from the per-request context before cancel fires.
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	resp.Body = io.NopCloser(strings.NewReader(string(body)))
	return resp, nil
}

func classifyForwardError(err error) (int, string) {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"
	}
	return http.StatusBadGateway, "UPSTREAM_UNREACHABLE"
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if isHopByHop(k) {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func isHopByHop(header string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(header, h) {
			return true
		}
	}
	return false
}

func writeGatewayError(w http.ResponseWriter, status int, reason, detail string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":     reason,
		"detail":    detail,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
