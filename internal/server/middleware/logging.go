package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

const slowRequestThreshold = 3 * time.Second

// Logging records one structured line per HTTP request with method, path,
// status, latency and a request id taken from X-Request-ID or generated.
func Logging(logger log.Logger) middleware.Middleware {
	helper := log.NewHelper(log.With(logger, "module", "server/http"))
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			start := time.Now()

			var (
				method    string
				path      string
				ip        string
				requestID string
			)
			if tr, ok := transport.FromServerContext(ctx); ok {
				method = tr.Operation()
				path = tr.Operation()
				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
					ip = clientIP(httpReq)
					requestID = httpReq.Header.Get("X-Request-ID")
				}
			}
			if requestID == "" {
				requestID = newRequestID()
			}

			reply, err := handler(ctx, req)

			latency := time.Since(start)
			status := 200
			if err != nil {
				status = int(errors.FromError(err).Code)
			}

			kv := []interface{}{
				"msg", "http request",
				"request_id", requestID,
				"method", method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"ip", ip,
			}
			switch {
			case err != nil && status >= 500:
				helper.Errorw(append(kv, "error", err)...)
			case err != nil:
				helper.Warnw(append(kv, "error", err)...)
			case latency > slowRequestThreshold:
				helper.Warnw(append(kv, "slow", true)...)
			default:
				helper.Infow(kv...)
			}

			return reply, err
		}
	}
}

// clientIP prefers proxy headers over the socket address.
func clientIP(req *http.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		if parts := strings.Split(forwarded, ","); len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	return req.RemoteAddr
}

func newRequestID() string {
	var b [5]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b[:])
}
