package service

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"

	"OpsPulse/internal/biz"
	pkgerrors "OpsPulse/pkg/errors"
)

const maxQueryWindowHours = 168

// IncidentService exposes incident analytics over HTTP.
type IncidentService struct {
	detector *biz.IncidentDetectorUsecase
	log      *log.Helper
}

func NewIncidentService(detector *biz.IncidentDetectorUsecase, logger log.Logger) *IncidentService {
	return &IncidentService{
		detector: detector,
		log:      log.NewHelper(log.With(logger, "module", "service/incident")),
	}
}

// ListIncidents returns the error summary for the requested window.
func (s *IncidentService) ListIncidents(ctx khttp.Context) error {
	window, err := parseWindow(ctx.Query().Get("hours"))
	if err != nil {
		return err
	}
	summary, err := s.detector.Summary(ctx, window)
	if err != nil {
		return storeError(err)
	}
	return ctx.JSON(http.StatusOK, summary)
}

// ServiceErrors returns recent error entries for one service.
func (s *IncidentService) ServiceErrors(ctx khttp.Context) error {
	window, err := parseWindow(ctx.Query().Get("hours"))
	if err != nil {
		return err
	}
	service := ctx.Vars().Get("service")
	entries, err := s.detector.ServiceErrors(ctx, service, window)
	if err != nil {
		return storeError(err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"service":    service,
		"errors":     entries,
		"count":      len(entries),
		"time_range": window.String(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// ForceCheck triggers a detection cycle without waiting for the schedule.
// The cycle runs in the background and the request is acknowledged
// immediately.
func (s *IncidentService) ForceCheck(ctx khttp.Context) error {
	go func() {
		cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.detector.DetectOnce(cctx); err != nil {
			s.log.Warnw("msg", "manual detection cycle failed", "error", err)
		}
	}()
	return ctx.JSON(http.StatusAccepted, map[string]any{
		"message":   "error check initiated",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// storeError translates a log store failure into the API error surface.
// Connection loss reads as service unavailability rather than a generic
// internal error.
func storeError(err error) error {
	if pkgerrors.IsConnectionError(err) {
		return errors.ServiceUnavailable("LOG_STORE_UNAVAILABLE", "error log store is unreachable")
	}
	return errors.InternalServer("LOG_STORE_QUERY_FAILED", "failed to query error logs")
}

func parseWindow(raw string) (time.Duration, error) {
	if raw == "" {
		return time.Hour, nil
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours < 1 || hours > maxQueryWindowHours {
		return 0, errors.BadRequest("INVALID_WINDOW", "hours must be an integer between 1 and 168")
	}
	return time.Duration(hours) * time.Hour, nil
}
