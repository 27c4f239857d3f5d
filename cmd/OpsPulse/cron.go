package main

import (
	"context"
	"fmt"

	"OpsPulse/internal/biz"
	"OpsPulse/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// StartMonitorCron schedules the recurring health check and incident
// detection cycles. The first health check runs immediately so the status
// map is populated before the first interval elapses.
func StartMonitorCron(
	monitor *biz.HealthMonitorUsecase,
	detector *biz.IncidentDetectorUsecase,
	mc *conf.Monitor,
	dc *conf.Detector,
	logger log.Logger,
) *cron.Cron {
	helper := log.NewHelper(logger)

	monitorInterval := mc.Interval.AsDuration()
	detectorInterval := dc.Interval.AsDuration()

	c := cron.New(cron.WithSeconds())

	checkAll := func() {
		ctx, cancel := context.WithTimeout(context.Background(), monitorInterval)
		defer cancel()
		monitor.CheckAll(ctx)
	}
	_, err := c.AddFunc(fmt.Sprintf("@every %s", monitorInterval), checkAll)
	if err != nil {
		helper.Errorw("msg", "failed to register health check job", "error", err)
		return nil
	}

	_, err = c.AddFunc(fmt.Sprintf("@every %s", detectorInterval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), detectorInterval)
		defer cancel()
		if err := detector.DetectOnce(ctx); err != nil {
			helper.Warnw("msg", "detection cycle failed", "error", err)
		}
	})
	if err != nil {
		helper.Errorw("msg", "failed to register incident detection job", "error", err)
		return nil
	}

	c.Start()
	go checkAll()

	helper.Infow(
		"msg", "monitoring schedules started",
		"health_interval", monitorInterval.String(),
		"detection_interval", detectorInterval.String(),
	)
	return c
}
