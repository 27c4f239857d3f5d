// Package main is the entry point of the OpsPulse gateway.
// It initializes the Kratos application with the HTTP server, the
// WebSocket broadcast hub and the background monitoring schedules.
package main

import (
	"context"
	"flag"
	"os"

	"OpsPulse/internal/biz"
	"OpsPulse/internal/conf"
	"OpsPulse/internal/server"
	zapLogger "OpsPulse/pkg/log"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "OpsPulse"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func newApp(
	logger log.Logger,
	hs *http.Server,
	hub *server.BroadcastHub,
	monitor *biz.HealthMonitorUsecase,
	detector *biz.IncidentDetectorUsecase,
	mc *conf.Monitor,
	dc *conf.Detector,
) *kratos.App {
	helper := log.NewHelper(logger)

	// Background work outlives individual requests and is cancelled on
	// shutdown.
	bgCtx, cancel := context.WithCancel(context.Background())
	if err := hub.Start(bgCtx); err != nil {
		helper.Warnw("msg", "broadcast hub could not attach to relay", "error", err)
	}
	sched := StartMonitorCron(monitor, detector, mc, dc, logger)

	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			hs,
		),
		kratos.BeforeStop(func(context.Context) error {
			cancel()
			if sched != nil {
				sched.Stop()
			}
			return nil
		}),
	)
}

func main() {
	flag.Parse()

	// Load configuration using Viper with environment variable support
	bc, err := conf.NewBootstrap(flagconf)
	if err != nil {
		// Use fallback logger before Zap is initialized
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize Zap logger from configuration
	zapLog, err := zapLogger.NewZapLogger(bc.Log)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer zapLog.Sync()

	// Create Kratos adapter for Zap logger
	logger := zapLogger.NewKratosAdapter(zapLog)

	logger = log.With(logger,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
	)

	log.NewHelper(logger).Infow(
		"msg", "OpsPulse gateway starting",
		"log.level", bc.Log.Level,
		"log.format", bc.Log.Format,
		"log.env", bc.Log.Env,
		"monitored_services", len(bc.Gateway.Services),
	)

	app, cleanup, err := wireApp(bc.Server, bc.Data, bc.Gateway, bc.Monitor, bc.Detector, bc.Broadcast, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
