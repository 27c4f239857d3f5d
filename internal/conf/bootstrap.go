// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// Bootstrap is the root configuration.
type Bootstrap struct {
	Server    *Server
	Data      *Data
	Gateway   *Gateway
	Monitor   *Monitor
	Detector  *Detector
	Broadcast *Broadcast
	Log       *Log
}

// Server holds transport configuration.
type Server struct {
	Http *Server_HTTP
}

// Server_HTTP configures the HTTP listener.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds data-source configuration.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

// Data_Database configures the log store connection.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis configures the pub/sub broker connection.
type Data_Redis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Gateway configures the request router and its circuit breakers.
type Gateway struct {
	// Services is the static routing table, built once at startup.
	Services []*GatewayService
	// BreakerCooldown is how long an open circuit stays open before a
	// half-open trial is allowed.
	BreakerCooldown *durationpb.Duration
}

// GatewayService describes one routable upstream.
type GatewayService struct {
	Name             string        `mapstructure:"name"`
	BaseUrl          string        `mapstructure:"base_url"`
	HealthPath       string        `mapstructure:"health_path"`
	RoutePrefix      string        `mapstructure:"route_prefix"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Retries          int           `mapstructure:"retries"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
}

// Monitor configures the health polling loop.
type Monitor struct {
	Interval     *durationpb.Duration
	ProbeTimeout *durationpb.Duration
}

// Detector configures the incident detection loop.
type Detector struct {
	Interval *durationpb.Duration
	// Overlap is re-scanned behind the checkpoint each cycle; incident id
	// dedup makes the re-read safe.
	Overlap   *durationpb.Duration
	BatchSize int
	DedupSize int
}

// Broadcast configures WebSocket fan-out behavior.
type Broadcast struct {
	SendTimeout     *durationpb.Duration
	SendQueueSize   int
	MaxSendFailures int
}

// Log configures the zap logger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies
// defaults, and allows overrides from environment variables prefixed with
// OPSPULSE_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	// Enable environment variable support with OPSPULSE_ prefix
	v.SetEnvPrefix("OPSPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names for required fields
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "OPSPULSE_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", "OPSPULSE_DATA_REDIS_ADDR")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	var services []*GatewayService
	if err := v.UnmarshalKey("gateway.services", &services); err != nil {
		return nil, fmt.Errorf("failed to parse gateway.services: %w", err)
	}
	for _, svc := range services {
		if svc.Timeout <= 0 {
			svc.Timeout = v.GetDuration("gateway.default_timeout")
		}
		if svc.BreakerThreshold <= 0 {
			svc.BreakerThreshold = v.GetInt("gateway.default_breaker_threshold")
		}
		if svc.HealthPath == "" {
			svc.HealthPath = "/health"
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Gateway: &Gateway{
			Services:        services,
			BreakerCooldown: durationpb.New(v.GetDuration("gateway.breaker_cooldown")),
		},
		Monitor: &Monitor{
			Interval:     durationpb.New(v.GetDuration("monitor.interval")),
			ProbeTimeout: durationpb.New(v.GetDuration("monitor.probe_timeout")),
		},
		Detector: &Detector{
			Interval:  durationpb.New(v.GetDuration("detector.interval")),
			Overlap:   durationpb.New(v.GetDuration("detector.overlap")),
			BatchSize: v.GetInt("detector.batch_size"),
			DedupSize: v.GetInt("detector.dedup_size"),
		},
		Broadcast: &Broadcast{
			SendTimeout:     durationpb.New(v.GetDuration("broadcast.send_timeout")),
			SendQueueSize:   v.GetInt("broadcast.send_queue_size"),
			MaxSendFailures: v.GetInt("broadcast.max_send_failures"),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8000")
	v.SetDefault("server.http.timeout", 60*time.Second)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is required from environment

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Gateway defaults
	v.SetDefault("gateway.breaker_cooldown", 60*time.Second)
	v.SetDefault("gateway.default_timeout", 30*time.Second)
	v.SetDefault("gateway.default_breaker_threshold", 5)

	// Monitor defaults
	v.SetDefault("monitor.interval", 30*time.Second)
	v.SetDefault("monitor.probe_timeout", 10*time.Second)

	// Detector defaults
	v.SetDefault("detector.interval", 30*time.Second)
	v.SetDefault("detector.overlap", 5*time.Second)
	v.SetDefault("detector.batch_size", 500)
	v.SetDefault("detector.dedup_size", 4096)

	// Broadcast defaults
	v.SetDefault("broadcast.send_timeout", 5*time.Second)
	v.SetDefault("broadcast.send_queue_size", 32)
	v.SetDefault("broadcast.max_send_failures", 3)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing required fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
		missingFields = append(missingFields, "data.database.source (MYSQL_DSN)")
	}

	if bc.Gateway == nil || len(bc.Gateway.Services) == 0 {
		missingFields = append(missingFields, "gateway.services (at least one upstream)")
	} else {
		for i, svc := range bc.Gateway.Services {
			if svc.Name == "" || svc.BaseUrl == "" || svc.RoutePrefix == "" {
				missingFields = append(missingFields,
					fmt.Sprintf("gateway.services[%d] (name, base_url and route_prefix are required)", i))
			}
		}
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	return nil
}
