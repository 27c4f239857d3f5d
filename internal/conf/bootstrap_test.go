package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validConfig = `
server:
  http:
    addr: 0.0.0.0:9100
    timeout: 45s

data:
  database:
    source: root:pw@tcp(localhost:3306)/opspulse

gateway:
  breaker_cooldown: 90s
  services:
    - name: file-service
      base_url: http://localhost:8001
      route_prefix: /files
      timeout: 20s
      breaker_threshold: 4
    - name: analytics-service
      base_url: http://localhost:8002
      route_prefix: /analytics

monitor:
  interval: 15s

log:
  level: debug
`

func TestNewBootstrap_LoadsFileAndDefaults(t *testing.T) {
	bc, err := NewBootstrap(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9100", bc.Server.Http.Addr)
	assert.Equal(t, 45*time.Second, bc.Server.Http.Timeout.AsDuration())

	assert.Equal(t, 90*time.Second, bc.Gateway.BreakerCooldown.AsDuration())
	require.Len(t, bc.Gateway.Services, 2)

	file := bc.Gateway.Services[0]
	assert.Equal(t, "file-service", file.Name)
	assert.Equal(t, 20*time.Second, file.Timeout)
	assert.Equal(t, 4, file.BreakerThreshold)
	assert.Equal(t, "/health", file.HealthPath)

	// The second service picks up the gateway-level defaults.
	analytics := bc.Gateway.Services[1]
	assert.Equal(t, 30*time.Second, analytics.Timeout)
	assert.Equal(t, 5, analytics.BreakerThreshold)

	// Unset sections fall back entirely to defaults.
	assert.Equal(t, 15*time.Second, bc.Monitor.Interval.AsDuration())
	assert.Equal(t, 10*time.Second, bc.Monitor.ProbeTimeout.AsDuration())
	assert.Equal(t, 30*time.Second, bc.Detector.Interval.AsDuration())
	assert.Equal(t, 5*time.Second, bc.Detector.Overlap.AsDuration())
	assert.Equal(t, 500, bc.Detector.BatchSize)
	assert.Equal(t, 32, bc.Broadcast.SendQueueSize)
	assert.Equal(t, "debug", bc.Log.Level)
	assert.Equal(t, "json", bc.Log.Format)
}

func TestNewBootstrap_MissingDatabaseSource(t *testing.T) {
	const noSource = `
gateway:
  services:
    - name: file-service
      base_url: http://localhost:8001
      route_prefix: /files
`
	_, err := NewBootstrap(writeConfig(t, noSource))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data.database.source")
}

func TestNewBootstrap_RequiresAtLeastOneService(t *testing.T) {
	const noServices = `
data:
  database:
    source: root:pw@tcp(localhost:3306)/opspulse
`
	_, err := NewBootstrap(writeConfig(t, noServices))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway.services")
}

func TestNewBootstrap_IncompleteServiceRejected(t *testing.T) {
	const missingPrefix = `
data:
  database:
    source: root:pw@tcp(localhost:3306)/opspulse

gateway:
  services:
    - name: file-service
      base_url: http://localhost:8001
`
	_, err := NewBootstrap(writeConfig(t, missingPrefix))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "route_prefix")
}

func TestNewBootstrap_EnvOverridesFile(t *testing.T) {
	t.Setenv("OPSPULSE_LOG_LEVEL", "warn")

	bc, err := NewBootstrap(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, "warn", bc.Log.Level)
}

func TestNewBootstrap_MysqlDsnEnvAlias(t *testing.T) {
	const noSource = `
gateway:
  services:
    - name: file-service
      base_url: http://localhost:8001
      route_prefix: /files
`
	t.Setenv("MYSQL_DSN", "root:pw@tcp(db:3306)/opspulse")

	bc, err := NewBootstrap(writeConfig(t, noSource))
	require.NoError(t, err)
	assert.Equal(t, "root:pw@tcp(db:3306)/opspulse", bc.Data.Database.Source)
}

func TestValidate_CollectsAllMissingFields(t *testing.T) {
	err := Validate(&Bootstrap{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data.database.source")
	assert.Contains(t, err.Error(), "gateway.services")
}
