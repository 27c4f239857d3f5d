// Package biz contains the business logic layer: the circuit breaker state
// machine, the health monitor, the incident detector and the interfaces they
// consume from the data layer.
package biz

import (
	"OpsPulse/internal/conf"
	"OpsPulse/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewServiceRegistry,
	NewGatewayBreakers,
	NewHealthMonitorUsecase,
	NewIncidentDetectorUsecase,
	// Import data layer providers
	data.NewLogStoreRepo,
	data.NewRedisRelay,
	data.NewHTTPProber,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(LogStore), new(*data.LogStoreRepo)),
	wire.Bind(new(Relay), new(*data.RedisRelay)),
	wire.Bind(new(Prober), new(*data.HTTPProber)),
)

// NewGatewayBreakers builds the per-service breaker group from the registry
// and the configured cooldown.
func NewGatewayBreakers(registry *ServiceRegistry, c *conf.Gateway) *BreakerGroup {
	return NewBreakerGroup(registry.Services(), c.BreakerCooldown.AsDuration())
}
