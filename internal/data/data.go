// Package data provides data access layer implementations: the MySQL log
// store, the Redis pub/sub relay and the HTTP health prober.
package data

import (
	"OpsPulse/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRedisClient,
	NewMySQLClient,
)

// Data contains all data layer dependencies.
type Data struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewData creates a new Data instance with all data layer dependencies.
// Redis connection failure does not prevent application startup (graceful
// degradation: publishing becomes a no-op that callers log and tolerate).
func NewData(_ *conf.Data, logger log.Logger, db *gorm.DB, rdb *redis.Client) (*Data, func(), error) {
	helper := log.NewHelper(logger)

	if rdb == nil {
		helper.Warn("Redis client is nil, pub/sub relay will be unavailable")
	}

	d := &Data{
		db:  db,
		rdb: rdb,
	}

	cleanup := func() {
		helper.Info("closing the data resources")
		// MySQL and Redis cleanups are returned by their own constructors
		// and invoked by Wire.
	}

	return d, cleanup, nil
}
