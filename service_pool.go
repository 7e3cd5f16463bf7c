package grantkit

import (
	"time"

	"github.com/fernandezvara/dbkit"
)

// PoolConfig holds connection pool settings for BunStore.
type PoolConfig struct {
	MaxOpenConnections    int           `json:"max_open_connections"`
	MaxIdleConnections    int           `json:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `json:"connection_max_lifetime"`
	ConnectionMaxIdleTime time.Duration `json:"connection_max_idle_time"`
}

// DefaultPoolConfig returns pool settings suited to a single grantd instance.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConnections:    25,
		MaxIdleConnections:    5,
		ConnectionMaxLifetime: 30 * time.Minute,
		ConnectionMaxIdleTime: 5 * time.Minute,
	}
}

// ConfigurePool updates the database connection pool settings.
// Zero fields keep their DefaultPoolConfig value.
func (s *BunStore) ConfigurePool(cfg PoolConfig) error {
	db, ok := s.db.(*dbkit.DBKit)
	if !ok {
		return NewError(ErrStorageUnavailable, "connection pool configuration requires a dbkit.DBKit instance")
	}
	bunDB := db.Bun()
	if bunDB == nil {
		return NewError(ErrStorageUnavailable, "database instance not available")
	}

	def := DefaultPoolConfig()
	if cfg.MaxOpenConnections <= 0 {
		cfg.MaxOpenConnections = def.MaxOpenConnections
	}
	if cfg.MaxIdleConnections <= 0 {
		cfg.MaxIdleConnections = def.MaxIdleConnections
	}
	if cfg.ConnectionMaxLifetime <= 0 {
		cfg.ConnectionMaxLifetime = def.ConnectionMaxLifetime
	}
	if cfg.ConnectionMaxIdleTime <= 0 {
		cfg.ConnectionMaxIdleTime = def.ConnectionMaxIdleTime
	}

	bunDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	bunDB.SetMaxIdleConns(cfg.MaxIdleConnections)
	bunDB.SetConnMaxLifetime(cfg.ConnectionMaxLifetime)
	bunDB.SetConnMaxIdleTime(cfg.ConnectionMaxIdleTime)
	return nil
}

// PoolStats returns connection pool statistics, or zero values when the
// store wraps a transaction.
func (s *BunStore) PoolStats() dbkit.PoolStats {
	if db, ok := s.db.(*dbkit.DBKit); ok {
		return dbkit.PoolStatsFromSQL(db.Stats())
	}
	return dbkit.PoolStats{}
}
