package grantkit

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// HealthMonitor is implemented by stores that can report on their backend.
type HealthMonitor interface {
	Health(ctx context.Context) dbkit.HealthStatus
	Ping(ctx context.Context) error
}

// Health reports the store's health. Stores without a backend to check are
// always healthy.
func (s *Service) Health(ctx context.Context) dbkit.HealthStatus {
	if hm, ok := s.store.(HealthMonitor); ok {
		return hm.Health(ctx)
	}
	return dbkit.HealthStatus{Healthy: true}
}

// IsHealthy combines store health with transaction failure rates.
func (s *Service) IsHealthy(ctx context.Context) bool {
	return s.Health(ctx).Healthy && s.IsTransactionHealthy()
}

// Health performs a comprehensive health check of the database connection,
// including latency and pool statistics.
func (s *BunStore) Health(ctx context.Context) dbkit.HealthStatus {
	if db, ok := s.db.(*dbkit.DBKit); ok {
		return db.Health(ctx)
	}
	err := s.Ping(ctx)
	status := dbkit.HealthStatus{Healthy: err == nil}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// Ping performs a basic connectivity test to the database.
func (s *BunStore) Ping(ctx context.Context) error {
	var result int
	err := s.db.NewSelect().ColumnExpr("1").Scan(ctx, &result)
	return storageError("Ping", dbkit.WithErr1(err, "Ping").Err())
}
