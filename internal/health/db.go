// Package health provides readiness checks for the matcher's external dependencies.
package health

import (
	"context"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// DBChecker implements health checking for the results database.
type DBChecker struct {
	db Pinger
}

// NewDBChecker creates a new database health checker.
func NewDBChecker(db Pinger) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
