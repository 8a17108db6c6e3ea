// Package health provides dependency checkers for the /ready endpoint.
// Each checker answers one question: can the API currently serve traffic
// that needs this backend.
package health

import (
	"context"
	"database/sql"
)

// DBChecker reports whether the events database is reachable.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a new database health checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{
		db: db,
	}
}

// HealthCheck pings the database within the request's deadline.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
