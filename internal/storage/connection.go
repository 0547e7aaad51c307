package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Connection wraps a pooled database handle configured from Config.
// Stores share one Connection; Close is safe to call once at shutdown.
type Connection struct {
	DB     *sql.DB
	config *Config
}

// NewConnection opens a pooled PostgreSQL connection and verifies it with a
// bounded ping. The lib/pq driver must be registered by the importing binary.
func NewConnection(cfg *Config) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage configuration: %w", err)
	}

	db, err := sql.Open("postgres", cfg.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Connection{DB: db, config: cfg}, nil
}

// NewConnectionFromDB wraps an existing database handle. Used by integration
// tests that manage their own container lifecycle.
func NewConnectionFromDB(db *sql.DB) *Connection {
	return &Connection{DB: db}
}

// QueryContext executes a query that returns rows.
func (c *Connection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.DB.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query expected to return at most one row.
func (c *Connection) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.DB.QueryRowContext(ctx, query, args...)
}

// ExecContext executes a statement without returning rows.
func (c *Connection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.DB.ExecContext(ctx, query, args...)
}

// Healthy reports whether the underlying connection still answers pings.
func (c *Connection) Healthy(ctx context.Context) bool {
	timeout := defaultPingTimeout
	if c.config != nil && c.config.PingTimeout > 0 {
		timeout = c.config.PingTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return c.DB.PingContext(ctx) == nil
}

// Close closes the database connection pool gracefully.
func (c *Connection) Close() error {
	if c.DB == nil {
		return nil
	}

	return c.DB.Close()
}

// nullableTime converts an optional time for storage (NULL when nil).
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}

	return *t
}
