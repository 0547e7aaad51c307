package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/ruleiq-io/ruleiq/migrations"
)

// Runner executes database migrations from the embedded migration set.
type Runner struct {
	migrate *migrate.Migrate
	db      *sql.DB
}

// NewRunner creates a migration runner for the given configuration.
// The embedded migration set is validated before any database work.
func NewRunner(config *Config) (*Runner, error) {
	if err := migrations.Validate(); err != nil {
		return nil, fmt.Errorf("embedded migrations are invalid: %w", err)
	}

	db, err := sql.Open("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: config.MigrationTable,
	})
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS(), ".")
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{}

	return &Runner{migrate: m, db: db}, nil
}

// Up applies all pending migrations.
func (r *Runner) Up() error {
	fmt.Println("Applying pending migrations...")

	if err := r.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Println("No pending migrations.")

			return nil
		}

		return fmt.Errorf("migration up failed: %w", err)
	}

	fmt.Println("All migrations applied successfully.")

	return nil
}

// Down rolls back the most recently applied migration.
func (r *Runner) Down() error {
	fmt.Println("Rolling back last migration...")

	if err := r.migrate.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Println("No migrations to roll back.")

			return nil
		}

		return fmt.Errorf("migration down failed: %w", err)
	}

	fmt.Println("Rollback completed successfully.")

	return nil
}

// Status shows the current migration state and any pending migrations.
func (r *Runner) Status() error {
	version, dirty, err := r.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("No migrations applied yet.")

			return nil
		}

		return fmt.Errorf("failed to get migration version: %w", err)
	}

	fmt.Printf("Current version: %d\n", version)

	if dirty {
		fmt.Println("WARNING: Database is in a dirty state. Manual intervention may be required.")
	}

	files, err := migrations.List()
	if err != nil {
		return fmt.Errorf("failed to list embedded migrations: %w", err)
	}

	fmt.Printf("Embedded migration files: %d\n", len(files))

	return nil
}

// Version prints the current migration version.
func (r *Runner) Version() error {
	version, dirty, err := r.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("No migrations applied yet.")

			return nil
		}

		return fmt.Errorf("failed to get migration version: %w", err)
	}

	fmt.Printf("Version: %d (dirty: %t)\n", version, dirty)

	return nil
}

// Drop removes all tables from the database.
func (r *Runner) Drop() error {
	fmt.Println("Dropping all tables...")

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("drop failed: %w", err)
	}

	fmt.Println("All tables dropped.")

	return nil
}

// Close releases the migrate instance and the database connection.
func (r *Runner) Close() error {
	sourceErr, dbErr := r.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("failed to close migration source: %w", sourceErr)
	}

	if dbErr != nil {
		return fmt.Errorf("failed to close migration database handle: %w", dbErr)
	}

	if err := r.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}

// migrateLogger adapts the standard logger to the migrate.Logger interface.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[MIGRATE] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return true
}
