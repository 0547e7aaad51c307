package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// PersistentKeyStore implements KeyStore over PostgreSQL. Active keys are
// loaded and compared against the presented plaintext with bcrypt in memory;
// acceptable for the small caller population of a management API.
type PersistentKeyStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPersistentKeyStore creates a PostgreSQL-backed key store.
func NewPersistentKeyStore(conn *Connection, logger *slog.Logger) (*PersistentKeyStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !conn.Healthy(ctx) {
		return nil, fmt.Errorf("%w: key store database unreachable", ErrStoreFailed)
	}

	return &PersistentKeyStore{conn: conn, logger: logger}, nil
}

// Close closes the underlying connection pool. Safe to call multiple times.
func (s *PersistentKeyStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}

	return nil
}

// Add stores a new API key record. The Hash field must already hold the
// bcrypt hash; plaintext keys are never persisted.
func (s *PersistentKeyStore) Add(ctx context.Context, key *APIKey) error {
	if key == nil {
		return ErrKeyNil
	}

	query := `
		INSERT INTO api_keys (id, key_hash, caller_id, name, created_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.conn.ExecContext(ctx, query,
		key.ID,
		key.Hash,
		key.CallerID,
		key.Name,
		key.CreatedAt,
		nullableTime(key.ExpiresAt),
		key.Active,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	return nil
}

// Deactivate marks a key inactive without deleting its audit trail.
func (s *PersistentKeyStore) Deactivate(ctx context.Context, keyID string) error {
	result, err := s.conn.ExecContext(ctx, `UPDATE api_keys SET active = FALSE WHERE id = $1`, keyID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	if affected == 0 {
		return ErrKeyNotFound
	}

	return nil
}

// FindByKey returns the usable key record matching the plaintext key.
// The auth middleware calls this per request; the query is bounded to active
// keys and the lookup budget is enforced by a short timeout.
func (s *PersistentKeyStore) FindByKey(key string) (*APIKey, bool) {
	if key == "" {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
		SELECT id, key_hash, caller_id, name, created_at, expires_at, active
		FROM api_keys
		WHERE active = TRUE
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		s.logger.Error("API key lookup failed", slog.String("error", err.Error()))

		return nil, false
	}

	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var (
			candidate APIKey
			expiresAt *time.Time
		)

		if err := rows.Scan(
			&candidate.ID,
			&candidate.Hash,
			&candidate.CallerID,
			&candidate.Name,
			&candidate.CreatedAt,
			&expiresAt,
			&candidate.Active,
		); err != nil {
			continue
		}

		candidate.ExpiresAt = expiresAt

		if !candidate.Usable() {
			continue
		}

		if CompareAPIKeyHash(candidate.Hash, key) {
			return &candidate, true
		}
	}

	if err := rows.Err(); err != nil {
		s.logger.Error("API key iteration failed", slog.String("error", err.Error()))

		return nil, false
	}

	return nil, false
}
