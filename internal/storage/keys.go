package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	keyRandomBytes = 32
	keyPrefix      = "ruleiq_ak_"

	// bcryptCost 10 is ~60ms per hash; acceptable for the low-volume
	// dashboard/management callers this API serves.
	bcryptCost  = 10
	bcryptLimit = 72
)

// Sentinel errors for API key operations.
var (
	// ErrKeyNil is returned when a nil API key is provided.
	ErrKeyNil = errors.New("API key cannot be nil")
	// ErrKeyNotFound is returned when operating on a non-existent key.
	ErrKeyNotFound = errors.New("API key not found")
	// ErrKeyExists is returned when adding a key that already exists.
	ErrKeyExists = errors.New("API key already exists")
	// ErrCallerIDEmpty is returned when the caller ID is empty during generation.
	ErrCallerIDEmpty = errors.New("caller ID cannot be empty")
)

type (
	// APIKey identifies a caller of the management API (dashboard, rule
	// editor). Only the bcrypt hash of the key is stored.
	APIKey struct {
		ID        string
		Hash      string
		CallerID  string
		Name      string
		CreatedAt time.Time
		ExpiresAt *time.Time
		Active    bool
	}

	// KeyStore is the lookup boundary used by the auth middleware.
	KeyStore interface {
		// FindByKey returns the key record matching the plaintext key,
		// comparing against stored hashes.
		FindByKey(key string) (*APIKey, bool)
	}

	// InMemoryKeyStore provides thread-safe in-memory API key storage.
	InMemoryKeyStore struct {
		keysByID map[string]*APIKey
		mutex    sync.RWMutex
	}
)

// Usable reports whether the key is active and unexpired.
func (k *APIKey) Usable() bool {
	if !k.Active {
		return false
	}

	if k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt) {
		return false
	}

	return true
}

// GenerateAPIKey creates a new plaintext API key for a caller. The caller
// receives the plaintext once; only HashAPIKey output is persisted.
func GenerateAPIKey(callerID string) (string, error) {
	if callerID == "" {
		return "", ErrCallerIDEmpty
	}

	randomBytes := make([]byte, keyRandomBytes)

	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return keyPrefix + hex.EncodeToString(randomBytes), nil
}

// HashAPIKey generates a bcrypt hash of the API key for storage.
// Bcrypt has a 72-byte input limit; longer keys are pre-hashed with SHA-256.
func HashAPIKey(apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrKeyNil
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(apiKey), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}

	return string(hash), nil
}

// CompareAPIKeyHash performs constant-time comparison of an API key against a
// stored bcrypt hash. Returns false for any error condition.
func CompareAPIKeyHash(hash, apiKey string) bool {
	if hash == "" || apiKey == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(apiKey)) == nil
}

// ParseAPIKey extracts the API key from an Authorization header value.
func ParseAPIKey(headerValue string) (string, error) {
	headerValue = strings.TrimPrefix(strings.TrimSpace(headerValue), "Bearer ")

	if headerValue == "" {
		return "", ErrKeyNil
	}

	if !strings.HasPrefix(headerValue, keyPrefix) {
		return "", fmt.Errorf("invalid API key format: expected %q prefix", keyPrefix)
	}

	return headerValue, nil
}

func bcryptInput(apiKey string) []byte {
	if len(apiKey) <= bcryptLimit {
		return []byte(apiKey)
	}

	sum := sha256.Sum256([]byte(apiKey))

	return sum[:]
}

// NewInMemoryKeyStore creates an empty thread-safe key store.
func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{
		keysByID: make(map[string]*APIKey),
	}
}

// Add stores a new API key record.
func (s *InMemoryKeyStore) Add(key *APIKey) error {
	if key == nil {
		return ErrKeyNil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.keysByID[key.ID]; exists {
		return ErrKeyExists
	}

	keyCopy := *key
	s.keysByID[keyCopy.ID] = &keyCopy

	return nil
}

// Delete removes an API key record.
func (s *InMemoryKeyStore) Delete(keyID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.keysByID[keyID]; !exists {
		return ErrKeyNotFound
	}

	delete(s.keysByID, keyID)

	return nil
}

// FindByKey returns the usable key record matching the plaintext key.
// Hashes are compared in memory; acceptable for the small caller population
// of a management API.
func (s *InMemoryKeyStore) FindByKey(key string) (*APIKey, bool) {
	if key == "" {
		return nil, false
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, candidate := range s.keysByID {
		if !candidate.Usable() {
			continue
		}

		if CompareAPIKeyHash(candidate.Hash, key) {
			keyCopy := *candidate

			return &keyCopy, true
		}
	}

	return nil, false
}
