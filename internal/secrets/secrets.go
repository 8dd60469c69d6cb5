// Package secrets implements the Config/Secrets Store (C11): a process-wide
// key-value store with at-rest encryption for secret values, a read-through
// cache, and per-key locking on cold reads (§4.11).
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrSecretKeyRequired is returned when a value is marked secret but no
// SECRET_KEY was configured to encrypt it.
var ErrSecretKeyRequired = errors.New("secrets: SECRET_KEY is required to store a secret value")

// ErrDecryptFailed wraps a decryption failure on read (§7: "Config decrypt
// failure").
var ErrDecryptFailed = errors.New("secrets: failed to decrypt config value")

// WriteResult is the outcome of Add: "ok" when the row was written, "skip"
// when an environment override shadowed it (§4.11 write paths).
type WriteResult int

const (
	WriteOK WriteResult = iota
	WriteSkipped
)

// Store implements the env -> cache -> DB read path and the add/update
// write paths described in §4.11.
type Store struct {
	db        dbReader
	secretKey []byte // derived Fernet-equivalent key; nil disables encryption
	cache     *cache
}

// dbReader is the subset of *postgresStore this package's core logic needs,
// kept narrow so tests can substitute a fake without a real database.
type dbReader interface {
	latest(ctx context.Context, key string) (value string, isEncrypted bool, found bool, err error)
	insert(ctx context.Context, key, value string, isEncrypted bool, remark string) error
}

// Config configures a Store.
type Config struct {
	// SecretKey derives the AES-256-GCM key for encrypted values (SHA-256
	// of the raw string, §4.11 "Fernet using a key deterministically
	// derived from SECRET_KEY"). Required only if a caller ever passes
	// isSecret=true to Add/Update.
	SecretKey string
	// CacheTTL bounds how long a read-through cache entry is trusted
	// before the next Get re-reads the database. Default 30s.
	CacheTTL time.Duration
}

// New builds a Store backed by db. db is typically a *PostgresStore.
func New(db dbReader, cfg Config) *Store {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	var key []byte
	if cfg.SecretKey != "" {
		key = deriveKey(cfg.SecretKey)
	}
	return &Store{db: db, secretKey: key, cache: newCache(ttl)}
}

// Get implements the §4.11 read path: environment override, then cache,
// then a per-key-locked cold read from the database.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if v, ok := os.LookupEnv(key); ok {
		return v, nil
	}
	if entry, ok := s.cache.get(key); ok {
		return s.resolve(entry.value, entry.isEncrypted)
	}

	unlock := s.cache.lockKey(key)
	defer unlock()

	// Re-check the cache: another goroutine may have populated it while
	// this one waited for the per-key lock.
	if entry, ok := s.cache.get(key); ok {
		return s.resolve(entry.value, entry.isEncrypted)
	}

	value, isEncrypted, found, err := s.db.latest(ctx, key)
	if err != nil {
		if errors.Is(err, errTableMissing) {
			// Migration window: the Config table doesn't exist yet: fall
			// back to the environment, which has already been checked
			// above and came up empty, so the key is simply unset.
			return "", nil
		}
		return "", fmt.Errorf("secrets: read %q: %w", key, err)
	}
	if !found {
		return "", nil
	}

	s.cache.put(key, value, isEncrypted)
	return s.resolve(value, isEncrypted)
}

func (s *Store) resolve(value string, isEncrypted bool) (string, error) {
	if !isEncrypted {
		return value, nil
	}
	plain, err := s.decrypt(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return plain, nil
}

// Add inserts key if no environment override and no cached value already
// claim it. Per §4.11: an env override makes Add a no-op returning
// WriteSkipped; a cached value wins over the caller's new value (it
// protects concurrent writers from clobbering a value another writer just
// set) and Add returns WriteOK without touching the database in that case
// — the existing row already reflects the latest write.
func (s *Store) Add(ctx context.Context, key, value string, isSecret bool, remark string) (WriteResult, error) {
	if _, ok := os.LookupEnv(key); ok {
		return WriteSkipped, nil
	}
	if entry, ok := s.cache.get(key); ok {
		value = entry.value
		isSecret = entry.isEncrypted
	}

	stored, isEncrypted, err := s.prepareWrite(value, isSecret)
	if err != nil {
		return WriteSkipped, err
	}
	if err := s.db.insert(ctx, key, stored, isEncrypted, remark); err != nil {
		return WriteSkipped, fmt.Errorf("secrets: add %q: %w", key, err)
	}
	s.cache.put(key, stored, isEncrypted)
	return WriteOK, nil
}

// Update behaves like Add but reports success as a bool rather than a
// skip/ok enum, matching §4.11's `update(key, value, is_secret, remark) ->
// bool` signature.
func (s *Store) Update(ctx context.Context, key, value string, isSecret bool, remark string) (bool, error) {
	if _, ok := os.LookupEnv(key); ok {
		return false, nil
	}
	if entry, ok := s.cache.get(key); ok {
		value = entry.value
		isSecret = entry.isEncrypted
	}

	stored, isEncrypted, err := s.prepareWrite(value, isSecret)
	if err != nil {
		return false, err
	}
	if err := s.db.insert(ctx, key, stored, isEncrypted, remark); err != nil {
		return false, fmt.Errorf("secrets: update %q: %w", key, err)
	}
	s.cache.put(key, stored, isEncrypted)
	return true, nil
}

func (s *Store) prepareWrite(value string, isSecret bool) (stored string, isEncrypted bool, err error) {
	if !isSecret {
		return value, false, nil
	}
	if s.secretKey == nil {
		return "", false, ErrSecretKeyRequired
	}
	cipherText, err := s.encrypt(value)
	if err != nil {
		return "", false, fmt.Errorf("secrets: encrypt: %w", err)
	}
	return cipherText, true, nil
}
