// Package storage provides the embedded key-value store backing all
// persisted state. Each named key holds one JSON-serialized value; an
// absent key is never an error, it means "use defaults".
package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/openclinic/healthdesk/internal/shared/config"
)

// Named storage keys. One collection or object per key.
const (
	KeyPatients      = "health_patients"
	KeyAlerts        = "health_alerts"
	KeySettings      = "health_settings"
	KeyPatternConfig = "health_pattern_config"
	KeyMedicineList  = "health_medicine_list"
	KeyBackupData    = "health_backup_data"
)

// Keys lists every known storage key, in seed order.
func Keys() []string {
	return []string{
		KeyPatients,
		KeyAlerts,
		KeySettings,
		KeyPatternConfig,
		KeyMedicineList,
		KeyBackupData,
	}
}

// KV is the minimal key-value contract the record store depends on.
// Get returns (nil, nil) for an absent key.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// Store is a badger-backed KV implementation.
type Store struct {
	db *badger.DB
}

// Open opens the store at cfg.Dir, or fully in memory when cfg.InMemory
// is set.
func Open(cfg config.StorageConfig) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Dir)
	}
	// Badger's own logger writes outside the application logger; keep it quiet.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage at %q: %w", cfg.Dir, err)
	}

	return &Store{db: db}, nil
}

// OpenInMemory opens a throwaway in-memory store. Tests use this as the
// deterministic stand-in for the on-disk store.
func OpenInMemory() (*Store, error) {
	return Open(config.StorageConfig{InMemory: true})
}

// Get returns the value for key, or (nil, nil) if the key is absent.
func (s *Store) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, nil
}

// Set stores value under key.
func (s *Store) Set(key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
