// Package checkpoint persists the injector's running totals so that counts
// keep growing across restarts.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

var (
	keyInserted   = []byte("inserted")
	keyFailed     = []byte("failed")
	keyReconnects = []byte("reconnects")
)

type Totals struct {
	Inserted   uint64 `json:"inserted"`
	Failed     uint64 `json:"failed"`
	Reconnects uint64 `json:"reconnects"`
}

// Store reads and writes Totals through a raft.StableStore.
type Store struct {
	mu     sync.Mutex
	stable raft.StableStore
	closer func() error
}

// New wraps an existing stable store. The caller keeps ownership of it.
func New(stable raft.StableStore) *Store {
	return &Store{stable: stable}
}

// NewMemory keeps totals for the lifetime of the process only.
func NewMemory() *Store {
	return New(raft.NewInmemStore())
}

// Open stores totals in a bolt file at path, creating parent directories.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	bolt, err := raftboltdb.NewBoltStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	return &Store{stable: bolt, closer: bolt.Close}, nil
}

func (s *Store) Load() (Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t Totals
	var err error
	if t.Inserted, err = s.get(keyInserted); err != nil {
		return Totals{}, err
	}
	if t.Failed, err = s.get(keyFailed); err != nil {
		return Totals{}, err
	}
	if t.Reconnects, err = s.get(keyReconnects); err != nil {
		return Totals{}, err
	}
	return t, nil
}

func (s *Store) Save(t Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, kv := range []struct {
		key []byte
		val uint64
	}{
		{keyInserted, t.Inserted},
		{keyFailed, t.Failed},
		{keyReconnects, t.Reconnects},
	} {
		if err := s.stable.SetUint64(kv.key, kv.val); err != nil {
			return fmt.Errorf("failed to save %s: %w", kv.key, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

// get treats a missing key as zero. BoltStore reports missing keys as
// ErrKeyNotFound; InmemStore returns zero without an error.
func (s *Store) get(key []byte) (uint64, error) {
	v, err := s.stable.GetUint64(key)
	if err != nil {
		if errors.Is(err, raftboltdb.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return v, nil
}
