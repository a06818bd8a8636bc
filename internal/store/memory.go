package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"
)

type entry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (e entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// MemoryStore keeps attributes in a map. With a path it becomes the "file"
// store: the map is reloaded and persisted as JSON around every operation,
// under an exclusive flock so several processes can share the file.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	path    string
	now     func() time.Time
}

// NewMemory creates an in-process store
func NewMemory() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// NewFile creates a store persisted to path
func NewFile(path string) (*MemoryStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file store requires a path")
	}

	s := NewMemory()
	s.path = path

	// Load existing entries if file exists
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}

	return s, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.sync(false, func() error {
		e, ok := s.entries[key]
		if !ok || e.expired(s.now()) {
			return ErrNotFound
		}
		value = append([]byte(nil), e.Value...)
		return nil
	})
	return value, err
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.sync(true, func() error {
		s.entries[key] = entry{
			Value:     append([]byte(nil), value...),
			ExpiresAt: expiry(s.now(), ttl),
		}
		return nil
	})
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	return s.sync(true, func() error {
		delete(s.entries, key)
		return nil
	})
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	_, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *MemoryStore) Close() error {
	return nil
}

// Purge drops expired entries and returns how many were removed
func (s *MemoryStore) Purge(ctx context.Context) (int64, error) {
	var n int64
	err := s.sync(true, func() error {
		now := s.now()
		for k, e := range s.entries {
			if e.expired(now) {
				delete(s.entries, k)
				n++
			}
		}
		return nil
	})
	return n, err
}

// Len returns the number of live entries
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	now := s.now()
	for _, e := range s.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// sync runs op under the store mutex. File-backed stores also take the file
// lock, reload the file first and persist it afterwards when write is set.
func (s *MemoryStore) sync(write bool, op func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return op()
	}

	unlock, err := lockFile(s.path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.loadLocked(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load store: %w", err)
	}
	if err := op(); err != nil {
		return err
	}
	if !write {
		return nil
	}
	return s.persist()
}

func (s *MemoryStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadLocked()
}

func (s *MemoryStore) loadLocked() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	entries := make(map[string]entry)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return err
		}
	}
	s.entries = entries
	return nil
}

func (s *MemoryStore) persist() error {
	now := s.now()
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
		}
	}

	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entries: %w", err)
	}

	return os.WriteFile(s.path, data, 0644)
}

// lockFile takes an exclusive advisory lock on path and returns its release
func lockFile(path string) (func(), error) {
	fd, err := syscall.Open(path, syscall.O_CREAT|syscall.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := syscall.Flock(fd, syscall.LOCK_EX); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	return func() {
		syscall.Flock(fd, syscall.LOCK_UN)
		syscall.Close(fd)
	}, nil
}
