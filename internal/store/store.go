package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when a key is absent or expired
var ErrNotFound = errors.New("key not found")

// Store is a key/value backend for per-session attributes
type Store interface {
	// Get returns the value stored under key
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

// Purger is implemented by stores that can drop expired entries in bulk.
// Redis expires keys itself.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

type StoreConfig struct {
	Type      string
	Path      string
	RedisAddr string
	RedisDB   int
	MaxIdle   int
}

// New creates the store selected by cfg.Type
func New(cfg StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Type {
	case "", "memory":
		st = NewMemory()
	case "file":
		st, err = NewFile(cfg.Path)
	case "redis":
		st, err = NewRedis(cfg)
	case "sqlite":
		st, err = NewSQLite(cfg.Path)
	default:
		err = fmt.Errorf("unknown store type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
