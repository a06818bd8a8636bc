package store

import (
	"context"
	"errors"
	"time"

	"Sitecat/internal/metrics"
)

type instrumented struct {
	Store
	backend string
	met     *metrics.Metrics
}

// Instrument records operation counts and latencies of s under backend
func Instrument(s Store, met *metrics.Metrics, backend string) Store {
	if met == nil {
		return s
	}
	return &instrumented{Store: s, backend: backend, met: met}
}

func (s *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	value, err := s.Store.Get(ctx, key)
	s.observe("get", start, err)
	return value, err
}

func (s *instrumented) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := s.Store.Set(ctx, key, value, ttl)
	s.observe("set", start, err)
	return err
}

func (s *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.Store.Delete(ctx, key)
	s.observe("delete", start, err)
	return err
}

func (s *instrumented) Purge(ctx context.Context) (int64, error) {
	p, ok := s.Store.(Purger)
	if !ok {
		return 0, nil
	}
	start := time.Now()
	n, err := p.Purge(ctx)
	s.observe("purge", start, err)
	return n, err
}

func (s *instrumented) observe(op string, start time.Time, err error) {
	status := "success"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "miss"
	case err != nil:
		status = "error"
	}

	s.met.StoreOperations.WithLabelValues(s.backend, op, status).Inc()
	s.met.StoreDuration.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
}
