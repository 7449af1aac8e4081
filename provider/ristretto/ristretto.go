// Package ristretto keeps spilled frames in a second, larger in-process cache
// with TinyLFU admission, so only frames that are requested again stay
// resident.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/adaptcache/provider"
)

const (
	defaultBufferItems = 64
	// assumed mean frame size when sizing the admission counters
	frameSizeHint = 256
)

var ErrInvalidConfig = errors.New("ristretto: MaxCost must be positive")

// Store holds frames keyed by their spill key. Costs are frame lengths.
type Store struct {
	c       *rc.Cache
	maxCost int64
}

var _ pr.Provider = (*Store)(nil)

// Config sizes the store. Only MaxCost is required: NumCounters defaults to
// ten counters per expected frame and BufferItems to 64.
type Config struct {
	MaxCost     int64 // total bytes of frames kept
	NumCounters int64
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Store, error) {
	if cfg.MaxCost <= 0 || cfg.NumCounters < 0 || cfg.BufferItems < 0 {
		return nil, ErrInvalidConfig
	}
	if cfg.NumCounters == 0 {
		cfg.NumCounters = max(10*cfg.MaxCost/frameSizeHint, 100)
	}
	if cfg.BufferItems == 0 {
		cfg.BufferItems = defaultBufferItems
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Store{c: c, maxCost: cfg.MaxCost}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// not a frame; nothing else writes here, so drop it
		s.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set stores a frame and waits for the write buffer to drain so the frame is
// visible to the next Get. A cost of zero or less is replaced by the frame
// length. Frames larger than the whole store are refused without touching it;
// smaller ones may still lose admission.
func (s *Store) Set(_ context.Context, key string, frame []byte, cost int64, ttl time.Duration) (bool, error) {
	if cost <= 0 {
		cost = int64(len(frame))
	}
	if cost > s.maxCost {
		return false, nil
	}
	if ttl < 0 {
		ttl = 0
	}
	ok := s.c.SetWithTTL(key, frame, cost, ttl)
	s.c.Wait()
	return ok, nil
}

func (s *Store) Del(_ context.Context, key string) error {
	s.c.Del(key)
	return nil
}

func (s *Store) Close(_ context.Context) error {
	s.c.Wait()
	s.c.Close()
	return nil
}

// Metrics returns hit and admission counters for the frame store, or nil
// unless Config.Metrics was set.
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }
