package genstore

import (
	"context"
	"sync"
	"time"
)

type localGen struct {
	gen       uint64
	updatedAt time.Time
}

// Local keeps tag generations in-process.
// Optional cleanup loop prunes tags not bumped within the retention window.
type Local struct {
	mu   sync.RWMutex
	gens map[string]localGen
	now  func() time.Time

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

var _ GenStore = (*Local)(nil)

// NewLocal returns a Local store. When cleanupInterval and retention are both
// positive a background goroutine prunes stale tags until Close.
func NewLocal(cleanupInterval, retention time.Duration) *Local {
	s := &Local{gens: make(map[string]localGen), now: time.Now}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

// WithClock replaces the time source used for retention bookkeeping.
func (s *Local) WithClock(now func() time.Time) *Local {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

func (s *Local) Snapshot(_ context.Context, tag string) (uint64, error) {
	s.mu.RLock()
	e := s.gens[tag]
	s.mu.RUnlock()
	return e.gen, nil
}

// SnapshotMany reads all requested tags under one read lock.
func (s *Local) SnapshotMany(_ context.Context, tags []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(tags))
	s.mu.RLock()
	for _, t := range tags {
		out[t] = s.gens[t].gen
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Local) Bump(_ context.Context, tag string) (uint64, error) {
	s.mu.Lock()
	e := s.gens[tag]
	e.gen++
	e.updatedAt = s.now()
	s.gens[tag] = e
	s.mu.Unlock()
	return e.gen, nil
}

// Cleanup forgets tags not bumped within retention. A forgotten tag reads as
// generation 0 again, so retention must exceed the longest spilled TTL.
func (s *Local) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	s.mu.Lock()
	cutoff := s.now().Add(-retention)
	for t, e := range s.gens {
		if e.updatedAt.Before(cutoff) {
			delete(s.gens, t)
		}
	}
	s.mu.Unlock()
}

func (s *Local) Close(_ context.Context) error {
	s.once.Do(func() {
		if s.stopCh != nil {
			s.ticker.Stop()
			close(s.stopCh)
			s.wg.Wait()
		}
	})
	return nil
}
