package adaptcache

import (
	"sync"
	"time"
)

// minSweepInterval keeps very short TTLs from turning the sweeper into a busy loop.
const minSweepInterval = 10 * time.Millisecond

// sweeper calls run on every tick until stopped. Stopping waits for an
// in-flight run to finish instead of interrupting it.
type sweeper struct {
	ticker *time.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

func startSweeper(interval time.Duration, run func()) *sweeper {
	s := &sweeper{
		ticker: time.NewTicker(interval),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go s.loop(run)
	return s
}

func (s *sweeper) loop(run func()) {
	defer close(s.doneCh)
	for {
		select {
		case <-s.ticker.C:
			run()
		case <-s.stopCh:
			return
		}
	}
}

func (s *sweeper) stop() {
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.stopCh)
	})
}

func (s *sweeper) done() <-chan struct{} { return s.doneCh }

func sweepInterval(configured, ttl time.Duration) time.Duration {
	if configured <= 0 {
		configured = ttl / 10
	}
	return max(configured, minSweepInterval)
}
