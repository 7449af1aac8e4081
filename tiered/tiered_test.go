package tiered

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/adaptcache"
	"github.com/unkn0wn-root/adaptcache/codec"
	"github.com/unkn0wn-root/adaptcache/provider"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type memProvider struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	closed bool
}

func newMemProvider() *memProvider {
	return &memProvider{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, false, p.getErr
	}
	b, ok := p.data[key]
	return b, ok, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = append([]byte(nil), value...)
	p.ttls[key] = ttl
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, key)
	delete(p.ttls, key)
	return nil
}

func (p *memProvider) Close(context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.data[key]
	return ok
}

type fixture struct {
	c     *Cache[string]
	p     *memProvider
	clock *adaptcache.ManualClock
	ctx   context.Context
}

func newFixture(t *testing.T, onRemove func(adaptcache.Removal[string])) *fixture {
	t.Helper()
	return buildFixture(t, newMemProvider(), adaptcache.Options[string]{OnRemove: onRemove})
}

// buildFixture uses a two-entry core over p; opts supplies OnRemove and Hooks.
func buildFixture(t *testing.T, p provider.Provider, opts adaptcache.Options[string]) *fixture {
	t.Helper()
	clk := adaptcache.NewManualClock(epoch)
	opts.CapacityCount = 2
	opts.DefaultTTL = time.Minute
	opts.DisableSweeper = true
	opts.Clock = clk
	c, err := New(opts, Config[string]{
		Namespace: "test",
		Provider:  p,
		Codec:     codec.String{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	f := &fixture{c: c, clock: clk, ctx: context.Background()}
	switch mp := p.(type) {
	case *memProvider:
		f.p = mp
	case *gatedProvider:
		f.p = mp.memProvider
	}
	return f
}

// fillColdA stores a and b and touches b, leaving a as the next victim.
func (f *fixture) fillColdA(t *testing.T) {
	t.Helper()
	require.NoError(t, f.c.Set(f.ctx, "a", "alpha"))
	f.clock.Advance(time.Second)
	require.NoError(t, f.c.Set(f.ctx, "b", "beta"))
	f.clock.Advance(time.Second)
	_, err := f.c.Get(f.ctx, "b")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
}

// keyOffStripe returns a key whose stripe differs from key's, so writes to it
// never hold key's stripe lock.
func (f *fixture) keyOffStripe(key string) string {
	for i := 0; ; i++ {
		k := fmt.Sprintf("k%d", i)
		if f.c.stripe(k) != f.c.stripe(key) {
			return k
		}
	}
}

// gatedProvider blocks Set of one key until release is closed.
type gatedProvider struct {
	*memProvider
	key     string
	entered chan struct{}
	release chan struct{}
}

func (p *gatedProvider) Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if key == p.key {
		close(p.entered)
		<-p.release
	}
	return p.memProvider.Set(ctx, key, value, cost, ttl)
}

// gatedHooks blocks the eviction event of one key, which the core reports
// before the entry is handed to the spill path.
type gatedHooks struct {
	adaptcache.NopHooks
	key     string
	entered chan struct{}
	release chan struct{}
}

func (h *gatedHooks) Evicted(key string, _ int64) {
	if key == h.key {
		close(h.entered)
		<-h.release
	}
}

// evictA fills the core with a and b, touches b, then inserts c so that a is
// the coldest entry and gets spilled.
func (f *fixture) evictA(t *testing.T, opts ...adaptcache.SetOption) {
	t.Helper()
	require.NoError(t, f.c.Set(f.ctx, "a", "alpha", opts...))
	f.clock.Advance(time.Second)
	require.NoError(t, f.c.Set(f.ctx, "b", "beta"))
	f.clock.Advance(time.Second)
	_, err := f.c.Get(f.ctx, "b")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	require.NoError(t, f.c.Set(f.ctx, "c", "gamma"))
	require.True(t, f.p.has("spill:test:a"), "a should be spilled")
}

func TestEvictedEntryIsSpilledAndPromoted(t *testing.T) {
	f := newFixture(t, nil)
	f.evictA(t, adaptcache.WithTags("grp"))

	st := f.c.Stats()
	require.EqualValues(t, 1, st.Spilled)
	require.EqualValues(t, 1, st.Evictions)
	require.Equal(t, 2, f.c.Len())
	require.Empty(t, f.c.KeysForTag("grp"))
	require.Equal(t, 57*time.Second, f.p.ttls["spill:test:a"])

	v, err := f.c.Get(f.ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "alpha", v)
	require.False(t, f.p.has("spill:test:a"), "spilled copy must be removed after promotion")
	require.Equal(t, []string{"a"}, f.c.KeysForTag("grp"))

	st = f.c.Stats()
	require.EqualValues(t, 1, st.Promoted)
	require.EqualValues(t, 2, st.Spilled, "promotion evicts and spills another entry")
	require.Equal(t, 2, f.c.Len())
}

func TestInvalidatedTagRetiresSpilledEntry(t *testing.T) {
	f := newFixture(t, nil)
	f.evictA(t, adaptcache.WithTags("grp"))

	n, err := f.c.InvalidateByTag(f.ctx, "grp")
	require.NoError(t, err)
	require.Equal(t, 0, n, "nothing tagged grp is in memory")

	_, err = f.c.Get(f.ctx, "a")
	require.ErrorIs(t, err, adaptcache.ErrNotFound)
	require.False(t, f.p.has("spill:test:a"))
	require.EqualValues(t, 1, f.c.Stats().Stale)
}

func TestEntryStoredAfterInvalidationSurvivesSpill(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.c.Set(f.ctx, "a", "alpha", adaptcache.WithTags("grp")))

	n, err := f.c.InvalidateByTag(f.ctx, "grp")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// re-add under the new generation; it must survive a spill round trip
	require.NoError(t, f.c.Set(f.ctx, "a", "alpha2", adaptcache.WithTags("grp")))
	f.clock.Advance(time.Second)
	require.NoError(t, f.c.Set(f.ctx, "b", "beta"))
	f.clock.Advance(time.Second)
	_, err = f.c.Get(f.ctx, "b")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	require.NoError(t, f.c.Set(f.ctx, "c", "gamma"))

	v, err := f.c.Get(f.ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "alpha2", v)
}

func TestExpiredSpillIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.evictA(t, adaptcache.WithTTL(10*time.Second))

	f.clock.Advance(20 * time.Second)
	_, err := f.c.Get(f.ctx, "a")
	require.ErrorIs(t, err, adaptcache.ErrNotFound)
	require.False(t, f.p.has("spill:test:a"))
	require.EqualValues(t, 1, f.c.Stats().Stale)
}

func TestCorruptSpillSelfHeals(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.p.Set(f.ctx, "spill:test:x", []byte("garbage"), 7, time.Minute)
	require.NoError(t, err)

	_, err = f.c.Get(f.ctx, "x")
	require.ErrorIs(t, err, adaptcache.ErrNotFound)
	require.False(t, f.p.has("spill:test:x"))
}

func TestSetAndDeleteClearSpilledCopy(t *testing.T) {
	f := newFixture(t, nil)
	f.evictA(t)

	require.NoError(t, f.c.Set(f.ctx, "a", "fresh"))
	require.False(t, f.p.has("spill:test:a"))
	v, err := f.c.Get(f.ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "fresh", v)

	// spill something again, then delete it from both tiers
	require.NoError(t, f.c.Set(f.ctx, "d", "delta"))
	var spilled string
	for _, k := range []string{"a", "b", "c"} {
		if f.p.has("spill:test:" + k) {
			spilled = k
		}
	}
	require.NotEmpty(t, spilled)
	require.False(t, f.c.Delete(f.ctx, spilled), "spilled key is not in memory")
	require.False(t, f.p.has("spill:test:"+spilled))
	_, err = f.c.Get(f.ctx, spilled)
	require.ErrorIs(t, err, adaptcache.ErrNotFound)
}

func TestMissInBothTiers(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.c.Get(f.ctx, "nope")
	require.ErrorIs(t, err, adaptcache.ErrNotFound)
}

func TestProviderErrorIsReturned(t *testing.T) {
	f := newFixture(t, nil)
	boom := errors.New("boom")
	f.p.getErr = boom
	_, err := f.c.Get(f.ctx, "k")
	require.ErrorIs(t, err, boom)
}

func TestOnRemoveSeesCallerValues(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []adaptcache.Removal[string]
	)
	f := newFixture(t, func(r adaptcache.Removal[string]) {
		mu.Lock()
		seen = append(seen, r)
		mu.Unlock()
	})
	f.evictA(t)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	require.Equal(t, "a", seen[0].Key)
	require.Equal(t, "alpha", seen[0].Value)
	require.Equal(t, adaptcache.ReasonEvicted, seen[0].Reason)
}

func TestCloseClosesProvider(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.c.Close(f.ctx))
	require.True(t, f.p.closed)
}

func TestConfigValidation(t *testing.T) {
	opts := adaptcache.Options[string]{CapacityCount: 1, DefaultTTL: time.Minute, DisableSweeper: true}
	cases := map[string]Config[string]{
		"namespace": {Provider: newMemProvider(), Codec: codec.String{}},
		"provider":  {Namespace: "ns", Codec: codec.String{}},
		"codec":     {Namespace: "ns", Provider: newMemProvider()},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(opts, cfg)
			require.ErrorIs(t, err, adaptcache.ErrInvalidConfiguration)
		})
	}

	_, err := New(adaptcache.Options[string]{}, Config[string]{Namespace: "ns", Provider: newMemProvider(), Codec: codec.String{}})
	require.ErrorIs(t, err, adaptcache.ErrInvalidConfiguration)
}

func TestDeleteCancelsEvictionNotYetSpilled(t *testing.T) {
	h := &gatedHooks{key: "a", entered: make(chan struct{}), release: make(chan struct{})}
	f := buildFixture(t, newMemProvider(), adaptcache.Options[string]{Hooks: h})
	f.fillColdA(t)

	third := f.keyOffStripe("a")
	done := make(chan error, 1)
	go func() { done <- f.c.Set(f.ctx, third, "gamma") }()

	<-h.entered // a is out of memory, its spill has not started
	require.False(t, f.c.Delete(f.ctx, "a"))
	close(h.release)
	require.NoError(t, <-done)

	require.False(t, f.p.has("spill:test:a"), "deleted key must not be spilled")
	_, err := f.c.Get(f.ctx, "a")
	require.ErrorIs(t, err, adaptcache.ErrNotFound)
	require.EqualValues(t, 0, f.c.Stats().Spilled)
}

func TestDeleteDuringSpillWriteRemovesCopy(t *testing.T) {
	p := &gatedProvider{
		memProvider: newMemProvider(),
		key:         "spill:test:a",
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	f := buildFixture(t, p, adaptcache.Options[string]{})
	f.fillColdA(t)

	done := make(chan error, 1)
	go func() { done <- f.c.Set(f.ctx, "c", "gamma") }()

	<-p.entered // spill of a is inside provider Set
	deleted := make(chan bool, 1)
	go func() { deleted <- f.c.Delete(f.ctx, "a") }()
	close(p.release)

	require.NoError(t, <-done)
	require.False(t, <-deleted)
	require.False(t, f.p.has("spill:test:a"))
	_, err := f.c.Get(f.ctx, "a")
	require.ErrorIs(t, err, adaptcache.ErrNotFound)
}

func TestSetCancelsEvictionNotYetSpilled(t *testing.T) {
	h := &gatedHooks{key: "a", entered: make(chan struct{}), release: make(chan struct{})}
	f := buildFixture(t, newMemProvider(), adaptcache.Options[string]{Hooks: h})
	f.fillColdA(t)

	third := f.keyOffStripe("a")
	done := make(chan error, 1)
	go func() { done <- f.c.Set(f.ctx, third, "gamma") }()

	<-h.entered
	require.NoError(t, f.c.Set(f.ctx, "a", "alpha2"))
	close(h.release)
	require.NoError(t, <-done)

	require.False(t, f.p.has("spill:test:a"), "superseded value must not be spilled")
	v, err := f.c.Get(f.ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "alpha2", v)
}
