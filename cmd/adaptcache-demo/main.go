package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/adaptcache"
	"github.com/unkn0wn-root/adaptcache/codec"
	"github.com/unkn0wn-root/adaptcache/config"
	asynchook "github.com/unkn0wn-root/adaptcache/hooks/async"
	zaplog "github.com/unkn0wn-root/adaptcache/log/zap"
	"github.com/unkn0wn-root/adaptcache/metrics"
	"github.com/unkn0wn-root/adaptcache/provider/ristretto"
	"github.com/unkn0wn-root/adaptcache/sloghooks"
	"github.com/unkn0wn-root/adaptcache/tiered"
)

type profile struct {
	ID     int    `msgpack:"id"`
	Name   string `msgpack:"name"`
	Group  string `msgpack:"group"`
	Visits int    `msgpack:"visits"`
}

func main() {
	var (
		cfgPath = flag.String("config", "", "YAML config file (optional)")
		addr    = flag.String("metrics-addr", "", "serve /metrics on this address; overrides the config file")
		keys    = flag.Int("keys", 2000, "distinct keys in the workload")
		ops     = flag.Int("ops", 50000, "reads in the workload")
		linger  = flag.Bool("linger", false, "keep serving metrics until interrupted")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, logger, *cfgPath, *addr, *keys, *ops, *linger); err != nil {
		logger.Error("demo failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger, cfgPath, addr string, keys, ops int, linger bool) error {
	file := config.File{
		CapacityBytes: 64 << 10,
		DefaultTTL:    config.Duration(time.Minute),
		Metrics:       config.Metrics{Namespace: "adaptcache_demo"},
	}
	if cfgPath != "" {
		f, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		file = f
	}
	if addr != "" {
		file.Metrics.Addr = addr
	}

	spill, err := ristretto.New(ristretto.Config{MaxCost: 16 << 20, Metrics: true})
	if err != nil {
		return err
	}

	hooks := asynchook.New(sloghooks.New(slog.Default(), sloghooks.Options{EvictedEvery: 100}), 1, 1024)
	defer hooks.Close()

	c := codec.Gzip[profile]{Inner: codec.Msgpack[profile]{}, MinSize: 256}
	cache, err := tiered.New(config.Apply(file, adaptcache.Options[profile]{
		Measure: codec.Measure[profile](codec.Msgpack[profile]{}),
		Logger:  zaplog.New(logger.Named("cache")),
		Hooks:   hooks,
	}), tiered.Config[profile]{
		Namespace: "demo",
		Provider:  spill,
		Codec:     c,
		Logger:    zaplog.New(logger.Named("tiered")),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := cache.Close(context.Background()); err != nil {
			logger.Warn("close", zap.Error(err))
		}
	}()

	if file.Metrics.Addr != "" {
		srv := serveMetrics(logger, file.Metrics, cache)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	if err := workload(ctx, cache, keys, ops); err != nil {
		return err
	}

	st := cache.Stats()
	logger.Info("workload done",
		zap.Uint64("hits", st.Hits),
		zap.Uint64("misses", st.Misses),
		zap.Float64("hit_ratio", st.HitRatio()),
		zap.Uint64("evictions", st.Evictions),
		zap.Uint64("spilled", st.Spilled),
		zap.Uint64("promoted", st.Promoted),
		zap.Int64("bytes", st.CurrentSize),
		zap.Int("entries", st.EntryCount),
	)
	if m := spill.Metrics(); m != nil {
		logger.Info("spill store",
			zap.Uint64("hits", m.Hits()),
			zap.Uint64("misses", m.Misses()),
			zap.Uint64("frames_added", m.KeysAdded()),
			zap.Uint64("frames_evicted", m.KeysEvicted()),
		)
	}

	n, err := cache.InvalidateByTag(ctx, "group:0")
	if err != nil {
		return err
	}
	logger.Info("invalidated group:0", zap.Int("in_memory", n))

	if linger && file.Metrics.Addr != "" {
		logger.Info("serving metrics until interrupted", zap.String("addr", file.Metrics.Addr))
		<-ctx.Done()
	}
	return nil
}

// workload writes every key once, then reads with a Zipf skew so a small hot
// set stays resident while the tail is evicted and spilled.
func workload(ctx context.Context, cache *tiered.Cache[profile], keys, ops int) error {
	key := func(i int) string { return fmt.Sprintf("user:%d", i) }

	for i := 0; i < keys; i++ {
		p := profile{ID: i, Name: fmt.Sprintf("user-%d", i), Group: fmt.Sprintf("group:%d", i%8)}
		if err := cache.Set(ctx, key(i), p, adaptcache.WithTags(p.Group)); err != nil {
			return err
		}
	}

	rng := rand.New(rand.NewSource(1))
	zipf := rand.NewZipf(rng, 1.2, 1, uint64(keys-1))
	for i := 0; i < ops; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		k := key(int(zipf.Uint64()))
		p, err := cache.Get(ctx, k)
		switch {
		case errors.Is(err, adaptcache.ErrNotFound):
			continue
		case err != nil:
			return err
		}
		p.Visits++
		if err := cache.Set(ctx, k, p, adaptcache.WithTags(p.Group)); err != nil {
			return err
		}
	}
	return nil
}

func serveMetrics(logger *zap.Logger, m config.Metrics, cache *tiered.Cache[profile]) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(m.Namespace, metrics.StatsFunc(func() adaptcache.Stats {
		return cache.Stats().Stats
	})))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: m.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	return srv
}
