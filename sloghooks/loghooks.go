// Package sloghooks implements adaptcache.Hooks on top of log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/adaptcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	EvictedEvery uint64
	ExpiredEvery uint64
	// Sweeps that removed nothing are skipped unless LogEmptySweeps is set.
	LogEmptySweeps bool
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	evictedCtr atomic.Uint64
	expiredCtr atomic.Uint64
}

var _ adaptcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n <= 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Evicted(key string, size int64) {
	if h.l == nil || !sample(h.opts.EvictedEvery, &h.evictedCtr) {
		return
	}
	h.l.Debug("adaptcache.evicted",
		"key", h.redact(key),
		"size", size)
}

func (h *Hooks) Expired(key string) {
	if h.l == nil || !sample(h.opts.ExpiredEvery, &h.expiredCtr) {
		return
	}
	h.l.Debug("adaptcache.expired",
		"key", h.redact(key))
}

func (h *Hooks) TagInvalidated(tag string, n int) {
	if h.l == nil {
		return
	}
	h.l.Info("adaptcache.tag_invalidated",
		"tag", tag,
		"removed", n)
}

func (h *Hooks) ValueRejected(key string, size, budget int64) {
	if h.l == nil {
		return
	}
	h.l.Warn("adaptcache.value_rejected",
		"key", h.redact(key),
		"size", size,
		"budget", budget)
}

func (h *Hooks) Swept(removed int, took time.Duration) {
	if h.l == nil || (removed == 0 && !h.opts.LogEmptySweeps) {
		return
	}
	h.l.Debug("adaptcache.swept",
		"removed", removed,
		"took", took)
}
