// Package genstore keeps per-tag generation counters. Invalidating a tag
// bumps its generation; a spilled entry whose recorded generation is behind
// the current one is stale.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
// Use Local (default) for in-process gens, or Redis for distributed gens.
type GenStore interface {
	// Snapshot returns the current generation of tag; missing => 0.
	Snapshot(ctx context.Context, tag string) (uint64, error)
	// SnapshotMany returns gens for many tags; missing => 0.
	SnapshotMany(ctx context.Context, tags []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, tag string) (uint64, error)
	// Cleanup prunes old metadata if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
