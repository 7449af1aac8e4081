package ristretto

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := New(Config{MaxCost: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close(ctx) })

	want := []byte("frame")
	ok, err := s.Set(ctx, "k", want, 0, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Skip("ristretto rejected the write under admission policy")
	}
	got, hit, err := s.Get(ctx, "k")
	if err != nil || !hit || !bytes.Equal(got, want) {
		t.Fatalf("get: %q hit=%v err=%v", got, hit, err)
	}

	if err := s.Del(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := s.Get(ctx, "k"); hit {
		t.Fatal("deleted key still present")
	}
}

func TestOversizedFrameRefused(t *testing.T) {
	ctx := context.Background()
	s, err := New(Config{MaxCost: 8})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close(ctx) })

	ok, err := s.Set(ctx, "k", make([]byte, 9), 0, time.Minute)
	if err != nil || ok {
		t.Fatalf("set: ok=%v err=%v, want refused", ok, err)
	}
	if _, hit, _ := s.Get(ctx, "k"); hit {
		t.Fatal("oversized frame stored")
	}
}

func TestInvalidConfig(t *testing.T) {
	for _, cfg := range []Config{{}, {MaxCost: 1, NumCounters: -1}, {MaxCost: 1, BufferItems: -1}} {
		if _, err := New(cfg); err == nil {
			t.Fatalf("New(%+v): expected invalid config error", cfg)
		}
	}
}
