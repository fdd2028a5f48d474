package retention

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cadence/pkg/cache"
)

func openTemp(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.Open(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func putSnapshot(t *testing.T, s *cache.Store, key string, age time.Duration) {
	t.Helper()
	raw, _ := json.Marshal(map[string]any{
		"saved_ts": time.Now().UTC().Add(-age).UnixNano(),
		"messages": []any{},
	})
	if err := s.Set(key, string(raw)); err != nil {
		t.Fatalf("set %s: %v", key, err)
	}
}

func TestRunOnceRemovesOnlyStaleSnapshots(t *testing.T) {
	s := openTemp(t)
	putSnapshot(t, s, cache.TranscriptKey("u1", "comp-old"), 48*time.Hour)
	putSnapshot(t, s, cache.TranscriptKey("u1", "comp-new"), time.Minute)
	if err := s.Set(cache.PendingKey("u1"), "[]"); err != nil {
		t.Fatalf("set pending: %v", err)
	}

	removed, err := RunOnce(s, 24*time.Hour, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d entries, want 1", removed)
	}

	if _, ok, _ := s.Get(cache.TranscriptKey("u1", "comp-old")); ok {
		t.Fatal("stale snapshot survived the sweep")
	}
	if _, ok, _ := s.Get(cache.TranscriptKey("u1", "comp-new")); !ok {
		t.Fatal("fresh snapshot was removed")
	}
	// pending entries are never touched
	if _, ok, _ := s.Get(cache.PendingKey("u1")); !ok {
		t.Fatal("pending list was removed")
	}
}

func TestRunOnceDropsCorruptSnapshots(t *testing.T) {
	s := openTemp(t)
	if err := s.Set(cache.TranscriptKey("u1", "comp-bad"), "{not json"); err != nil {
		t.Fatalf("set: %v", err)
	}
	removed, err := RunOnce(s, 24*time.Hour, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d entries, want 1", removed)
	}
}

func putSizedSnapshot(t *testing.T, s *cache.Store, key string, age time.Duration, pad int) {
	t.Helper()
	raw, _ := json.Marshal(map[string]any{
		"saved_ts": time.Now().UTC().Add(-age).UnixNano(),
		"messages": []any{strings.Repeat("x", pad)},
	})
	if err := s.Set(key, string(raw)); err != nil {
		t.Fatalf("set %s: %v", key, err)
	}
}

func TestRunOnceTrimsOldestToSizeBudget(t *testing.T) {
	s := openTemp(t)
	// three fresh snapshots of ~450 bytes each, budget fits only one
	putSizedSnapshot(t, s, cache.TranscriptKey("u1", "comp-a"), 3*time.Hour, 400)
	putSizedSnapshot(t, s, cache.TranscriptKey("u1", "comp-b"), 2*time.Hour, 400)
	putSizedSnapshot(t, s, cache.TranscriptKey("u1", "comp-c"), time.Hour, 400)

	removed, err := RunOnce(s, 24*time.Hour, 500)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed %d entries, want 2", removed)
	}

	if _, ok, _ := s.Get(cache.TranscriptKey("u1", "comp-a")); ok {
		t.Fatal("oldest snapshot survived the size trim")
	}
	if _, ok, _ := s.Get(cache.TranscriptKey("u1", "comp-b")); ok {
		t.Fatal("second-oldest snapshot survived the size trim")
	}
	if _, ok, _ := s.Get(cache.TranscriptKey("u1", "comp-c")); !ok {
		t.Fatal("newest snapshot was removed")
	}
}
