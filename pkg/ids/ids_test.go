package ids

import (
	"strings"
	"testing"
)

func TestNewIsUniqueAndSortable(t *testing.T) {
	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 1000; i++ {
		id := New()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
		if prev != "" && id <= prev {
			t.Fatalf("ids not monotonic: %s after %s", id, prev)
		}
		prev = id
	}
}

func TestLocalPrefix(t *testing.T) {
	id := NewLocal()
	if !strings.HasPrefix(id, LocalPrefix) {
		t.Fatalf("local id %q missing prefix", id)
	}
	if !IsLocal(id) {
		t.Fatalf("IsLocal(%q) = false", id)
	}
	if IsLocal(New()) {
		t.Fatal("server-style id reported as local")
	}
}
