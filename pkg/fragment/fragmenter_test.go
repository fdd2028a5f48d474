package fragment

import (
	"strings"
	"testing"
	"time"
)

func TestSplit_ShortInput(t *testing.T) {
	text := "OK."
	frags, delays := Split(text, DefaultOptions())
	if len(frags) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(frags))
	}
	if frags[0] != text {
		t.Fatalf("expected %q, got %q", text, frags[0])
	}
	if len(delays) != 1 {
		t.Fatalf("expected 1 delay, got %d", len(delays))
	}
}

func TestSplit_TwentyCharsSingleFragment(t *testing.T) {
	text := "Twenty characters ok" // 20 bytes
	if len(text) != 20 {
		t.Fatalf("fixture length drifted: %d", len(text))
	}
	frags, _ := Split(text, DefaultOptions())
	if len(frags) != 1 {
		t.Fatalf("expected 1 fragment for 20-char input, got %d", len(frags))
	}
}

func TestSplit_LongMultiSentence(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("This is a full sentence about nothing in particular. ", 8)) // ~420 chars
	frags, delays := Split(text, DefaultOptions())
	if len(frags) < 2 {
		t.Fatalf("expected >=2 fragments for %d-char input, got %d", len(text), len(frags))
	}
	if len(delays) != len(frags) {
		t.Fatalf("delays/fragments length mismatch: %d vs %d", len(delays), len(frags))
	}
	for i, f := range frags {
		if len(f) > DefaultMaxLen {
			t.Fatalf("fragment %d exceeds max length: %d > %d", i, len(f), DefaultMaxLen)
		}
	}
}

func TestSplit_SentenceBoundaries(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxLen = 15
	frags, _ := Split("Hi! How are you? I missed you.", opts)
	want := []string{"Hi!", "How are you?", "I missed you."}
	if len(frags) != len(want) {
		t.Fatalf("expected %d fragments, got %d: %v", len(want), len(frags), frags)
	}
	for i := range want {
		if frags[i] != want[i] {
			t.Fatalf("fragment %d: expected %q, got %q", i, want[i], frags[i])
		}
	}
}

func TestSplit_RoundTrip(t *testing.T) {
	inputs := []string{
		"Hi! How are you? I missed you.",
		"one two three",
		"A long, rambling clause-heavy reply; it keeps going on and on, with commas everywhere, never quite stopping for breath until the very end of the line appears.",
		strings.Repeat("word ", 200),
		"Tabs\tand\nnewlines   and   runs of spaces.",
	}
	for _, in := range inputs {
		for _, maxLen := range []int{12, 40, 160} {
			opts := DefaultOptions()
			opts.MaxLen = maxLen
			frags, _ := Split(in, opts)
			if len(frags) == 0 {
				t.Fatalf("no fragments for %q", in)
			}
			if got, want := Join(frags), Normalize(in); got != want {
				t.Fatalf("round trip failed (maxLen=%d):\n in:  %q\n got: %q", maxLen, want, got)
			}
		}
	}
}

func TestSplit_NeverInsideWord(t *testing.T) {
	long := strings.Repeat("x", 50)
	opts := DefaultOptions()
	opts.MaxLen = 20
	frags, _ := Split("short words then "+long+" and more short words after it", opts)
	found := false
	for _, f := range frags {
		if strings.Contains(f, long) {
			found = true
		}
	}
	if !found {
		t.Fatalf("oversized word was split across fragments: %v", frags)
	}
}

func TestSplit_DeterministicDelays(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxLen = 15
	frags, d1 := Split("Hi! How are you? I missed you.", opts)
	_, d2 := Split("Hi! How are you? I missed you.", opts)
	for i := range d1 {
		if d1[i] != d2[i] {
			t.Fatalf("delays not deterministic at %d: %v vs %v", i, d1[i], d2[i])
		}
	}
	// first fragment carries the thinking delay on top of typing time
	typing := time.Duration(len(frags[0])) * opts.TypingPerChar
	if typing < opts.MinDelay {
		typing = opts.MinDelay
	}
	if want := opts.ThinkingDelay + typing; d1[0] != want {
		t.Fatalf("first delay: expected %v, got %v", want, d1[0])
	}
	if d1[1] >= d1[0] {
		t.Fatalf("subsequent delay should be shorter than the first: %v vs %v", d1[1], d1[0])
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	frags, delays := Split("", DefaultOptions())
	if len(frags) != 1 || frags[0] != "" {
		t.Fatalf("expected single empty fragment, got %v", frags)
	}
	if len(delays) != 1 {
		t.Fatalf("expected 1 delay, got %d", len(delays))
	}
}
