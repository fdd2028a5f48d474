// Package fragment splits a generated reply into human-paced chat fragments
// and computes the synthetic typing delay for each one.
package fragment

import (
	"strings"
	"time"
)

// Default and configuration values.
const (
	DefaultMaxLen        = 160
	DefaultThinkingDelay = 1200 * time.Millisecond
	DefaultTypingPerChar = 30 * time.Millisecond
	DefaultMinDelay      = 500 * time.Millisecond
	DefaultMaxDelay      = 3 * time.Second
)

// Options configures fragmentation behavior. Delays are a deterministic
// function of (text, index): the first fragment gets ThinkingDelay on top of
// its typing time, subsequent fragments only the typing time.
type Options struct {
	// MaxLen is the maximum readable fragment length in bytes. A single
	// word longer than MaxLen is kept whole; splits never land inside a
	// word.
	MaxLen int

	ThinkingDelay time.Duration
	TypingPerChar time.Duration
	MinDelay      time.Duration
	MaxDelay      time.Duration
}

// DefaultOptions returns the default fragmentation options.
func DefaultOptions() Options {
	return Options{
		MaxLen:        DefaultMaxLen,
		ThinkingDelay: DefaultThinkingDelay,
		TypingPerChar: DefaultTypingPerChar,
		MinDelay:      DefaultMinDelay,
		MaxDelay:      DefaultMaxDelay,
	}
}

// Split breaks text into ordered fragments with per-fragment delays. It
// always returns at least one fragment; joining the fragments with single
// spaces reproduces the whitespace-normalized input exactly.
func Split(text string, opts Options) ([]string, []time.Duration) {
	if opts.MaxLen == 0 {
		opts = DefaultOptions()
	}

	norm := Normalize(text)
	var frags []string
	if len(norm) <= opts.MaxLen {
		frags = []string{norm}
	} else {
		frags = split(norm, opts.MaxLen)
	}
	return frags, delays(frags, opts)
}

// Normalize collapses all whitespace runs to single spaces and trims the
// ends. This is the canonical form fragments are cut from; the separator
// reinserted between fragments on join is a single space.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Join reassembles fragments into the normalized reply text.
func Join(frags []string) string {
	return strings.Join(frags, " ")
}

// split cuts norm (already whitespace-normalized, longer than maxLen) at
// word boundaries, preferring sentence ends, then clause ends.
func split(norm string, maxLen int) []string {
	words := strings.Split(norm, " ")
	var frags []string
	var cur []string
	curLen := 0
	lastSentence := -1 // index into cur of the latest sentence-ending word
	lastClause := -1

	rescan := func() {
		curLen = 0
		lastSentence, lastClause = -1, -1
		for i, w := range cur {
			if i > 0 {
				curLen++
			}
			curLen += len(w)
			if endsSentence(w) {
				lastSentence = i
			} else if endsClause(w) {
				lastClause = i
			}
		}
	}

	for _, w := range words {
		add := len(w)
		if curLen > 0 {
			add++
		}
		for curLen+add > maxLen && len(cur) > 0 {
			cut := len(cur)
			if lastSentence >= 0 {
				cut = lastSentence + 1
			} else if lastClause >= 0 {
				cut = lastClause + 1
			}
			frags = append(frags, strings.Join(cur[:cut], " "))
			cur = append([]string(nil), cur[cut:]...)
			rescan()
			add = len(w)
			if curLen > 0 {
				add++
			}
		}
		cur = append(cur, w)
		curLen += add
		if endsSentence(w) {
			lastSentence = len(cur) - 1
		} else if endsClause(w) {
			lastClause = len(cur) - 1
		}
	}
	if len(cur) > 0 {
		frags = append(frags, strings.Join(cur, " "))
	}
	return frags
}

// delays computes the synthetic per-fragment delay. Typing time scales with
// fragment length and is clamped to [MinDelay, MaxDelay]; fragment 0 adds
// the thinking delay on top.
func delays(frags []string, opts Options) []time.Duration {
	out := make([]time.Duration, len(frags))
	for i, f := range frags {
		d := time.Duration(len(f)) * opts.TypingPerChar
		if d < opts.MinDelay {
			d = opts.MinDelay
		}
		if d > opts.MaxDelay {
			d = opts.MaxDelay
		}
		if i == 0 {
			d += opts.ThinkingDelay
		}
		out[i] = d
	}
	return out
}

const closers = `"')]}` + "’”»"

func endsSentence(w string) bool {
	w = strings.TrimRight(w, closers)
	if w == "" {
		return false
	}
	switch w[len(w)-1] {
	case '.', '!', '?':
		return true
	}
	return strings.HasSuffix(w, "…")
}

func endsClause(w string) bool {
	w = strings.TrimRight(w, closers)
	if w == "" {
		return false
	}
	switch w[len(w)-1] {
	case ',', ';', ':':
		return true
	}
	return false
}
