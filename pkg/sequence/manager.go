// Package sequence owns the state machine that plays a fragmented reply
// out over time. Transitions are synchronous and pure: each call returns
// the events it emitted plus the delay the caller should wait before the
// next step, so playback timing stays with the driver and force-completion
// is a plain state transform.
package sequence

import (
	"fmt"
	"sync"
	"time"

	"cadence/pkg/ids"
	"cadence/pkg/logger"
	"cadence/pkg/models"
	"cadence/pkg/telemetry"
)

// DefaultPause is the inter-fragment pause inserted between a displayed
// fragment and the next typing indicator.
const DefaultPause = 350 * time.Millisecond

// EventKind enumerates the observable transitions of a sequence.
type EventKind int

const (
	// EventStarted fires once when a sequence begins.
	EventStarted EventKind = iota
	// EventTyping signals the typing indicator for the next fragment.
	EventTyping
	// EventFragment carries a displayed fragment.
	EventFragment
	// EventCompleted is terminal; ForceCompleted marks truncation.
	EventCompleted
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventTyping:
		return "typing"
	case EventFragment:
		return "fragment"
	case EventCompleted:
		return "completed"
	}
	return "unknown"
}

// Event is one emitted transition.
type Event struct {
	Kind           EventKind
	SequenceID     string
	ConversationID string
	Index          int
	Fragment       string
	ForceCompleted bool
}

// Sequence is the transient run-state for one reply being played out. It is
// never persisted.
type Sequence struct {
	ID             string
	Message        models.Message
	Fragments      []string
	Delays         []time.Duration
	TotalFragments int
	DisplayedCount int
	Completed      bool
	ForceCompleted bool
	StartedAt      time.Time
	CompletedAt    time.Time
}

// StartResult bundles the initial transition of a new sequence.
type StartResult struct {
	Seq *Sequence
	// Events may include the force-completion tail of a prior sequence
	// that was still active for the same conversation.
	Events []Event
	// Wait is the delay before the first Advance call.
	Wait time.Duration
}

// Manager tracks the active sequence per conversation. Only one sequence
// may be active per conversation; starting a new one force-completes the
// prior one first so fragment streams never interleave.
type Manager struct {
	mu     sync.Mutex
	byConv map[string]*Sequence
	byID   map[string]*Sequence
	pause  time.Duration
	now    func() time.Time
}

// NewManager returns a Manager with the given inter-fragment pause
// (DefaultPause when zero).
func NewManager(pause time.Duration) *Manager {
	if pause <= 0 {
		pause = DefaultPause
	}
	return &Manager{
		byConv: make(map[string]*Sequence),
		byID:   make(map[string]*Sequence),
		pause:  pause,
		now:    time.Now,
	}
}

// Start begins playback for a multi-fragment message. Messages with fewer
// than two fragments are rejected; they do not need sequencing.
func (m *Manager) Start(msg models.Message, delays []time.Duration) (*StartResult, error) {
	if len(msg.Fragments) < 2 {
		return nil, fmt.Errorf("sequence requires >1 fragment, got %d", len(msg.Fragments))
	}
	if len(delays) != len(msg.Fragments) {
		return nil, fmt.Errorf("delays/fragments mismatch: %d vs %d", len(delays), len(msg.Fragments))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var events []Event
	if prior, ok := m.byConv[msg.ConversationID]; ok {
		events = append(events, m.forceCompleteLocked(prior)...)
	}

	seq := &Sequence{
		ID:             ids.New(),
		Message:        msg,
		Fragments:      append([]string(nil), msg.Fragments...),
		Delays:         append([]time.Duration(nil), delays...),
		TotalFragments: len(msg.Fragments),
		StartedAt:      m.now(),
	}
	m.byConv[msg.ConversationID] = seq
	m.byID[seq.ID] = seq

	telemetry.SequencesStarted.Inc()
	logger.Debug("sequence_started", "seq", seq.ID, "conversation", msg.ConversationID, "fragments", seq.TotalFragments)

	events = append(events,
		Event{Kind: EventStarted, SequenceID: seq.ID, ConversationID: msg.ConversationID},
		Event{Kind: EventTyping, SequenceID: seq.ID, ConversationID: msg.ConversationID, Index: 0},
	)
	return &StartResult{Seq: seq, Events: events, Wait: seq.Delays[0]}, nil
}

// Advance displays the current fragment. When fragments remain it emits
// the next typing signal and returns the delay before the following
// Advance; otherwise it completes the sequence. done reports completion.
func (m *Manager) Advance(seqID string) (events []Event, wait time.Duration, done bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq, ok := m.byID[seqID]
	if !ok {
		return nil, 0, true, fmt.Errorf("unknown sequence %s", seqID)
	}

	i := seq.DisplayedCount
	events = append(events, Event{
		Kind:           EventFragment,
		SequenceID:     seq.ID,
		ConversationID: seq.Message.ConversationID,
		Index:          i,
		Fragment:       seq.Fragments[i],
	})
	seq.DisplayedCount++
	telemetry.FragmentsEmitted.Inc()

	if seq.DisplayedCount == seq.TotalFragments {
		events = append(events, m.completeLocked(seq, false))
		return events, 0, true, nil
	}

	next := seq.DisplayedCount
	events = append(events, Event{
		Kind:           EventTyping,
		SequenceID:     seq.ID,
		ConversationID: seq.Message.ConversationID,
		Index:          next,
	})
	return events, m.pause + seq.Delays[next], false, nil
}

// ForceComplete short-circuits all remaining transitions for the sequence,
// emitting the remaining fragment events back-to-back so no content is
// lost, then the terminal event with the force-completed flag.
func (m *Manager) ForceComplete(seqID string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq, ok := m.byID[seqID]
	if !ok {
		return nil, fmt.Errorf("unknown sequence %s", seqID)
	}
	return m.forceCompleteLocked(seq), nil
}

// ActiveFor returns the active sequence for a conversation, if any.
func (m *Manager) ActiveFor(conversationID string) (*Sequence, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq, ok := m.byConv[conversationID]
	return seq, ok
}

// ActiveCount returns the number of sequences currently playing.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// Close force-completes every active sequence and returns the combined
// event tail. Abandoning a sequence mid-flight would leave unread counts
// inconsistent, so close never drops fragments.
func (m *Manager) Close() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var events []Event
	for _, seq := range m.byID {
		events = append(events, m.forceCompleteLocked(seq)...)
	}
	return events
}

func (m *Manager) forceCompleteLocked(seq *Sequence) []Event {
	var events []Event
	for seq.DisplayedCount < seq.TotalFragments {
		i := seq.DisplayedCount
		events = append(events, Event{
			Kind:           EventFragment,
			SequenceID:     seq.ID,
			ConversationID: seq.Message.ConversationID,
			Index:          i,
			Fragment:       seq.Fragments[i],
		})
		seq.DisplayedCount++
		telemetry.FragmentsEmitted.Inc()
	}
	events = append(events, m.completeLocked(seq, true))
	telemetry.SequencesForceCompleted.Inc()
	logger.Debug("sequence_force_completed", "seq", seq.ID, "conversation", seq.Message.ConversationID)
	return events
}

// completeLocked finalizes the sequence and removes it from the active set.
func (m *Manager) completeLocked(seq *Sequence, forced bool) Event {
	seq.Completed = true
	seq.ForceCompleted = forced
	seq.CompletedAt = m.now()
	delete(m.byID, seq.ID)
	if cur, ok := m.byConv[seq.Message.ConversationID]; ok && cur.ID == seq.ID {
		delete(m.byConv, seq.Message.ConversationID)
	}
	return Event{
		Kind:           EventCompleted,
		SequenceID:     seq.ID,
		ConversationID: seq.Message.ConversationID,
		ForceCompleted: forced,
	}
}
