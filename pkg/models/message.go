package models

import (
	"fmt"
	"time"
)

// FragmentSpacing is the synthetic timestamp offset between fragments that
// belong to one logical reply. Independently stored fragment records get
// TS = base + index*FragmentSpacing so they sort stably.
const FragmentSpacing = int64(time.Millisecond)

// Meta carries the known optional annotations of a message. It replaces the
// open key/value map of earlier clients with explicit fields so consumers
// do not probe dynamic shapes.
type Meta struct {
	// Fragment bookkeeping. IsFragment marks an exploded per-fragment
	// record; BaseMessageID links it to the logical parent reply.
	IsFragment     bool   `json:"is_fragment,omitempty"`
	FragmentIndex  int    `json:"fragment_index,omitempty"`
	TotalFragments int    `json:"total_fragments,omitempty"`
	BaseMessageID  string `json:"base_message_id,omitempty"`

	// HasFragments marks a complete record that embeds all fragments in
	// Message.Fragments; IsCompleteVersion distinguishes it from a plain
	// single-fragment message when TotalFragments == 1.
	HasFragments      bool `json:"has_fragments,omitempty"`
	IsCompleteVersion bool `json:"is_complete_version,omitempty"`

	// ForceCompleted is set when the reply's playback was truncated
	// rather than played out fragment by fragment.
	ForceCompleted bool `json:"force_completed,omitempty"`

	// Error marks a synthetic bot message inserted after a failed
	// generation attempt.
	Error bool `json:"error,omitempty"`

	// Relationship/emotion annotations attached by the generation layer.
	Emotion           string `json:"emotion,omitempty"`
	RelationshipLevel int    `json:"relationship_level,omitempty"`
}

// Message is one unit of conversation content. A single-fragment message is
// the common case; a multi-fragment message is a humanized bot reply.
type Message struct {
	ID             string   `json:"id"`
	ConversationID string   `json:"conversation_id"`
	CompanionID    string   `json:"companion_id"`
	UserID         string   `json:"user_id"`
	IsBot          bool     `json:"is_bot,omitempty"`
	Fragments      []string `json:"fragments"`
	// TS is the creation timestamp (UTC nanoseconds).
	TS   int64 `json:"ts"`
	Meta Meta  `json:"meta,omitempty"`
}

// Text returns the full reply text: all fragments joined with single spaces.
func (m Message) Text() string {
	switch len(m.Fragments) {
	case 0:
		return ""
	case 1:
		return m.Fragments[0]
	}
	n := 0
	for _, f := range m.Fragments {
		n += len(f) + 1
	}
	b := make([]byte, 0, n)
	for i, f := range m.Fragments {
		if i > 0 {
			b = append(b, ' ')
		}
		b = append(b, f...)
	}
	return string(b)
}

// IsComplete reports whether m is the complete stored record of a
// multi-fragment reply (representation carrying all fragments embedded).
func (m Message) IsComplete() bool {
	return m.Meta.HasFragments && len(m.Fragments) > 1
}

// BaseID returns the logical parent id for fragment records, or the
// message's own id otherwise.
func (m Message) BaseID() string {
	if m.Meta.IsFragment && m.Meta.BaseMessageID != "" {
		return m.Meta.BaseMessageID
	}
	return m.ID
}

// Validate checks the internal consistency required before a message enters
// the delivery pipeline.
func (m Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("missing message id")
	}
	if m.ConversationID == "" {
		return fmt.Errorf("missing conversation id")
	}
	if m.CompanionID == "" {
		return fmt.Errorf("missing companion id")
	}
	if m.UserID == "" {
		return fmt.Errorf("missing user id")
	}
	if len(m.Fragments) == 0 {
		return fmt.Errorf("message %s has no fragments", m.ID)
	}
	if m.Meta.IsFragment && m.Meta.BaseMessageID == "" {
		return fmt.Errorf("fragment record %s missing base message id", m.ID)
	}
	return nil
}
