package delivery

import (
	"sort"

	"cadence/pkg/models"
)

// Reconcile normalizes loaded history into a uniform fragment-level view.
//
// A logical multi-fragment reply can be stored two ways: one complete
// record embedding all fragments, or a set of exploded per-fragment
// records sharing a base message id. When both appear for the same logical
// message the fragments take precedence and the complete record is
// discarded. A complete record with no sibling fragments is expanded into
// synthetic per-fragment records with offset timestamps so ordering is
// preserved downstream.
//
// Output order follows the logical messages: records sort by the base
// message timestamp, and fragments of one logical message stay adjacent in
// index order even when another record's timestamp falls inside the
// fragment offset range.
//
// The transform is deterministic and idempotent: feeding its output back
// in yields the same transcript.
func Reconcile(records []models.Message) []models.Message {
	// fragment presence per logical message
	hasFragments := make(map[string]bool)
	for _, m := range records {
		if m.Meta.IsFragment {
			hasFragments[m.BaseID()] = true
		}
	}

	out := make([]models.Message, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, m := range records {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true

		switch {
		case m.Meta.IsFragment:
			out = append(out, m)
		case m.IsComplete():
			if hasFragments[m.ID] {
				// superseded by exploded records
				continue
			}
			out = append(out, Explode(m)...)
		default:
			out = append(out, m)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		bi, bj := baseTS(out[i]), baseTS(out[j])
		if bi != bj {
			return bi < bj
		}
		if out[i].BaseID() != out[j].BaseID() {
			// distinct logical messages at the same instant keep input order
			return false
		}
		return out[i].Meta.FragmentIndex < out[j].Meta.FragmentIndex
	})
	return out
}

// baseTS recovers the logical message timestamp a record sorts under. A
// fragment record carries TS = base + index*FragmentSpacing, so the base is
// recoverable without its siblings.
func baseTS(m models.Message) int64 {
	if m.Meta.IsFragment {
		return m.TS - int64(m.Meta.FragmentIndex)*models.FragmentSpacing
	}
	return m.TS
}

// Explode expands a complete record into synthetic per-fragment records.
// Fragment i gets TS = base + i*FragmentSpacing so independently sorted
// views keep the display order.
func Explode(m models.Message) []models.Message {
	if len(m.Fragments) <= 1 {
		return []models.Message{m}
	}
	out := make([]models.Message, 0, len(m.Fragments))
	for i, f := range m.Fragments {
		out = append(out, FragmentRecord(m, i, f))
	}
	return out
}

// FragmentRecord builds the exploded record for fragment i of base.
func FragmentRecord(base models.Message, i int, text string) models.Message {
	return models.Message{
		ID:             fragmentID(base.ID, i),
		ConversationID: base.ConversationID,
		CompanionID:    base.CompanionID,
		UserID:         base.UserID,
		IsBot:          base.IsBot,
		Fragments:      []string{text},
		TS:             base.TS + int64(i)*models.FragmentSpacing,
		Meta: models.Meta{
			IsFragment:     true,
			FragmentIndex:  i,
			TotalFragments: len(base.Fragments),
			BaseMessageID:  base.ID,
			ForceCompleted: base.Meta.ForceCompleted,
			Emotion:        base.Meta.Emotion,
		},
	}
}
