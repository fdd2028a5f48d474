package delivery

import (
	"encoding/json"
	"time"

	"cadence/pkg/cache"
	"cadence/pkg/logger"
	"cadence/pkg/models"
)

// transcriptSnapshot is the cached per-(user,companion) transcript written
// after every delivery event, so a kill-and-restart loses at most the
// in-flight fragment.
type transcriptSnapshot struct {
	SavedTS  int64            `json:"saved_ts"`
	Messages []models.Message `json:"messages"`
}

// appendTranscript adds m to the in-memory transcript for its conversation.
// Callers hold o.mu.
func (o *Orchestrator) appendTranscriptLocked(m models.Message) {
	o.transcripts[m.ConversationID] = append(o.transcripts[m.ConversationID], m)
}

// cacheTranscriptLocked re-writes the full cached transcript for the
// conversation. Best-effort: cache failures are logged and ignored.
func (o *Orchestrator) cacheTranscriptLocked(conversationID, companionID string) {
	snap := transcriptSnapshot{
		SavedTS:  time.Now().UTC().UnixNano(),
		Messages: o.transcripts[conversationID],
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		logger.Warn("transcript_marshal_failed", "conversation", conversationID, "error", err)
		return
	}
	if err := o.cache.Set(cache.TranscriptKey(o.cfg.UserID, companionID), string(raw)); err != nil {
		logger.Warn("transcript_cache_failed", "conversation", conversationID, "error", err)
	}
}

// cachedTranscript loads the snapshot for a companion, returning nil when
// absent or unreadable.
func (o *Orchestrator) cachedTranscript(companionID string) []models.Message {
	raw, ok, err := o.cache.Get(cache.TranscriptKey(o.cfg.UserID, companionID))
	if err != nil || !ok {
		return nil
	}
	var snap transcriptSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		logger.Warn("transcript_cache_corrupt", "companion", companionID, "error", err)
		return nil
	}
	return snap.Messages
}
