// Package convmeta reconciles conversation-level metadata (last message
// preview, unread count, update time) after delivery events. Updates are
// debounced per conversation so a burst of fragment deliveries produces a
// single remote write. Metadata staleness is an acceptable degraded state:
// flush errors are logged and swallowed, never surfaced to the pipeline.
package convmeta

import (
	"context"
	"sync"
	"time"

	"cadence/pkg/logger"
	"cadence/pkg/telemetry"
)

// DefaultWindow is the debounce window for metadata writes.
const DefaultWindow = 500 * time.Millisecond

const flushTimeout = 5 * time.Second

// Fields is the narrow remote update this core issues against a
// conversation record. UnreadDelta is applied as an increment by the store;
// MarkAsRead forces the count to zero instead.
type Fields struct {
	LastMessage string `json:"last_message"`
	UnreadDelta int    `json:"unread_delta,omitempty"`
	MarkAsRead  bool   `json:"mark_as_read,omitempty"`
	LastUpdated int64  `json:"last_updated"`
}

// ConversationStore is the remote collaborator holding conversation
// aggregates. The core updates them through this narrow call and never
// owns the records.
type ConversationStore interface {
	Update(ctx context.Context, conversationID string, fields Fields) error
}

// Update is one queued metadata change.
type Update struct {
	LastMessage string
	UnreadDelta int
	MarkAsRead  bool
	LastUpdated int64
}

type cell struct {
	timer   *time.Timer
	pending Fields
}

// Updater debounces per-conversation metadata writes. A cell holds the
// merged pending value; the scheduled flush sends whatever the cell holds
// at that moment (last write wins within the window).
type Updater struct {
	mu     sync.Mutex
	store  ConversationStore
	window time.Duration
	cells  map[string]*cell
	closed bool
	wg     sync.WaitGroup
}

// New returns an Updater flushing after the given window (DefaultWindow
// when zero).
func New(store ConversationStore, window time.Duration) *Updater {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Updater{store: store, window: window, cells: make(map[string]*cell)}
}

// Queue merges upd into the conversation's pending cell and arms the flush
// timer if none is armed. The window runs from the first queued update, so
// a steady stream still flushes periodically instead of starving.
func (u *Updater) Queue(conversationID string, upd Update) {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	c, ok := u.cells[conversationID]
	if !ok {
		c = &cell{}
		u.cells[conversationID] = c
	}
	merge(&c.pending, upd)
	if c.timer == nil {
		u.wg.Add(1)
		c.timer = time.AfterFunc(u.window, func() {
			defer u.wg.Done()
			u.flush(conversationID)
		})
	}
	u.mu.Unlock()
}

func merge(dst *Fields, upd Update) {
	if upd.LastMessage != "" {
		dst.LastMessage = upd.LastMessage
	}
	if upd.MarkAsRead {
		dst.MarkAsRead = true
		dst.UnreadDelta = 0
	} else {
		dst.UnreadDelta += upd.UnreadDelta
	}
	ts := upd.LastUpdated
	if ts == 0 {
		ts = time.Now().UTC().UnixNano()
	}
	if ts > dst.LastUpdated {
		dst.LastUpdated = ts
	}
}

// flush takes the pending cell and writes it out. Errors are swallowed by
// design; the store's own retry policy is the only retry applied.
func (u *Updater) flush(conversationID string) {
	u.mu.Lock()
	c, ok := u.cells[conversationID]
	if !ok {
		u.mu.Unlock()
		return
	}
	delete(u.cells, conversationID)
	fields := c.pending
	u.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := u.store.Update(ctx, conversationID, fields); err != nil {
		telemetry.MetadataFlushErrors.Inc()
		logger.Warn("conversation_meta_update_failed", "conversation", conversationID, "error", err)
		return
	}
	telemetry.MetadataFlushes.Inc()
	logger.Debug("conversation_meta_updated", "conversation", conversationID, "unread_delta", fields.UnreadDelta, "mark_as_read", fields.MarkAsRead)
}

// FlushNow forces an immediate flush for one conversation, disarming any
// scheduled timer.
func (u *Updater) FlushNow(conversationID string) {
	u.mu.Lock()
	c, ok := u.cells[conversationID]
	if ok && c.timer != nil && c.timer.Stop() {
		u.wg.Done()
	}
	u.mu.Unlock()
	if ok {
		u.flush(conversationID)
	}
}

// Close flushes every pending cell synchronously and rejects later queues.
func (u *Updater) Close() {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.closed = true
	var ids []string
	for id, c := range u.cells {
		if c.timer != nil && c.timer.Stop() {
			u.wg.Done()
		}
		ids = append(ids, id)
	}
	u.mu.Unlock()

	for _, id := range ids {
		u.flush(id)
	}
	u.wg.Wait()
}
