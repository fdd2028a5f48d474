package delivery

import (
	"encoding/json"
	"sync"

	"cadence/pkg/cache"
	"cadence/pkg/logger"
	"cadence/pkg/models"
	"cadence/pkg/telemetry"
)

// pendingList is the durable queue of messages deferred while offline. It
// lives in the local cache under the user's pending key and survives
// restarts. The queue worker, the retry pass and the shutdown drain all
// touch it, so it carries its own lock.
type pendingList struct {
	store *cache.Store
	key   string

	mu    sync.Mutex
	items []models.PendingMessage
}

func loadPending(store *cache.Store, userID string) *pendingList {
	p := &pendingList{store: store, key: cache.PendingKey(userID)}
	raw, ok, err := store.Get(p.key)
	if err != nil {
		logger.Warn("pending_load_failed", "key", p.key, "error", err)
		return p
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &p.items); err != nil {
			logger.Warn("pending_corrupt_discarded", "key", p.key, "error", err)
			p.items = nil
		}
	}
	telemetry.PendingDepth.Set(float64(len(p.items)))
	return p
}

func (p *pendingList) add(m models.Message, typ models.QueuedType, ts int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, models.PendingMessage{Message: m, Type: typ, QueuedTS: ts})
	p.persistLocked()
}

// replace swaps the whole list (after a retry pass) and re-persists it.
func (p *pendingList) replace(items []models.PendingMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = items
	p.persistLocked()
}

func (p *pendingList) snapshot() []models.PendingMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.PendingMessage, len(p.items))
	copy(out, p.items)
	return out
}

func (p *pendingList) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// persistLocked is best-effort: a cache write failure costs durability
// across a restart, not correctness of the in-memory queue.
func (p *pendingList) persistLocked() {
	telemetry.PendingDepth.Set(float64(len(p.items)))
	if len(p.items) == 0 {
		if err := p.store.Remove(p.key); err != nil {
			logger.Warn("pending_clear_failed", "key", p.key, "error", err)
		}
		return
	}
	raw, err := json.Marshal(p.items)
	if err != nil {
		logger.Warn("pending_marshal_failed", "key", p.key, "error", err)
		return
	}
	if err := p.store.Set(p.key, string(raw)); err != nil {
		logger.Warn("pending_persist_failed", "key", p.key, "error", err)
	}
}
