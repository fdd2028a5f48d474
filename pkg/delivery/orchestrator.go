// Package delivery implements the outbound message pipeline: optimistic
// local append, queued submission, offline pending retry, reply generation,
// fragmented playback, and transcript reconciliation.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cadence/pkg/cache"
	"cadence/pkg/connectivity"
	"cadence/pkg/convmeta"
	"cadence/pkg/fragment"
	"cadence/pkg/ids"
	"cadence/pkg/logger"
	"cadence/pkg/models"
	"cadence/pkg/queue"
	"cadence/pkg/sequence"
	"cadence/pkg/telemetry"
)

// Default and configuration values.
const (
	DefaultGenerationTimeout = 10 * time.Second
	DefaultQueueCapacity     = 4 * 1024
	remoteTimeout            = 5 * time.Second

	// DefaultFallbackReply is delivered when generation exceeds its
	// deadline; the turn still completes (degraded success).
	DefaultFallbackReply = "Hmm, give me a moment to think about that..."
	// DefaultApologyReply is delivered as an error-flagged message when
	// generation fails outright.
	DefaultApologyReply = "Sorry, something went wrong on my end. Could you say that again?"
)

// Config tunes one Orchestrator instance. Zero values take defaults.
type Config struct {
	// UserID identifies the local user; transcripts and the pending list
	// are scoped to it.
	UserID string

	Fragment fragment.Options

	GenerationTimeout time.Duration
	// GenerationRate caps reply generations per second (default 1, burst 3).
	GenerationRate  rate.Limit
	GenerationBurst int

	QueueCapacity int
	// FragmentPause is the inter-fragment pause (sequence.DefaultPause
	// when zero).
	FragmentPause time.Duration

	FallbackReply string
	ApologyReply  string
}

func (c *Config) setDefaults() {
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = DefaultGenerationTimeout
	}
	if c.GenerationRate <= 0 {
		c.GenerationRate = rate.Limit(1)
	}
	if c.GenerationBurst <= 0 {
		c.GenerationBurst = 3
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.Fragment.MaxLen == 0 {
		c.Fragment = fragment.DefaultOptions()
	}
	if c.FallbackReply == "" {
		c.FallbackReply = DefaultFallbackReply
	}
	if c.ApologyReply == "" {
		c.ApologyReply = DefaultApologyReply
	}
}

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("delivery: orchestrator closed")

// Orchestrator coordinates the full outbound path for one user. It owns the
// message queue, the active sequences and the pending list; the remote
// stores, the generator and the metadata updater are injected.
type Orchestrator struct {
	cfg     Config
	gen     Generator
	msgs    MessageStore
	meta    *convmeta.Updater
	conn    *connectivity.Signal
	cache   *cache.Store
	q       *queue.Queue
	seqs    *sequence.Manager
	limiter *rate.Limiter

	mu          sync.Mutex
	transcripts map[string][]models.Message // by conversation id
	companions  map[string]string           // conversation id -> companion id
	bases       map[string]models.Message   // sequence id -> complete record
	pending     *pendingList

	stop       chan struct{}
	wg         sync.WaitGroup
	connCancel func()
	closeOnce  sync.Once
	closed     bool
}

// New wires an Orchestrator. The pending list is reloaded from the local
// cache so entries deferred before a restart are retried. Call Run to start
// the queue worker and connectivity watcher; the Updater stays owned by the
// caller and must be closed after the orchestrator.
func New(cfg Config, gen Generator, msgs MessageStore, meta *convmeta.Updater, conn *connectivity.Signal, c *cache.Store) *Orchestrator {
	cfg.setDefaults()
	return &Orchestrator{
		cfg:         cfg,
		gen:         gen,
		msgs:        msgs,
		meta:        meta,
		conn:        conn,
		cache:       c,
		q:           queue.New(cfg.QueueCapacity),
		seqs:        sequence.NewManager(cfg.FragmentPause),
		limiter:     rate.NewLimiter(cfg.GenerationRate, cfg.GenerationBurst),
		transcripts: make(map[string][]models.Message),
		companions:  make(map[string]string),
		bases:       make(map[string]models.Message),
		pending:     loadPending(c, cfg.UserID),
		stop:        make(chan struct{}),
	}
}

// Run starts the queue worker and the connectivity watcher.
func (o *Orchestrator) Run() {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.q.RunWorker(o.stop, o.process)
	}()

	ch, cancel := o.conn.Subscribe()
	o.connCancel = cancel
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case <-o.stop:
				return
			case online, ok := <-ch:
				if !ok {
					return
				}
				if online {
					o.retryPending()
				}
			}
		}
	}()
}

// Send submits a user message. The message is appended to the local
// transcript immediately (optimistic, with a locally minted id) and queued
// for delivery; a full queue is reported to the caller rather than silently
// dropped.
func (o *Orchestrator) Send(ctx context.Context, conversationID, companionID, text string) (models.Message, error) {
	msg := models.Message{
		ID:             ids.NewLocal(),
		ConversationID: conversationID,
		CompanionID:    companionID,
		UserID:         o.cfg.UserID,
		Fragments:      []string{fragment.Normalize(text)},
		TS:             time.Now().UTC().UnixNano(),
	}
	if err := msg.Validate(); err != nil {
		return models.Message{}, err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return models.Message{}, ErrClosed
	}
	o.companions[conversationID] = companionID
	o.appendTranscriptLocked(msg)
	o.cacheTranscriptLocked(conversationID, companionID)
	o.mu.Unlock()

	if err := o.enqueue(models.QueuedUser, models.PriorityNormal, msg); err != nil {
		return models.Message{}, fmt.Errorf("queue message: %w", err)
	}
	return msg, nil
}

func (o *Orchestrator) enqueue(typ models.QueuedType, prio models.Priority, m models.Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := o.q.TryEnqueueBytes(typ, prio, m.ConversationID, m.ID, payload, m.TS); err != nil {
		logger.Warn("enqueue_failed", "type", string(typ), "conversation", m.ConversationID, "error", err)
		return err
	}
	telemetry.MessagesEnqueued.WithLabelValues(string(typ)).Inc()
	telemetry.QueueDepth.Set(float64(o.q.Len()))
	return nil
}

// process is the queue worker handler. Payloads are pooled; unmarshalling
// copies everything needed before the op is released.
func (o *Orchestrator) process(op *queue.Op) error {
	defer telemetry.QueueDepth.Set(float64(o.q.Len()))

	var m models.Message
	if err := json.Unmarshal(op.Payload, &m); err != nil {
		logger.Error("queued_payload_corrupt", "type", string(op.Type), "id", op.ID, "error", err)
		return err
	}

	switch op.Type {
	case models.QueuedUser:
		return o.deliverUser(m)
	case models.QueuedSystem:
		o.persistOrDefer(m, models.QueuedSystem)
		return nil
	case models.QueuedFragment:
		return o.persistFragment(m)
	case models.QueuedNotification:
		o.meta.Queue(m.ConversationID, convmeta.Update{LastMessage: m.Text(), LastUpdated: m.TS})
		return nil
	default:
		return fmt.Errorf("unknown queued type %q", op.Type)
	}
}

// deliverUser persists the user message and, when persistence succeeded,
// generates the companion reply. When offline the message goes to the
// pending list and generation is re-triggered by the retry pass instead.
func (o *Orchestrator) deliverUser(m models.Message) error {
	if !o.persistOrDefer(m, models.QueuedUser) {
		return nil
	}
	o.respond(m)
	return nil
}

// persistOrDefer writes m to the remote store, deferring to the pending
// list when offline or on write failure. Reports whether the write landed.
func (o *Orchestrator) persistOrDefer(m models.Message, typ models.QueuedType) bool {
	if !o.conn.IsOnline() {
		o.pending.add(m, typ, time.Now().UTC().UnixNano())
		logger.Info("message_deferred_offline", "id", m.ID, "conversation", m.ConversationID)
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()
	if err := o.msgs.Insert(ctx, m); err != nil {
		o.pending.add(m, typ, time.Now().UTC().UnixNano())
		logger.Warn("message_persist_failed_deferred", "id", m.ID, "conversation", m.ConversationID, "error", err)
		return false
	}
	return true
}

// respond generates and delivers the companion reply to a user message.
func (o *Orchestrator) respond(userMsg models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.GenerationTimeout)
	defer cancel()

	reply, err := o.generate(ctx, userMsg.Text())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			telemetry.GenerationTimeouts.Inc()
			logger.Warn("generation_timeout", "conversation", userMsg.ConversationID)
			reply = o.cfg.FallbackReply
		} else {
			telemetry.GenerationFailures.Inc()
			logger.Error("generation_failed", "conversation", userMsg.ConversationID, "error", err)
			o.deliverBot(userMsg.ConversationID, userMsg.CompanionID, o.cfg.ApologyReply, true)
			return
		}
	}
	o.deliverBot(userMsg.ConversationID, userMsg.CompanionID, reply, false)
}

func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", context.DeadlineExceeded
	}
	return o.gen.Generate(ctx, prompt)
}

// deliverBot fragments a companion reply and delivers it: single fragments
// go straight to the transcript and store; multi-fragment replies are
// persisted once as a complete record and then played out over time.
func (o *Orchestrator) deliverBot(conversationID, companionID, text string, genError bool) {
	frags, delays := fragment.Split(text, o.cfg.Fragment)

	msg := models.Message{
		ID:             ids.New(),
		ConversationID: conversationID,
		CompanionID:    companionID,
		UserID:         o.cfg.UserID,
		IsBot:          true,
		Fragments:      frags,
		TS:             time.Now().UTC().UnixNano(),
		Meta:           models.Meta{Error: genError},
	}

	if len(frags) < 2 {
		o.mu.Lock()
		o.appendTranscriptLocked(msg)
		o.cacheTranscriptLocked(conversationID, companionID)
		o.mu.Unlock()
		o.persistOrDefer(msg, models.QueuedSystem)
		o.meta.Queue(conversationID, convmeta.Update{
			LastMessage: msg.Text(),
			UnreadDelta: 1,
			LastUpdated: msg.TS,
		})
		return
	}

	msg.Meta.HasFragments = true
	msg.Meta.IsCompleteVersion = true
	o.persistOrDefer(msg, models.QueuedSystem)

	res, err := o.seqs.Start(msg, delays)
	if err != nil {
		logger.Error("sequence_start_failed", "conversation", conversationID, "error", err)
		return
	}
	o.mu.Lock()
	o.bases[res.Seq.ID] = msg
	o.mu.Unlock()
	o.handleEvents(res.Events)

	o.wg.Add(1)
	go o.playSequence(res.Seq.ID, res.Wait)
}

// playSequence drives one sequence with real timers. A stop signal exits
// without advancing; Close force-completes whatever remains.
func (o *Orchestrator) playSequence(seqID string, wait time.Duration) {
	defer o.wg.Done()
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-timer.C:
		}
		events, next, done, err := o.seqs.Advance(seqID)
		if err != nil {
			// force-completed elsewhere
			return
		}
		o.handleEvents(events)
		if done {
			return
		}
		timer.Reset(next)
	}
}

// handleEvents applies a batch of sequence transitions: fragment events
// become transcript entries and queued per-fragment store writes, terminal
// events roll the conversation metadata up.
func (o *Orchestrator) handleEvents(events []sequence.Event) {
	forced := make(map[string]bool)
	for _, ev := range events {
		if ev.Kind == sequence.EventCompleted && ev.ForceCompleted {
			forced[ev.SequenceID] = true
		}
	}

	for _, ev := range events {
		switch ev.Kind {
		case sequence.EventFragment:
			o.mu.Lock()
			base, ok := o.bases[ev.SequenceID]
			closed := o.closed
			o.mu.Unlock()
			if !ok {
				continue
			}
			rec := FragmentRecord(base, ev.Index, ev.Fragment)
			rec.Meta.ForceCompleted = forced[ev.SequenceID]

			o.mu.Lock()
			o.appendTranscriptLocked(rec)
			o.cacheTranscriptLocked(base.ConversationID, base.CompanionID)
			o.mu.Unlock()

			if closed {
				// queue is draining; write directly so the record is
				// not lost on shutdown
				_ = o.persistFragment(rec)
			} else if err := o.enqueue(models.QueuedFragment, models.PriorityHigh, rec); err != nil {
				_ = o.persistFragment(rec)
			}

		case sequence.EventCompleted:
			o.mu.Lock()
			base, ok := o.bases[ev.SequenceID]
			delete(o.bases, ev.SequenceID)
			o.mu.Unlock()
			if !ok {
				continue
			}
			o.meta.Queue(base.ConversationID, convmeta.Update{
				LastMessage: base.Fragments[len(base.Fragments)-1],
				UnreadDelta: len(base.Fragments),
				LastUpdated: time.Now().UTC().UnixNano(),
			})

		default:
			logger.Debug("sequence_event", "kind", ev.Kind.String(), "seq", ev.SequenceID, "index", ev.Index)
		}
	}
}

// persistFragment writes an exploded per-fragment record to the remote
// store. Best-effort: the complete record already carries the content, and
// reconciliation re-derives missing fragment records on load.
func (o *Orchestrator) persistFragment(rec models.Message) error {
	if !o.conn.IsOnline() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()
	if err := o.msgs.Insert(ctx, rec); err != nil {
		logger.Warn("fragment_persist_failed", "id", rec.ID, "conversation", rec.ConversationID, "error", err)
		return err
	}
	return nil
}

// ForceCompleteConversation flushes any active sequence for the
// conversation so all remaining fragments land immediately, optionally
// marking the conversation read (conversation switch / app backgrounding).
func (o *Orchestrator) ForceCompleteConversation(conversationID string, markAsRead bool) {
	if seq, ok := o.seqs.ActiveFor(conversationID); ok {
		events, err := o.seqs.ForceComplete(seq.ID)
		if err == nil {
			o.handleEvents(events)
		}
	}
	if markAsRead {
		o.MarkRead(conversationID)
	}
}

// MarkRead zeroes the unread count for a conversation, flushing
// immediately rather than waiting out the debounce window.
func (o *Orchestrator) MarkRead(conversationID string) {
	o.meta.Queue(conversationID, convmeta.Update{MarkAsRead: true, LastUpdated: time.Now().UTC().UnixNano()})
	o.meta.FlushNow(conversationID)
}

// retryPending re-attempts every deferred message in original order.
// Delivery is at-least-once: an entry is only removed after its insert
// succeeds, and user messages get their reply generation re-triggered.
func (o *Orchestrator) retryPending() {
	items := o.pending.snapshot()
	if len(items) == 0 {
		return
	}
	logger.Info("pending_retry_started", "count", len(items))

	var remaining []models.PendingMessage
	var respondTo []models.Message
	for _, it := range items {
		ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
		err := o.msgs.Insert(ctx, it.Message)
		cancel()
		if err != nil {
			it.Attempts++
			remaining = append(remaining, it)
			logger.Warn("pending_retry_failed", "id", it.Message.ID, "attempts", it.Attempts, "error", err)
			continue
		}
		telemetry.PendingRetries.Inc()
		if it.Type == models.QueuedUser {
			respondTo = append(respondTo, it.Message)
		}
	}
	o.pending.replace(remaining)

	for _, m := range respondTo {
		o.respond(m)
	}
}

// PendingCount reports the current pending list depth.
func (o *Orchestrator) PendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending.len()
}

// LoadTranscript loads the conversation history, reconciling mixed
// complete/fragment representations into the uniform fragment-level view.
// Offline (or on remote failure) it serves the cached snapshot. Complete
// records superseded by exploded fragments are deleted from the remote
// store opportunistically.
func (o *Orchestrator) LoadTranscript(ctx context.Context, conversationID, companionID string) ([]models.Message, error) {
	var records []models.Message
	fromRemote := false
	if o.conn.IsOnline() {
		remote, err := o.msgs.Query(ctx, conversationID)
		if err != nil {
			logger.Warn("transcript_query_failed", "conversation", conversationID, "error", err)
		} else {
			records = remote
			fromRemote = true
		}
	}
	if !fromRemote {
		records = o.cachedTranscript(companionID)
	}

	if fromRemote {
		o.cleanupSuperseded(ctx, records)
	}
	rec := Reconcile(records)

	o.mu.Lock()
	o.transcripts[conversationID] = rec
	o.companions[conversationID] = companionID
	o.cacheTranscriptLocked(conversationID, companionID)
	o.mu.Unlock()
	return rec, nil
}

// cleanupSuperseded deletes complete records whose exploded fragments are
// already present remotely. Best-effort; reconciliation hides them either
// way.
func (o *Orchestrator) cleanupSuperseded(ctx context.Context, records []models.Message) {
	hasFragments := make(map[string]bool)
	for _, m := range records {
		if m.Meta.IsFragment {
			hasFragments[m.BaseID()] = true
		}
	}
	for _, m := range records {
		if m.IsComplete() && !m.Meta.IsFragment && hasFragments[m.ID] {
			if err := o.msgs.Delete(ctx, m.ID); err != nil {
				logger.Warn("superseded_delete_failed", "id", m.ID, "error", err)
			}
		}
	}
}

// Transcript returns a copy of the in-memory transcript for a conversation.
func (o *Orchestrator) Transcript(conversationID string) []models.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.Message, len(o.transcripts[conversationID]))
	copy(out, o.transcripts[conversationID])
	return out
}

// Queue exposes the underlying message queue for monitoring.
func (o *Orchestrator) Queue() *queue.Queue { return o.q }

// Close stops the workers, reroutes undelivered queue entries to the
// durable pending list, and force-completes every active sequence (their
// remaining fragments are delivered, never dropped). The sequence manager
// closes only after the worker has stopped, so a delivery in flight at
// shutdown cannot start a sequence that nothing force-completes. The
// injected Updater and cache stay open; the caller closes them after.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		o.mu.Unlock()

		close(o.stop)
		if o.connCancel != nil {
			o.connCancel()
		}
		o.q.CloseAndDrainWith(o.salvageOp)
		o.wg.Wait()
		o.handleEvents(o.seqs.Close())
	})
}

// salvageOp reroutes a queue entry the shutdown drain would otherwise
// discard. Accepted user and system messages go to the pending list so the
// retry pass delivers them after restart; fragment records get a direct
// best-effort write (their complete record is already stored); metadata
// notifications go straight to the updater.
func (o *Orchestrator) salvageOp(op *queue.Op) {
	var m models.Message
	if err := json.Unmarshal(op.Payload, &m); err != nil {
		logger.Error("queued_payload_corrupt", "type", string(op.Type), "id", op.ID, "error", err)
		return
	}
	switch op.Type {
	case models.QueuedUser, models.QueuedSystem:
		o.pending.add(m, op.Type, time.Now().UTC().UnixNano())
		logger.Info("queued_message_deferred_on_close", "id", m.ID, "conversation", m.ConversationID)
	case models.QueuedFragment:
		_ = o.persistFragment(m)
	case models.QueuedNotification:
		o.meta.Queue(m.ConversationID, convmeta.Update{LastMessage: m.Text(), LastUpdated: m.TS})
	}
}
