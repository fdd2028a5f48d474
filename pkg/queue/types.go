package queue

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"cadence/pkg/models"
)

// Op is a lightweight in-memory representation of a queued outbound
// message destined for the delivery pipeline. Payload may be backed by a
// pooled ByteBuffer; consumers must call Item.Done() when finished.
type Op struct {
	// Type classifies the entry (user, system, fragment, notification).
	Type models.QueuedType
	// Priority selects the queue lane.
	Priority     models.Priority
	Conversation string
	ID           string
	// Payload holds the JSON-encoded message (may be nil).
	Payload []byte
	// TS is an optional client timestamp (nanoseconds).
	TS int64
	// EnqSeq is a monotonic enqueue sequence assigned when the op is
	// accepted into the queue. It is used for deterministic ordering.
	EnqSeq uint64
}

// Item wraps an Op and owns a pooled ByteBuffer if one was used. Consumers
// MUST call Done() exactly once after processing the item to return pooled
// resources.
type Item struct {
	Op *Op

	// internal fields
	buf  *bytebufferpool.ByteBuffer
	once sync.Once
	q    *Queue
}

// Done releases internal pooled resources (buffer + op) back to the pool.
func (it *Item) Done() {
	it.once.Do(func() {
		if it.q != nil {
			atomic.AddInt64(&it.q.inFlight, -1)
			it.q = nil
		}
		if it.buf != nil {
			// avoid retaining huge buffers in the pool
			if cap(it.buf.B) > maxPooledBuffer {
				it.buf = nil
			} else {
				bytebufferpool.Put(it.buf)
				it.buf = nil
			}
		}
		// clear slice header to avoid retention
		if it.Op != nil {
			it.Op.Payload = nil
			opPool.Put(it.Op)
			it.Op = nil
		}
		itemPool.Put(it)
	})
}

var opPool = sync.Pool{New: func() any { return &Op{} }}
var itemPool = sync.Pool{New: func() any { return &Item{} }}

// maxPooledBuffer controls the largest buffer size that will be returned
// to the pooled ByteBuffer. Buffers larger than this are dropped to avoid
// unbounded resident memory.
var maxPooledBuffer = 256 * 1024 // 256 KiB

// ErrQueueFull is returned by TryEnqueue when the target lane is at capacity.
var ErrQueueFull = errors.New("message queue full")

// ErrQueueClosed is returned when enqueue operations are attempted after the
// queue has closed.
var ErrQueueClosed = errors.New("message queue closed")
