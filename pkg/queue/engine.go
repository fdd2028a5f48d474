// Package queue implements the bounded, priority-aware buffer of outbound
// messages that decouples submission from delivery. Three lanes (high,
// normal, low) preserve FIFO order within a priority while higher-priority
// entries are always drained first.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"cadence/pkg/models"
)

// Default and configuration values.
const defaultLaneCapacity = 4 * 1024
const fallbackLaneCapacity = 256

// Counters for instrumentation.
var (
	enqueueTotal     uint64
	enqueueFailTotal uint64
	enqSeq           uint64
)

// Queue is a threadsafe, fixed-capacity in-memory queue of message ops.
// A single active consumer is assumed; enqueue is safe for concurrent
// producers.
type Queue struct {
	lanes    [3]chan *Item
	capacity int
	dropped  uint64
	closed   int32

	enqWg     sync.WaitGroup
	closeOnce sync.Once
	inFlight  int64
}

// New creates a Queue with the given per-lane capacity (>0).
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = fallbackLaneCapacity
	}
	q := &Queue{capacity: capacity}
	for i := range q.lanes {
		q.lanes[i] = make(chan *Item, capacity)
	}
	return q
}

func laneIndex(p models.Priority) int {
	switch p {
	case models.PriorityHigh:
		return 0
	case models.PriorityLow:
		return 2
	default:
		return 1
	}
}

// TryEnqueue enqueues an Op without blocking; returns ErrQueueFull if the
// lane is at capacity.
func (q *Queue) TryEnqueue(op *Op) error {
	atomic.AddUint64(&enqueueTotal, 1)

	if atomic.LoadInt32(&q.closed) == 1 {
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ErrQueueClosed
	}

	q.enqWg.Add(1)
	defer q.enqWg.Done()

	if atomic.LoadInt32(&q.closed) == 1 {
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ErrQueueClosed
	}

	it := q.wrap(op)

	select {
	case q.lanes[laneIndex(op.Priority)] <- it:
		atomic.AddInt64(&q.inFlight, 1)
		return nil
	default:
		q.release(it)
		atomic.AddUint64(&q.dropped, 1)
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ErrQueueFull
	}
}

// Enqueue blocks until op is enqueued or ctx is cancelled.
func (q *Queue) Enqueue(ctx context.Context, op *Op) error {
	atomic.AddUint64(&enqueueTotal, 1)

	if atomic.LoadInt32(&q.closed) == 1 {
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ErrQueueClosed
	}

	q.enqWg.Add(1)
	defer q.enqWg.Done()

	if atomic.LoadInt32(&q.closed) == 1 {
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ErrQueueClosed
	}

	it := q.wrap(op)

	select {
	case q.lanes[laneIndex(op.Priority)] <- it:
		atomic.AddInt64(&q.inFlight, 1)
		return nil
	case <-ctx.Done():
		q.release(it)
		atomic.AddUint64(&q.dropped, 1)
		atomic.AddUint64(&enqueueFailTotal, 1)
		return ctx.Err()
	}
}

// wrap copies op into pooled storage and assigns its enqueue sequence.
func (q *Queue) wrap(op *Op) *Item {
	newOp := opPool.Get().(*Op)
	*newOp = *op
	newOp.EnqSeq = atomic.AddUint64(&enqSeq, 1)

	var bb *bytebufferpool.ByteBuffer
	if len(op.Payload) > 0 {
		bb = bytebufferpool.Get()
		bb.B = append(bb.B[:0], op.Payload...)
		newOp.Payload = bb.B[:len(op.Payload)]
	}

	it := itemPool.Get().(*Item)
	*it = Item{Op: newOp, buf: bb, q: q}
	return it
}

func (q *Queue) release(it *Item) {
	if it.buf != nil {
		bytebufferpool.Put(it.buf)
		it.buf = nil
	}
	if it.Op != nil {
		it.Op.Payload = nil
		opPool.Put(it.Op)
		it.Op = nil
	}
	it.q = nil
	itemPool.Put(it)
}

// tryRecv performs a non-blocking receive in priority order.
func (q *Queue) tryRecv() (*Item, bool) {
	for _, lane := range q.lanes {
		select {
		case it, ok := <-lane:
			return it, ok
		default:
		}
	}
	return nil, true
}

// RunWorker dequeues items in priority-then-FIFO order and calls handler
// for each, calling Item.Done() always. If the handler fails the entry is
// not re-queued; retry responsibility belongs to the caller's pending
// mechanism. Exits when stop fires or the queue closes.
func (q *Queue) RunWorker(stop <-chan struct{}, handler func(*Op) error) {
	for {
		// drain available items high-lane first before blocking
		it, open := q.tryRecv()
		if !open {
			return
		}
		if it == nil {
			select {
			case it, open = <-q.lanes[0]:
			case it, open = <-q.lanes[1]:
			case it, open = <-q.lanes[2]:
			case <-stop:
				return
			}
			if !open {
				return
			}
		}
		func(it *Item) {
			defer it.Done()
			_ = handler(it.Op)
		}(it)

		select {
		case <-stop:
			return
		default:
		}
	}
}

// CloseAndDrain closes the queue and drains remaining items, ensuring
// their resources are released. Safe to call once; later enqueues fail
// with ErrQueueClosed.
func (q *Queue) CloseAndDrain() {
	q.CloseAndDrainWith(nil)
}

// CloseAndDrainWith closes the queue and hands every undelivered op to fn
// before releasing it, so accepted entries can be rerouted instead of
// dropped at shutdown. The op and its payload are pooled and valid only
// for the duration of the call; fn must copy anything it keeps. A nil fn
// discards the remainder.
func (q *Queue) CloseAndDrainWith(fn func(*Op)) {
	q.closeOnce.Do(func() {
		atomic.StoreInt32(&q.closed, 1)
		q.enqWg.Wait()
		for _, lane := range q.lanes {
			close(lane)
		}
		for _, lane := range q.lanes {
			for it := range lane {
				if fn != nil {
					fn(it.Op)
				}
				it.Done()
			}
		}
	})
}
