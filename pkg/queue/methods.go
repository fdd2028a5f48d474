package queue

import (
	"sync/atomic"

	"cadence/pkg/models"
)

// TryEnqueueBytes copies payload into a pooled buffer and enqueues a new Op
// constructed from the provided fields.
func (q *Queue) TryEnqueueBytes(typ models.QueuedType, prio models.Priority, conversation, id string, payload []byte, ts int64) error {
	return q.TryEnqueue(&Op{Type: typ, Priority: prio, Conversation: conversation, ID: id, Payload: payload, TS: ts})
}

// Len returns the current number of queued items across all lanes.
func (q *Queue) Len() int {
	n := 0
	for _, lane := range q.lanes {
		n += len(lane)
	}
	return n
}

// Cap returns the configured per-lane capacity.
func (q *Queue) Cap() int { return q.capacity }

// Dropped returns the number of operations dropped due to a full lane or
// context cancellation during enqueue.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }

// EnqueuedTotal returns total attempted enqueues.
func EnqueuedTotal() uint64 { return atomic.LoadUint64(&enqueueTotal) }

// FailedTotal returns total enqueue failures.
func FailedTotal() uint64 { return atomic.LoadUint64(&enqueueFailTotal) }
