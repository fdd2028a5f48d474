package models

// QueuedType classifies an entry awaiting processing in the message queue.
type QueuedType string

const (
	QueuedUser         QueuedType = "user"
	QueuedSystem       QueuedType = "system"
	QueuedFragment     QueuedType = "fragment"
	QueuedNotification QueuedType = "notification"
)

// Priority orders queue lanes. Higher-priority entries are dequeued before
// lower-priority ones submitted later; FIFO within the same priority.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// QueuedMessage is one entry in the message queue. The queue exclusively
// owns entries until they are dequeued for processing.
type QueuedMessage struct {
	Message  Message    `json:"message"`
	Type     QueuedType `json:"type"`
	Priority Priority   `json:"priority"`
}

// PendingMessage is a message that failed or was deferred because the
// remote store was unreachable. The pending list is persisted to the local
// durable cache and survives process restarts.
type PendingMessage struct {
	Message Message    `json:"message"`
	Type    QueuedType `json:"type"`
	// QueuedTS records when the entry was deferred (UTC nanoseconds).
	QueuedTS int64 `json:"queued_ts"`
	// Attempts counts delivery attempts made so far.
	Attempts int `json:"attempts,omitempty"`
}
