package queue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"cadence/pkg/models"
)

func drainOrder(t *testing.T, q *Queue, n int) []string {
	t.Helper()
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	stop := make(chan struct{})
	go func() {
		defer close(done)
		q.RunWorker(stop, func(op *Op) error {
			mu.Lock()
			got = append(got, op.ID)
			if len(got) == n {
				close(stop)
			}
			mu.Unlock()
			return nil
		})
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not drain %d items", n)
	}
	return got
}

func TestQueue_PriorityThenFIFO(t *testing.T) {
	q := New(16)
	ids := []struct {
		id   string
		prio models.Priority
	}{
		{"n1", models.PriorityNormal},
		{"l1", models.PriorityLow},
		{"h1", models.PriorityHigh},
		{"n2", models.PriorityNormal},
		{"h2", models.PriorityHigh},
		{"l2", models.PriorityLow},
	}
	for _, e := range ids {
		if err := q.TryEnqueueBytes(models.QueuedUser, e.prio, "c1", e.id, []byte("{}"), 0); err != nil {
			t.Fatalf("enqueue %s: %v", e.id, err)
		}
	}
	got := drainOrder(t, q, len(ids))
	want := []string{"h1", "h2", "n1", "n2", "l1", "l2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dequeue order: expected %v, got %v", want, got)
		}
	}
}

func TestQueue_FullLane(t *testing.T) {
	q := New(2)
	for i := 0; i < 2; i++ {
		if err := q.TryEnqueueBytes(models.QueuedUser, models.PriorityNormal, "c1", fmt.Sprintf("m%d", i), nil, 0); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := q.TryEnqueueBytes(models.QueuedUser, models.PriorityNormal, "c1", "overflow", nil, 0); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected 1 dropped, got %d", q.Dropped())
	}
	// other lanes unaffected
	if err := q.TryEnqueueBytes(models.QueuedUser, models.PriorityHigh, "c1", "h", nil, 0); err != nil {
		t.Fatalf("high lane enqueue: %v", err)
	}
}

func TestQueue_ConcurrentEnqueueNoLoss(t *testing.T) {
	q := New(4096)
	const producers = 8
	const perProducer = 200
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				id := fmt.Sprintf("p%d-%d", p, i)
				if err := q.TryEnqueueBytes(models.QueuedUser, models.PriorityNormal, "c1", id, []byte(id), 0); err != nil {
					t.Errorf("enqueue %s: %v", id, err)
				}
			}
		}(p)
	}
	wg.Wait()
	got := drainOrder(t, q, producers*perProducer)
	if len(got) != producers*perProducer {
		t.Fatalf("lost entries: expected %d, got %d", producers*perProducer, len(got))
	}
	seen := make(map[string]bool, len(got))
	for _, id := range got {
		if seen[id] {
			t.Fatalf("duplicate entry %s", id)
		}
		seen[id] = true
	}
}

func TestQueue_PayloadCopied(t *testing.T) {
	q := New(4)
	payload := []byte(`{"k":"v"}`)
	if err := q.TryEnqueueBytes(models.QueuedUser, models.PriorityNormal, "c1", "m1", payload, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// mutate the caller's buffer after enqueue
	payload[2] = 'X'

	stop := make(chan struct{})
	var got string
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.RunWorker(stop, func(op *Op) error {
			got = string(op.Payload)
			close(stop)
			return nil
		})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker stalled")
	}
	if got != `{"k":"v"}` {
		t.Fatalf("payload not isolated from caller: %q", got)
	}
}

func TestQueue_CloseDrainHandsBackUndelivered(t *testing.T) {
	q := New(8)
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("m%d", i)
		if err := q.TryEnqueueBytes(models.QueuedUser, models.PriorityNormal, "c1", id, []byte(id), 0); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	var ids, payloads []string
	q.CloseAndDrainWith(func(op *Op) {
		ids = append(ids, op.ID)
		payloads = append(payloads, string(op.Payload))
	})

	want := []string{"m0", "m1", "m2"}
	if len(ids) != len(want) {
		t.Fatalf("expected %d drained ops, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] || payloads[i] != want[i] {
			t.Fatalf("drained op %d = %q/%q, want %q", i, ids[i], payloads[i], want[i])
		}
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty after drain: %d", q.Len())
	}
}

func TestQueue_CloseRejectsEnqueue(t *testing.T) {
	q := New(4)
	q.CloseAndDrain()
	if err := q.TryEnqueueBytes(models.QueuedUser, models.PriorityNormal, "c1", "m1", nil, 0); err != ErrQueueClosed {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}
