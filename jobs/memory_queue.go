package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-hooks/core"
)

// MemoryQueue is an in-process job queue. Jobs with the drop dedup policy are
// ignored while another job with the same idempotency key is pending or
// running. Dead-lettered jobs are kept for inspection.
type MemoryQueue struct {
	mu         sync.Mutex
	pending    []*core.JobExecutionMessage
	inFlight   map[string]struct{}
	attempts   map[*core.JobExecutionMessage]int
	deadLetter []*core.JobExecutionMessage
	ready      chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		inFlight: map[string]struct{}{},
		attempts: map[*core.JobExecutionMessage]int{},
		ready:    make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	if msg == nil {
		return fmt.Errorf("jobs: execution message is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.isDuplicate(msg) {
		return nil
	}
	q.pending = append(q.pending, msg)
	if key := dedupKey(msg); key != "" {
		q.inFlight[key] = struct{}{}
	}
	q.signal()
	return nil
}

// Dequeue blocks until a job is available or ctx is done.
func (q *MemoryQueue) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			msg := q.pending[0]
			q.pending = q.pending[1:]
			if len(q.pending) > 0 {
				q.signal()
			}
			q.attempts[msg]++
			attempt := q.attempts[msg]
			q.mu.Unlock()
			return &memoryDelivery{queue: q, msg: msg, attempt: attempt}, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		}
	}
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InFlight counts keyed jobs that are pending, running or waiting to be
// requeued.
func (q *MemoryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

func (q *MemoryQueue) DeadLetters() []*core.JobExecutionMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*core.JobExecutionMessage(nil), q.deadLetter...)
}

func (q *MemoryQueue) isDuplicate(msg *core.JobExecutionMessage) bool {
	key := dedupKey(msg)
	if key == "" {
		return false
	}
	_, ok := q.inFlight[key]
	return ok
}

func (q *MemoryQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) finish(msg *core.JobExecutionMessage) {
	delete(q.attempts, msg)
	if key := dedupKey(msg); key != "" {
		delete(q.inFlight, key)
	}
}

func dedupKey(msg *core.JobExecutionMessage) string {
	if !strings.EqualFold(strings.TrimSpace(msg.DedupPolicy), DedupDrop) {
		return ""
	}
	return strings.TrimSpace(msg.IdempotencyKey)
}

type memoryDelivery struct {
	queue   *MemoryQueue
	msg     *core.JobExecutionMessage
	attempt int
	once    sync.Once
}

func (d *memoryDelivery) Message() *core.JobExecutionMessage {
	return d.msg
}

// Attempt is 1 on the first dequeue of a message and grows with each requeue.
func (d *memoryDelivery) Attempt() int {
	return d.attempt
}

func (d *memoryDelivery) Ack(context.Context) error {
	d.once.Do(func() {
		d.queue.mu.Lock()
		defer d.queue.mu.Unlock()
		d.queue.finish(d.msg)
	})
	return nil
}

// Nack requeues after opts.Delay unless the job is dead lettered or not
// requeued.
func (d *memoryDelivery) Nack(_ context.Context, opts core.JobNackOptions) error {
	d.once.Do(func() {
		q := d.queue
		q.mu.Lock()
		defer q.mu.Unlock()
		switch {
		case opts.DeadLetter:
			q.finish(d.msg)
			q.deadLetter = append(q.deadLetter, d.msg)
		case !opts.Requeue:
			q.finish(d.msg)
		case opts.Delay > 0:
			msg := d.msg
			time.AfterFunc(opts.Delay, func() {
				q.mu.Lock()
				defer q.mu.Unlock()
				q.pending = append(q.pending, msg)
				q.signal()
			})
		default:
			q.pending = append(q.pending, d.msg)
			q.signal()
		}
	})
	return nil
}

var (
	_ core.JobEnqueuer = (*MemoryQueue)(nil)
	_ core.JobDequeuer = (*MemoryQueue)(nil)
)
