// Package gojob runs the hooks delivery jobs on go-job queues and workers.
package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-hooks/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const defaultDedupPolicy = "drop"

// RetryPolicy bounds how often and how late a failed job is requeued.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// DefaultRetryPolicy caps the requeue delay at the publisher's maximum
// retry delay and dead-letters a job after five attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		MaxDelay:        core.DefaultMaxRetryDelay,
		DeadLetterOnMax: true,
	}
}

// NormalizeAttempt clamps the delay and stops requeueing once attempt reaches
// MaxAttempts.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	out.Delay = max(out.Delay, 0)
	if p.MaxDelay > 0 {
		out.Delay = min(out.Delay, p.MaxDelay)
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		out.DeadLetter = out.DeadLetter || p.DeadLetterOnMax
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// KnownJob reports whether jobID is one of the hooks jobs.
func KnownJob(jobID string) bool {
	switch strings.TrimSpace(jobID) {
	case core.JobIDDeliveryDrain, core.JobIDEventQueue:
		return true
	default:
		return false
	}
}

func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	jobID := strings.TrimSpace(msg.JobID)
	scriptPath := strings.TrimSpace(msg.ScriptPath)
	if scriptPath == "" {
		scriptPath = jobID
	}
	dedup := strings.TrimSpace(msg.DedupPolicy)
	if dedup == "" && strings.TrimSpace(msg.IdempotencyKey) != "" {
		dedup = defaultDedupPolicy
	}
	return &job.ExecutionMessage{
		JobID:          jobID,
		ScriptPath:     scriptPath,
		Parameters:     copyParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(dedup),
	}
}

func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// Enqueuer submits hooks jobs to a go-job queue. Unknown job ids and queue
// events without an idempotency key are rejected before they reach it.
type Enqueuer struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuer(enqueuer queue.Enqueuer) *Enqueuer {
	return &Enqueuer{enqueuer: enqueuer}
}

func (e *Enqueuer) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return core.BadInputError("gojob: execution message is required", nil)
	}
	if !KnownJob(msg.JobID) {
		return core.BadInputError("gojob: unknown job", map[string]any{"job_id": msg.JobID})
	}
	if msg.JobID == core.JobIDEventQueue && strings.TrimSpace(msg.IdempotencyKey) == "" {
		return core.BadInputError("gojob: queue event job requires an idempotency key", nil)
	}
	return e.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
}

// Dequeuer counts how often each job has been handed out so a Nack can
// apply the retry policy. Jobs are keyed by idempotency key, falling back
// to the job id.
type Dequeuer struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy

	mu       sync.Mutex
	attempts map[string]int
}

func NewDequeuer(dequeuer queue.Dequeuer, policy RetryPolicy) *Dequeuer {
	return &Dequeuer{dequeuer: dequeuer, policy: policy, attempts: map[string]int{}}
}

func (d *Dequeuer) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if d == nil || d.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	raw, err := d.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("gojob: dequeuer returned no delivery")
	}
	key := attemptKey(raw.Message())
	d.mu.Lock()
	d.attempts[key]++
	attempt := d.attempts[key]
	d.mu.Unlock()
	return &Delivery{delivery: raw, policy: d.policy, attempt: attempt, done: func() { d.forget(key) }}, nil
}

// Attempts reports the deliveries handed out so far for key.
func (d *Dequeuer) Attempts(key string) int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts[key]
}

func (d *Dequeuer) forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.attempts, key)
}

type Delivery struct {
	delivery queue.Delivery
	policy   RetryPolicy
	attempt  int
	done     func()
}

func NewDelivery(delivery queue.Delivery, policy RetryPolicy, attempt int) *Delivery {
	return &Delivery{delivery: delivery, policy: policy, attempt: attempt}
}

func (d *Delivery) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

func (d *Delivery) Attempt() int {
	if d == nil {
		return 0
	}
	return d.attempt
}

func (d *Delivery) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	if err := d.delivery.Ack(ctx); err != nil {
		return err
	}
	d.finish()
	return nil
}

func (d *Delivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	normalized := d.policy.NormalizeAttempt(opts, d.attempt)
	if err := d.delivery.Nack(ctx, queue.NackOptions{
		Delay:      normalized.Delay,
		Requeue:    normalized.Requeue,
		DeadLetter: normalized.DeadLetter,
		Reason:     normalized.Reason,
	}); err != nil {
		return err
	}
	if !normalized.Requeue {
		d.finish()
	}
	return nil
}

func (d *Delivery) finish() {
	if d.done != nil {
		d.done()
	}
}

// WorkerHook forwards go-job worker events to a hooks job hook.
type WorkerHook struct {
	hook core.JobWorkerHook
}

func NewWorkerHook(hook core.JobWorkerHook) *WorkerHook {
	return &WorkerHook{hook: hook}
}

func (w *WorkerHook) OnStart(ctx context.Context, event worker.Event) {
	if w == nil || w.hook == nil {
		return
	}
	w.hook.OnStart(ctx, workerEvent(event))
}

func (w *WorkerHook) OnSuccess(ctx context.Context, event worker.Event) {
	if w == nil || w.hook == nil {
		return
	}
	w.hook.OnSuccess(ctx, workerEvent(event))
}

func (w *WorkerHook) OnFailure(ctx context.Context, event worker.Event) {
	if w == nil || w.hook == nil {
		return
	}
	w.hook.OnFailure(ctx, workerEvent(event))
}

func (w *WorkerHook) OnRetry(ctx context.Context, event worker.Event) {
	if w == nil || w.hook == nil {
		return
	}
	w.hook.OnRetry(ctx, workerEvent(event))
}

func workerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   FromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func attemptKey(msg *job.ExecutionMessage) string {
	if msg == nil {
		return ""
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return strings.TrimSpace(msg.JobID)
}

func copyParams(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer = (*Enqueuer)(nil)
	_ core.JobDelivery = (*Delivery)(nil)
	_ core.JobDequeuer = (*Dequeuer)(nil)
	_ worker.Hook      = (*WorkerHook)(nil)
)
