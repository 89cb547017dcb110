package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-hooks/core"
	"github.com/goliatone/go-hooks/publisher"
	"github.com/google/uuid"
)

const (
	ParamMessageID = "message_id"
	ParamEventName = "event_name"
	ParamPayload   = "payload"
)

const (
	defaultIdleDelay   = time.Second
	defaultMaxAttempts = 5
)

type EventPublisher interface {
	QueueEvent(ctx context.Context, messageID uuid.UUID, eventName string, payload []byte) error
	DeliverNow(ctx context.Context) (publisher.DeliveryStats, error)
}

type Option func(*Runner)

func WithLogger(logger core.Logger) Option {
	return func(r *Runner) {
		if r != nil && logger != nil {
			r.logger = logger
		}
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(r *Runner) {
		if r != nil && provider != nil {
			r.loggerProvider = provider
		}
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(r *Runner) {
		if r != nil && recorder != nil {
			r.metrics = recorder
		}
	}
}

func WithWorkerHook(hook core.JobWorkerHook) Option {
	return func(r *Runner) {
		if r != nil && hook != nil {
			r.hook = hook
		}
	}
}

// WithRetryDelay sets the nack delay for jobs that fail with an error.
func WithRetryDelay(delay time.Duration) Option {
	return func(r *Runner) {
		if r != nil && delay >= 0 {
			r.retryDelay = delay
		}
	}
}

// WithMaxAttempts sets how many times a failing job runs before it is dead
// lettered.
func WithMaxAttempts(attempts int) Option {
	return func(r *Runner) {
		if r != nil && attempts > 0 {
			r.maxAttempts = attempts
		}
	}
}

// WithIdleDelay sets the pause after a failed Dequeue.
func WithIdleDelay(delay time.Duration) Option {
	return func(r *Runner) {
		if r != nil && delay > 0 {
			r.idleDelay = delay
		}
	}
}

func WithClock(now core.Clock) Option {
	return func(r *Runner) {
		if r != nil && now != nil {
			r.now = now
		}
	}
}

// Runner executes hooks jobs taken from a queue: drain jobs run DeliverNow and
// queue jobs append an event for every webhook.
type Runner struct {
	publisher EventPublisher
	dequeuer  core.JobDequeuer
	hook      core.JobWorkerHook

	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	observer       core.Observer

	retryDelay  time.Duration
	maxAttempts int
	idleDelay   time.Duration
	now         core.Clock
}

// attemptCounter is implemented by deliveries that know their run count.
type attemptCounter interface {
	Attempt() int
}

func NewRunner(pub EventPublisher, dequeuer core.JobDequeuer, opts ...Option) (*Runner, error) {
	if pub == nil {
		return nil, fmt.Errorf("jobs: event publisher is required")
	}
	runner := &Runner{
		publisher:   pub,
		dequeuer:    dequeuer,
		retryDelay:  5 * time.Second,
		maxAttempts: defaultMaxAttempts,
		idleDelay:   defaultIdleDelay,
		now:         core.SystemClock,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(runner)
		}
	}
	runner.observer = core.NewObserver("hooks.jobs", runner.loggerProvider, runner.logger, runner.metrics)
	return runner, nil
}

// Run dequeues and handles jobs until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r == nil || r.dequeuer == nil {
		return fmt.Errorf("jobs: dequeuer is not configured")
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		delivery, err := r.dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.observer.Log(ctx, "warn", "job dequeue failed", map[string]any{"error": err.Error()})
			if !sleep(ctx, r.idleDelay) {
				return nil
			}
			continue
		}
		if delivery == nil {
			continue
		}
		_ = r.Handle(ctx, delivery)
	}
}

// Handle executes one delivery and acks or nacks it. Unknown jobs are dead
// lettered. A failed drain is dropped since the next tick drains again; other
// failures are requeued until the attempt bound and then dead lettered.
func (r *Runner) Handle(ctx context.Context, delivery core.JobDelivery) (err error) {
	if delivery == nil {
		return fmt.Errorf("jobs: delivery is required")
	}
	msg := delivery.Message()
	if msg == nil {
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "empty job message"})
	}

	attempt := 1
	if counter, ok := delivery.(attemptCounter); ok && counter.Attempt() > 0 {
		attempt = counter.Attempt()
	}
	startedAt := r.now()
	event := core.JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: startedAt}
	r.onStart(ctx, event)
	defer func() {
		r.observer.Observe(ctx, startedAt, "job.handle", err, map[string]any{
			"job_id":          msg.JobID,
			"idempotency_key": msg.IdempotencyKey,
			"attempt":         attempt,
		})
	}()

	runErr := r.execute(ctx, msg)
	event.Duration = r.now().Sub(startedAt)
	if runErr == nil {
		r.onSuccess(ctx, event)
		return delivery.Ack(ctx)
	}

	event.Err = runErr
	var opts core.JobNackOptions
	switch {
	case core.IsBadInput(runErr):
		opts = core.JobNackOptions{DeadLetter: true, Reason: runErr.Error()}
		r.onFailure(ctx, event)
	case strings.TrimSpace(msg.JobID) == core.JobIDDeliveryDrain:
		opts = core.JobNackOptions{Reason: runErr.Error()}
		r.onFailure(ctx, event)
	case attempt >= r.maxAttempts:
		opts = core.JobNackOptions{DeadLetter: true, Reason: runErr.Error()}
		r.onFailure(ctx, event)
	default:
		opts = core.JobNackOptions{Requeue: true, Delay: r.retryDelay, Reason: runErr.Error()}
		event.Delay = r.retryDelay
		r.onRetry(ctx, event)
	}
	if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
		return nackErr
	}
	return runErr
}

func (r *Runner) execute(ctx context.Context, msg *core.JobExecutionMessage) error {
	switch strings.TrimSpace(msg.JobID) {
	case core.JobIDDeliveryDrain:
		_, err := r.publisher.DeliverNow(ctx)
		return err
	case core.JobIDEventQueue:
		messageID, eventName, payload, err := decodeQueueEvent(msg.Parameters)
		if err != nil {
			return err
		}
		return r.publisher.QueueEvent(ctx, messageID, eventName, payload)
	default:
		return core.BadInputError(fmt.Sprintf("unknown job %q", msg.JobID), map[string]any{"job_id": msg.JobID})
	}
}

func decodeQueueEvent(params map[string]any) (uuid.UUID, string, []byte, error) {
	rawID, _ := params[ParamMessageID].(string)
	messageID, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return uuid.Nil, "", nil, core.BadInputError("job message_id is not a uuid", map[string]any{ParamMessageID: rawID})
	}
	eventName, _ := params[ParamEventName].(string)
	if strings.TrimSpace(eventName) == "" {
		return uuid.Nil, "", nil, core.BadInputError("job event_name is required", nil)
	}
	var payload []byte
	switch typed := params[ParamPayload].(type) {
	case string:
		payload = []byte(typed)
	case []byte:
		payload = append([]byte(nil), typed...)
	case nil:
	default:
		return uuid.Nil, "", nil, core.BadInputError("job payload must be a string", nil)
	}
	return messageID, eventName, payload, nil
}

func (r *Runner) onStart(ctx context.Context, event core.JobWorkerEvent) {
	if r.hook != nil {
		r.hook.OnStart(ctx, event)
	}
}

func (r *Runner) onSuccess(ctx context.Context, event core.JobWorkerEvent) {
	if r.hook != nil {
		r.hook.OnSuccess(ctx, event)
	}
}

func (r *Runner) onFailure(ctx context.Context, event core.JobWorkerEvent) {
	if r.hook != nil {
		r.hook.OnFailure(ctx, event)
	}
}

func (r *Runner) onRetry(ctx context.Context, event core.JobWorkerEvent) {
	if r.hook != nil {
		r.hook.OnRetry(ctx, event)
	}
}

func sleep(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
