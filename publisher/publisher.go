package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-hooks/core"
	"github.com/goliatone/go-hooks/snapshot"
	"github.com/goliatone/go-hooks/streams"
	"github.com/goliatone/go-hooks/transport"
	"github.com/goliatone/go-hooks/webhooks"
	"github.com/google/uuid"
)

// Sender performs the outbound delivery call.
type Sender interface {
	Post(ctx context.Context, req transport.Request) (transport.Response, error)
}

type Option func(*Publisher)

func WithConfig(cfg core.PublisherConfig) Option {
	return func(p *Publisher) {
		if p == nil {
			return
		}
		p.config = cfg.WithDefaults()
	}
}

func WithVendor(vendor string) Option {
	return func(p *Publisher) {
		if p == nil {
			return
		}
		p.headers = webhooks.NewHeaders(vendor)
	}
}

func WithSender(sender Sender) Option {
	return func(p *Publisher) {
		if p == nil || sender == nil {
			return
		}
		p.sender = sender
	}
}

func WithClock(now core.Clock) Option {
	return func(p *Publisher) {
		if p == nil || now == nil {
			return
		}
		p.now = now
	}
}

// WithLockAcquirer adds a lock taken by DeliverNow after the in-process
// guard, for example a distributed lock shared by several instances.
func WithLockAcquirer(acquire core.LockAcquirer) Option {
	return func(p *Publisher) {
		if p == nil || acquire == nil {
			return
		}
		p.acquireLock = acquire
	}
}

func WithRetryPolicy(policy webhooks.RetryPolicy) Option {
	return func(p *Publisher) {
		if p == nil || policy == nil {
			return
		}
		p.retry = policy
	}
}

func WithLogger(logger core.Logger) Option {
	return func(p *Publisher) {
		if p == nil {
			return
		}
		p.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(p *Publisher) {
		if p == nil {
			return
		}
		p.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(p *Publisher) {
		if p == nil {
			return
		}
		p.metrics = recorder
	}
}

// Publisher queues events into per-webhook out streams and drains them to
// the registered targets.
type Publisher struct {
	config         core.PublisherConfig
	store          streams.Store
	sender         Sender
	headers        webhooks.Headers
	retry          webhooks.RetryPolicy
	now            core.Clock
	acquireLock    core.LockAcquirer
	newID          func() uuid.UUID
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	observer       core.Observer
	repo           *snapshot.Repository[*WebHooks, WebHooksState]
	drainLock      chan struct{}
}

func New(store streams.Store, opts ...Option) (*Publisher, error) {
	if store == nil {
		return nil, publisherBadInput("publisher: stream store is required", nil)
	}
	p := &Publisher{
		config:    core.DefaultPublisherConfig(),
		store:     store,
		headers:   webhooks.NewHeaders(core.DefaultVendor),
		now:       core.SystemClock,
		newID:     uuid.New,
		drainLock: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if err := p.config.Validate(); err != nil {
		return nil, publisherBadInput(err.Error(), nil)
	}
	if p.sender == nil {
		p.sender = transport.NewHTTPSender(nil)
	}
	if p.retry == nil {
		p.retry = webhooks.ExponentialRetryPolicy{Base: time.Second, Max: p.config.MaxRetryDelay}
	}
	p.observer = core.NewObserver("hooks.publisher", p.loggerProvider, p.logger, p.metrics)

	repo, err := snapshot.NewRepository(
		store,
		SnapshotStreamID(p.config.SnapshotStream),
		func(state WebHooksState, _ bool) *WebHooks {
			return RestoreWebHooks(state, p.config.MaxWebHookCount, p.now)
		},
		func(registry *WebHooks) WebHooksState { return registry.State() },
	)
	if err != nil {
		return nil, publisherInternal(err.Error(), nil)
	}
	p.repo = repo
	return p, nil
}

func (p *Publisher) Config() core.PublisherConfig {
	return p.config
}

func (p *Publisher) Headers() webhooks.Headers {
	return p.headers
}

// QueueEvent appends the event to the out stream of every selected webhook.
// Appends use messageID, so queueing the same event twice is a no-op.
func (p *Publisher) QueueEvent(ctx context.Context, messageID uuid.UUID, eventName string, payload []byte) (err error) {
	startedAt := time.Now()
	eventName = strings.TrimSpace(eventName)
	fields := map[string]any{"event_name": eventName, "message_id": messageID.String()}
	defer func() { p.observer.Observe(ctx, startedAt, "queue_event", err, fields) }()

	if messageID == uuid.Nil {
		return publisherBadInput("publisher: message id is required", fields)
	}
	if eventName == "" {
		return publisherBadInput("publisher: event name is required", fields)
	}
	if !json.Valid(payload) {
		return publisherBadInput("publisher: payload must be valid json", fields)
	}

	registry, err := p.repo.Load(ctx)
	if err != nil {
		return err
	}
	queued := 0
	for _, hook := range registry.List() {
		if !hook.Filter.Selects(eventName, hook.Enabled) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		streamID := hook.OutStream()
		if _, err := p.store.Append(ctx, streamID, streams.ExpectedVersionAny, streams.NewMessage{
			ID:   messageID,
			Type: eventName,
			Data: payload,
		}); err != nil {
			return storeFailure(err, "publisher: append to out stream", streamID)
		}
		queued++
	}
	fields["subscribers"] = queued
	return nil
}

// DeliveryStats summarizes one DeliverNow call.
type DeliveryStats struct {
	Passes    int `json:"passes"`
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Disabled  int `json:"disabled"`
}

func (s DeliveryStats) fields() map[string]any {
	return map[string]any{
		"passes":    s.Passes,
		"attempted": s.Attempted,
		"delivered": s.Delivered,
		"failed":    s.Failed,
		"skipped":   s.Skipped,
		"disabled":  s.Disabled,
	}
}

// DeliverNow runs passes over the enabled webhooks until a pass delivers
// nothing. Each pass attempts at most the oldest pending message of each
// webhook. Cancellation is checked between webhooks; attempts already
// recorded are kept.
func (p *Publisher) DeliverNow(ctx context.Context) (stats DeliveryStats, err error) {
	startedAt := time.Now()
	defer func() { p.observer.Observe(ctx, startedAt, "deliver_now", err, stats.fields()) }()

	release, err := p.lock(ctx)
	if err != nil {
		return stats, err
	}
	defer release()

	for {
		stats.Passes++
		progressed, err := p.deliverPass(ctx, &stats)
		if err != nil {
			return stats, err
		}
		if !progressed {
			return stats, nil
		}
	}
}

// lock always takes the in-process guard; a configured acquirer is taken on
// top of it and released first.
func (p *Publisher) lock(ctx context.Context) (core.ReleaseLock, error) {
	select {
	case p.drainLock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	unlock := func() { <-p.drainLock }
	if p.acquireLock == nil {
		return unlock, nil
	}
	release, err := p.acquireLock(ctx)
	if err != nil {
		unlock()
		return nil, err
	}
	return func() {
		if release != nil {
			release()
		}
		unlock()
	}, nil
}

func (p *Publisher) deliverPass(ctx context.Context, stats *DeliveryStats) (bool, error) {
	registry, err := p.repo.Load(ctx)
	if err != nil {
		return false, err
	}
	progressed := false
	for _, hook := range registry.List() {
		if !hook.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return progressed, err
		}
		delivered, err := p.deliverNext(ctx, hook, stats)
		if err != nil {
			return progressed, err
		}
		progressed = progressed || delivered
	}
	return progressed, nil
}

func (p *Publisher) deliverNext(ctx context.Context, hook WebHook, stats *DeliveryStats) (bool, error) {
	outStream := hook.OutStream()
	next, err := p.store.ReadForwards(ctx, outStream, streams.VersionStart, 1)
	if err != nil {
		return false, storeFailure(err, "publisher: read out stream", outStream)
	}
	if !next.Found() || len(next.Messages) == 0 {
		return false, nil
	}
	msg := next.Messages[0]

	previous, err := p.lastDelivery(ctx, hook)
	if err != nil {
		return false, err
	}

	attempt := 0
	if previous != nil && previous.EventID == msg.ID {
		attempt = previous.AttemptCount
	}
	// An operator re-enable after the last failure restarts the expiry clock
	// and lifts the backoff wait.
	if previous != nil && previous.EventID == msg.ID && !previous.DeliverySuccess && !hook.reenabledSince(previous.AttemptedAt) {
		sinceLastAttempt := p.now().Sub(previous.AttemptedAt)
		if sinceLastAttempt > p.config.MaxDeliveryAttemptDuration {
			if err := p.disable(ctx, hook.ID); err != nil {
				return false, err
			}
			stats.Disabled++
			p.observer.Log(ctx, "warn", "webhook disabled after max delivery attempt duration", map[string]any{
				"webhook_id":    hook.ID.String(),
				"message_id":    msg.ID.String(),
				"attempt_count": previous.AttemptCount,
			})
			if p.config.SkipAfterDisable {
				return false, nil
			}
		}
		if sinceLastAttempt < p.retry.NextDelay(previous.AttemptCount) {
			stats.Skipped++
			return false, nil
		}
	}

	stats.Attempted++
	record := DeliveryRecord{
		EventID:         msg.ID,
		AttemptCount:    attempt + 1,
		DeliverySuccess: true,
		Sequence:        msg.Version,
	}
	res, sendErr := p.send(ctx, hook, msg)
	// The attempt happened; record it even if ctx was cancelled meanwhile.
	ctx = context.WithoutCancel(ctx)
	switch {
	case sendErr != nil:
		record.DeliverySuccess = false
		record.ErrorMessage = sendErr.Error()
	case !res.Success():
		record.DeliverySuccess = false
		record.ErrorMessage = statusCodeMessage(res.StatusCode)
	}
	fields := map[string]any{
		"webhook_id":    hook.ID.String(),
		"message_id":    msg.ID.String(),
		"event_name":    msg.Type,
		"sequence":      msg.Version,
		"attempt_count": record.AttemptCount,
	}

	// A delete that ran during the call has purged the streams already.
	registered, err := p.registered(ctx, hook.ID)
	if err != nil {
		return false, err
	}
	if !registered {
		p.observer.Log(ctx, "info", "webhook deleted during delivery, attempt not recorded", fields)
		return false, nil
	}

	if err := p.appendDelivery(ctx, hook, msg, record); err != nil {
		return false, err
	}
	if !record.DeliverySuccess {
		stats.Failed++
		fields["error"] = record.ErrorMessage
		p.observer.Log(ctx, "warn", "webhook delivery failed", fields)
		return false, nil
	}

	if err := p.store.DeleteMessage(ctx, outStream, msg.ID); err != nil {
		return false, storeFailure(err, "publisher: remove delivered message", outStream)
	}
	stats.Delivered++
	p.observer.Log(ctx, "debug", "webhook delivery succeeded", fields)
	return true, nil
}

// send never aborts an in-flight call on cancellation; the pass checks ctx
// between webhooks instead.
func (p *Publisher) send(ctx context.Context, hook WebHook, msg streams.Message) (transport.Response, error) {
	req := transport.Request{URL: hook.TargetURL, Headers: http.Header{}, Body: msg.Data}
	req.Headers.Set("Content-Type", webhooks.ContentTypeJSON)
	p.headers.Apply(req.Headers, webhooks.Envelope{
		EventName: msg.Type,
		MessageID: msg.ID,
		Sequence:  msg.Version,
		Signature: webhooks.Sign(hook.Secret, msg.Data),
	})
	return p.sender.Post(context.WithoutCancel(ctx), req)
}

func (p *Publisher) lastDelivery(ctx context.Context, hook WebHook) (*Delivery, error) {
	deliveries := hook.DeliveriesStream()
	page, err := p.store.ReadBackwards(ctx, deliveries, streams.VersionEnd, 1)
	if err != nil {
		return nil, storeFailure(err, "publisher: read deliveries stream", deliveries)
	}
	if !page.Found() || len(page.Messages) == 0 {
		return nil, nil
	}
	delivery, err := decodeDelivery(page.Messages[0])
	if err != nil {
		return nil, storeFailure(err, "publisher: decode delivery record", deliveries)
	}
	return &delivery, nil
}

func (p *Publisher) appendDelivery(ctx context.Context, hook WebHook, msg streams.Message, record DeliveryRecord) error {
	deliveries := hook.DeliveriesStream()
	metadata, err := json.Marshal(record)
	if err != nil {
		return publisherInternal("publisher: encode delivery record", map[string]any{"stream_id": deliveries})
	}
	if _, err := p.store.Append(ctx, deliveries, streams.ExpectedVersionAny, streams.NewMessage{
		ID:       p.newID(),
		Type:     msg.Type,
		Data:     msg.Data,
		Metadata: metadata,
	}); err != nil {
		return storeFailure(err, "publisher: append delivery record", deliveries)
	}
	return nil
}

func (p *Publisher) registered(ctx context.Context, id uuid.UUID) (bool, error) {
	registry, err := p.repo.Load(ctx)
	if err != nil {
		return false, err
	}
	_, ok := registry.Get(id)
	return ok, nil
}

func (p *Publisher) disable(ctx context.Context, id uuid.UUID) error {
	_, err := p.repo.Mutate(ctx, func(registry *WebHooks) (bool, error) {
		if err := registry.Disable(id); err != nil {
			if core.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	})
	return err
}
