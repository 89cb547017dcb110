package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hooks/core"
	"github.com/goliatone/go-hooks/inbound"
	"github.com/goliatone/go-hooks/snapshot"
	"github.com/goliatone/go-hooks/streams"
	"github.com/google/uuid"
)

type Option func(*Subscriber)

func WithConfig(cfg core.SubscriberConfig) Option {
	return func(s *Subscriber) {
		if s == nil {
			return
		}
		s.config = cfg.WithDefaults()
	}
}

func WithVendor(vendor string) Option {
	return func(s *Subscriber) {
		if s == nil {
			return
		}
		s.vendor = vendor
	}
}

func WithClock(now core.Clock) Option {
	return func(s *Subscriber) {
		if s == nil || now == nil {
			return
		}
		s.now = now
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *Subscriber) {
		if s == nil {
			return
		}
		s.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(s *Subscriber) {
		if s == nil {
			return
		}
		s.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(s *Subscriber) {
		if s == nil {
			return
		}
		s.metrics = recorder
	}
}

// Subscriber manages subscriptions and receives deliveries for them.
type Subscriber struct {
	config         core.SubscriberConfig
	vendor         string
	store          streams.Store
	now            core.Clock
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	observer       core.Observer
	repo           *snapshot.Repository[*Subscriptions, SubscriptionsState]
	receiver       *inbound.Receiver
	failReceive    atomic.Bool
}

func New(store streams.Store, opts ...Option) (*Subscriber, error) {
	if store == nil {
		return nil, core.BadInputError("subscriber: stream store is required", nil)
	}
	s := &Subscriber{
		config: core.DefaultSubscriberConfig(),
		vendor: core.DefaultVendor,
		store:  store,
		now:    core.SystemClock,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if err := s.config.Validate(); err != nil {
		return nil, core.BadInputError(err.Error(), nil)
	}
	s.observer = core.NewObserver("hooks.subscriber", s.loggerProvider, s.logger, s.metrics)

	repo, err := snapshot.NewRepository(
		store,
		SnapshotStreamID(s.config.SnapshotStream),
		func(state SubscriptionsState, _ bool) *Subscriptions {
			return RestoreSubscriptions(state, s.config.MaxSubscriptionCount, s.now)
		},
		func(registry *Subscriptions) SubscriptionsState { return registry.State() },
	)
	if err != nil {
		return nil, core.NewError(err.Error(), goerrors.CategoryInternal, core.ErrorInternal, nil)
	}
	s.repo = repo

	s.receiver = inbound.NewReceiver(s, store, s.vendor).WithObserver(s.observer)
	s.receiver.Now = s.now
	s.receiver.FailReceive = s.failReceive.Load
	return s, nil
}

// SetFailReceive makes every Receive call fail with a 500 until reset.
func (s *Subscriber) SetFailReceive(fail bool) {
	s.failReceive.Store(fail)
}

func (s *Subscriber) Add(ctx context.Context, name string) (sub Subscription, err error) {
	startedAt := time.Now()
	fields := map[string]any{"name": strings.TrimSpace(name)}
	defer func() { s.observer.Observe(ctx, startedAt, "add_subscription", err, fields) }()

	_, err = s.repo.Mutate(ctx, func(registry *Subscriptions) (bool, error) {
		created, addErr := registry.Add(name)
		if addErr != nil {
			return false, addErr
		}
		sub = created
		return true, nil
	})
	if err != nil {
		return Subscription{}, err
	}
	fields["subscription_id"] = sub.ID.String()
	return sub, nil
}

func (s *Subscriber) List(ctx context.Context) ([]Subscription, error) {
	registry, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	return registry.List(), nil
}

func (s *Subscriber) Get(ctx context.Context, id uuid.UUID) (Subscription, error) {
	registry, err := s.repo.Load(ctx)
	if err != nil {
		return Subscription{}, err
	}
	sub, ok := registry.Get(id)
	if !ok {
		return Subscription{}, subscriptionNotFound(id)
	}
	return sub, nil
}

// Delete removes the subscription and its inbox stream.
func (s *Subscriber) Delete(ctx context.Context, id uuid.UUID) (err error) {
	startedAt := time.Now()
	fields := map[string]any{"subscription_id": id.String()}
	defer func() { s.observer.Observe(ctx, startedAt, "delete_subscription", err, fields) }()

	_, err = s.repo.Mutate(ctx, func(registry *Subscriptions) (bool, error) {
		if !registry.Delete(id) {
			return false, subscriptionNotFound(id)
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if err := s.store.DeleteStream(ctx, InboxStreamID(id)); err != nil {
		return core.StoreError(err, "subscriber: delete inbox stream", map[string]any{"stream_id": InboxStreamID(id)})
	}
	return nil
}

func (s *Subscriber) ResolveTarget(ctx context.Context, id uuid.UUID) (inbound.Target, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return inbound.Target{}, err
	}
	return inbound.Target{SubscriptionID: sub.ID, Secret: sub.Secret, InboxStream: sub.InboxStream()}, nil
}

// Receive verifies a delivery and appends it to the subscription inbox.
func (s *Subscriber) Receive(ctx context.Context, id uuid.UUID, header http.Header, body []byte) (inbound.Result, error) {
	return s.receiver.Receive(ctx, id, header, body)
}

// InboxMessage is a received event.
type InboxMessage struct {
	MessageID  uuid.UUID       `json:"messageId"`
	EventName  string          `json:"eventName"`
	Sequence   int64           `json:"sequence"`
	Version    int64           `json:"version"`
	ReceivedAt time.Time       `json:"receivedAt"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type InboxPage struct {
	Items []InboxMessage `json:"items"`
	Next  int64          `json:"next"`
}

// InboxPage reads received events oldest first starting at start.
func (s *Subscriber) InboxPage(ctx context.Context, id uuid.UUID, start int64) (InboxPage, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return InboxPage{}, err
	}
	if start < streams.VersionStart {
		start = streams.VersionStart
	}
	streamID := InboxStreamID(id)
	read, err := s.store.ReadForwards(ctx, streamID, start, s.config.PageSize)
	if err != nil {
		return InboxPage{}, core.StoreError(err, "subscriber: read inbox page", map[string]any{"stream_id": streamID})
	}
	page := InboxPage{Items: []InboxMessage{}, Next: start}
	if !read.Found() {
		page.Next = streams.VersionStart
		return page, nil
	}
	for _, msg := range read.Messages {
		item := InboxMessage{
			MessageID:  msg.ID,
			EventName:  msg.Type,
			Version:    msg.Version,
			ReceivedAt: msg.CreatedAt,
		}
		if json.Valid(msg.Data) {
			item.Payload = append(json.RawMessage(nil), msg.Data...)
		}
		var meta inbound.InboxMetadata
		if len(msg.Metadata) > 0 && json.Unmarshal(msg.Metadata, &meta) == nil {
			item.Sequence = meta.Sequence
			if !meta.ReceivedAt.IsZero() {
				item.ReceivedAt = meta.ReceivedAt
			}
		}
		page.Items = append(page.Items, item)
		page.Next = msg.Version
	}
	return page, nil
}

func subscriptionNotFound(id uuid.UUID) error {
	return core.NotFoundError(
		fmt.Sprintf("subscriber: subscription %s not found", id),
		map[string]any{"subscription_id": id.String()},
	)
}
