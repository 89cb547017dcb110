package publisher

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-hooks/streams"
	"github.com/google/uuid"
)

// WebHookInput carries the mutable fields of a webhook. A nil Secret leaves
// the stored secret unchanged on update and means "no secret" on add.
type WebHookInput struct {
	TargetURL string
	Enabled   bool
	Filter    Filter
	Secret    *string
}

func (in WebHookInput) Validate() error {
	target := strings.TrimSpace(in.TargetURL)
	if target == "" {
		return publisherBadInput("publisher: target url is required", nil)
	}
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return publisherBadInput("publisher: target url must be an absolute http(s) url", map[string]any{"target_url": target})
	}
	return nil
}

// OutMessage is a queued, not yet delivered event.
type OutMessage struct {
	MessageID uuid.UUID       `json:"messageId"`
	EventName string          `json:"eventName"`
	Sequence  int64           `json:"sequence"`
	CreatedAt time.Time       `json:"createdAt"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Page is one slice of a stream. Next is the sequence of the last item, or
// the starting marker when nothing has been written yet.
type Page[T any] struct {
	Items []T   `json:"items"`
	Next  int64 `json:"next"`
}

func (p *Publisher) ListWebHooks(ctx context.Context) ([]WebHook, error) {
	registry, err := p.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	return registry.List(), nil
}

func (p *Publisher) GetWebHook(ctx context.Context, id uuid.UUID) (WebHook, error) {
	registry, err := p.repo.Load(ctx)
	if err != nil {
		return WebHook{}, err
	}
	hook, ok := registry.Get(id)
	if !ok {
		return WebHook{}, webHookNotFound(id)
	}
	return hook, nil
}

// AddWebHook registers a webhook and caps its out and deliveries streams
// with the configured retention counts.
func (p *Publisher) AddWebHook(ctx context.Context, in WebHookInput) (hook WebHook, err error) {
	startedAt := time.Now()
	fields := map[string]any{"target_url": strings.TrimSpace(in.TargetURL)}
	defer func() { p.observer.Observe(ctx, startedAt, "add_webhook", err, fields) }()

	if err := in.Validate(); err != nil {
		return WebHook{}, err
	}
	secret := ""
	if in.Secret != nil {
		secret = *in.Secret
	}
	_, err = p.repo.Mutate(ctx, func(registry *WebHooks) (bool, error) {
		created, addErr := registry.Add(in.TargetURL, in.Enabled, in.Filter, secret)
		if addErr != nil {
			return false, addErr
		}
		hook = created
		return true, nil
	})
	if err != nil {
		return WebHook{}, err
	}
	fields["webhook_id"] = hook.ID.String()

	if err := p.store.SetMetadata(ctx, hook.OutStream(), streams.Metadata{MaxCount: p.config.OutStreamMaxCount}); err != nil {
		return hook, storeFailure(err, "publisher: set out stream metadata", hook.OutStream())
	}
	if err := p.store.SetMetadata(ctx, hook.DeliveriesStream(), streams.Metadata{MaxCount: p.config.DeliveryStreamMaxCount}); err != nil {
		return hook, storeFailure(err, "publisher: set deliveries stream metadata", hook.DeliveriesStream())
	}
	return hook, nil
}

func (p *Publisher) UpdateWebHook(ctx context.Context, id uuid.UUID, in WebHookInput) (hook WebHook, err error) {
	startedAt := time.Now()
	fields := map[string]any{"webhook_id": id.String()}
	defer func() { p.observer.Observe(ctx, startedAt, "update_webhook", err, fields) }()

	if err := in.Validate(); err != nil {
		return WebHook{}, err
	}
	_, err = p.repo.Mutate(ctx, func(registry *WebHooks) (bool, error) {
		updated, updateErr := registry.Update(id, in.TargetURL, in.Filter, in.Enabled, in.Secret)
		if updateErr != nil {
			return false, updateErr
		}
		hook = updated
		return true, nil
	})
	if err != nil {
		return WebHook{}, err
	}
	return hook, nil
}

// DeleteWebHook removes the registration. Its out and deliveries streams are
// purged unless RetainStreamsOnDelete is set.
func (p *Publisher) DeleteWebHook(ctx context.Context, id uuid.UUID) (err error) {
	startedAt := time.Now()
	fields := map[string]any{"webhook_id": id.String()}
	defer func() { p.observer.Observe(ctx, startedAt, "delete_webhook", err, fields) }()

	_, err = p.repo.Mutate(ctx, func(registry *WebHooks) (bool, error) {
		if !registry.Delete(id) {
			return false, webHookNotFound(id)
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if p.config.RetainStreamsOnDelete {
		return nil
	}
	for _, streamID := range []string{OutStreamID(id), DeliveriesStreamID(id)} {
		if err := p.store.DeleteStream(ctx, streamID); err != nil {
			return storeFailure(err, "publisher: delete webhook stream", streamID)
		}
	}
	return nil
}

// OutPage reads queued messages oldest first starting at start.
func (p *Publisher) OutPage(ctx context.Context, id uuid.UUID, start int64) (Page[OutMessage], error) {
	if _, err := p.GetWebHook(ctx, id); err != nil {
		return Page[OutMessage]{}, err
	}
	if start < streams.VersionStart {
		start = streams.VersionStart
	}
	streamID := OutStreamID(id)
	read, err := p.store.ReadForwards(ctx, streamID, start, p.config.PageSize)
	if err != nil {
		return Page[OutMessage]{}, storeFailure(err, "publisher: read out page", streamID)
	}
	page := Page[OutMessage]{Items: []OutMessage{}, Next: start}
	if !read.Found() {
		page.Next = streams.VersionStart
		return page, nil
	}
	for _, msg := range read.Messages {
		page.Items = append(page.Items, OutMessage{
			MessageID: msg.ID,
			EventName: msg.Type,
			Sequence:  msg.Version,
			CreatedAt: msg.CreatedAt,
			Payload:   rawJSON(msg.Data),
		})
		page.Next = msg.Version
	}
	return page, nil
}

// DeliveriesPage reads delivery attempts newest first starting at start,
// where streams.VersionEnd means the latest attempt.
func (p *Publisher) DeliveriesPage(ctx context.Context, id uuid.UUID, start int64) (Page[Delivery], error) {
	if _, err := p.GetWebHook(ctx, id); err != nil {
		return Page[Delivery]{}, err
	}
	if start < streams.VersionEnd {
		start = streams.VersionEnd
	}
	streamID := DeliveriesStreamID(id)
	read, err := p.store.ReadBackwards(ctx, streamID, start, p.config.PageSize)
	if err != nil {
		return Page[Delivery]{}, storeFailure(err, "publisher: read deliveries page", streamID)
	}
	page := Page[Delivery]{Items: []Delivery{}, Next: start}
	if !read.Found() {
		page.Next = streams.VersionEnd
		return page, nil
	}
	for _, msg := range read.Messages {
		delivery, err := decodeDelivery(msg)
		if err != nil {
			return Page[Delivery]{}, storeFailure(err, "publisher: decode delivery record", streamID)
		}
		page.Items = append(page.Items, delivery)
		page.Next = msg.Version
	}
	return page, nil
}
