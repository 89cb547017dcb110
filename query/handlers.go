package query

import (
	"context"

	"github.com/goliatone/go-hooks/publisher"
	"github.com/goliatone/go-hooks/subscriber"
	"github.com/google/uuid"
)

type WebHookReader interface {
	ListWebHooks(ctx context.Context) ([]publisher.WebHook, error)
	GetWebHook(ctx context.Context, id uuid.UUID) (publisher.WebHook, error)
	OutPage(ctx context.Context, id uuid.UUID, start int64) (publisher.Page[publisher.OutMessage], error)
	DeliveriesPage(ctx context.Context, id uuid.UUID, start int64) (publisher.Page[publisher.Delivery], error)
}

type SubscriptionReader interface {
	List(ctx context.Context) ([]subscriber.Subscription, error)
	Get(ctx context.Context, id uuid.UUID) (subscriber.Subscription, error)
	InboxPage(ctx context.Context, id uuid.UUID, start int64) (subscriber.InboxPage, error)
}

type ListWebHooksQuery struct {
	reader WebHookReader
}

func NewListWebHooksQuery(reader WebHookReader) *ListWebHooksQuery {
	return &ListWebHooksQuery{reader: reader}
}

func (q *ListWebHooksQuery) Query(ctx context.Context, _ ListWebHooksMessage) ([]publisher.WebHook, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: webhook reader is required")
	}
	return q.reader.ListWebHooks(ctx)
}

type GetWebHookQuery struct {
	reader WebHookReader
}

func NewGetWebHookQuery(reader WebHookReader) *GetWebHookQuery {
	return &GetWebHookQuery{reader: reader}
}

func (q *GetWebHookQuery) Query(ctx context.Context, msg GetWebHookMessage) (publisher.WebHook, error) {
	if q == nil || q.reader == nil {
		return publisher.WebHook{}, queryDependencyError("query: webhook reader is required")
	}
	return q.reader.GetWebHook(ctx, msg.ID)
}

type OutPageQuery struct {
	reader WebHookReader
}

func NewOutPageQuery(reader WebHookReader) *OutPageQuery {
	return &OutPageQuery{reader: reader}
}

func (q *OutPageQuery) Query(ctx context.Context, msg OutPageMessage) (publisher.Page[publisher.OutMessage], error) {
	if q == nil || q.reader == nil {
		return publisher.Page[publisher.OutMessage]{}, queryDependencyError("query: webhook reader is required")
	}
	return q.reader.OutPage(ctx, msg.ID, msg.start())
}

type DeliveriesPageQuery struct {
	reader WebHookReader
}

func NewDeliveriesPageQuery(reader WebHookReader) *DeliveriesPageQuery {
	return &DeliveriesPageQuery{reader: reader}
}

func (q *DeliveriesPageQuery) Query(ctx context.Context, msg DeliveriesPageMessage) (publisher.Page[publisher.Delivery], error) {
	if q == nil || q.reader == nil {
		return publisher.Page[publisher.Delivery]{}, queryDependencyError("query: webhook reader is required")
	}
	return q.reader.DeliveriesPage(ctx, msg.ID, msg.start())
}

type ListSubscriptionsQuery struct {
	reader SubscriptionReader
}

func NewListSubscriptionsQuery(reader SubscriptionReader) *ListSubscriptionsQuery {
	return &ListSubscriptionsQuery{reader: reader}
}

func (q *ListSubscriptionsQuery) Query(ctx context.Context, _ ListSubscriptionsMessage) ([]subscriber.Subscription, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: subscription reader is required")
	}
	return q.reader.List(ctx)
}

type GetSubscriptionQuery struct {
	reader SubscriptionReader
}

func NewGetSubscriptionQuery(reader SubscriptionReader) *GetSubscriptionQuery {
	return &GetSubscriptionQuery{reader: reader}
}

func (q *GetSubscriptionQuery) Query(ctx context.Context, msg GetSubscriptionMessage) (subscriber.Subscription, error) {
	if q == nil || q.reader == nil {
		return subscriber.Subscription{}, queryDependencyError("query: subscription reader is required")
	}
	return q.reader.Get(ctx, msg.ID)
}

type InboxPageQuery struct {
	reader SubscriptionReader
}

func NewInboxPageQuery(reader SubscriptionReader) *InboxPageQuery {
	return &InboxPageQuery{reader: reader}
}

func (q *InboxPageQuery) Query(ctx context.Context, msg InboxPageMessage) (subscriber.InboxPage, error) {
	if q == nil || q.reader == nil {
		return subscriber.InboxPage{}, queryDependencyError("query: subscription reader is required")
	}
	return q.reader.InboxPage(ctx, msg.ID, msg.Start)
}
