package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-hooks/publisher"
	"github.com/goliatone/go-hooks/subscriber"
)

var (
	_ gocmd.Querier[ListWebHooksMessage, []publisher.WebHook]                  = (*ListWebHooksQuery)(nil)
	_ gocmd.Querier[GetWebHookMessage, publisher.WebHook]                      = (*GetWebHookQuery)(nil)
	_ gocmd.Querier[OutPageMessage, publisher.Page[publisher.OutMessage]]      = (*OutPageQuery)(nil)
	_ gocmd.Querier[DeliveriesPageMessage, publisher.Page[publisher.Delivery]] = (*DeliveriesPageQuery)(nil)
	_ gocmd.Querier[ListSubscriptionsMessage, []subscriber.Subscription]       = (*ListSubscriptionsQuery)(nil)
	_ gocmd.Querier[GetSubscriptionMessage, subscriber.Subscription]           = (*GetSubscriptionQuery)(nil)
	_ gocmd.Querier[InboxPageMessage, subscriber.InboxPage]                    = (*InboxPageQuery)(nil)

	_ WebHookReader      = (*publisher.Publisher)(nil)
	_ SubscriptionReader = (*subscriber.Subscriber)(nil)
)
