package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-hooks/publisher"
	"github.com/goliatone/go-hooks/subscriber"
)

var (
	_ gocmd.Commander[AddWebHookMessage]         = (*AddWebHookCommand)(nil)
	_ gocmd.Commander[UpdateWebHookMessage]      = (*UpdateWebHookCommand)(nil)
	_ gocmd.Commander[DeleteWebHookMessage]      = (*DeleteWebHookCommand)(nil)
	_ gocmd.Commander[QueueEventMessage]         = (*QueueEventCommand)(nil)
	_ gocmd.Commander[DeliverNowMessage]         = (*DeliverNowCommand)(nil)
	_ gocmd.Commander[AddSubscriptionMessage]    = (*AddSubscriptionCommand)(nil)
	_ gocmd.Commander[DeleteSubscriptionMessage] = (*DeleteSubscriptionCommand)(nil)

	_ WebHookService      = (*publisher.Publisher)(nil)
	_ EventPublisher      = (*publisher.Publisher)(nil)
	_ SubscriptionService = (*subscriber.Subscriber)(nil)
)
