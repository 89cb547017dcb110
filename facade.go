package hooks

import (
	"fmt"

	hookcommand "github.com/goliatone/go-hooks/command"
	"github.com/goliatone/go-hooks/publisher"
	hookquery "github.com/goliatone/go-hooks/query"
	"github.com/goliatone/go-hooks/subscriber"
)

type Commands struct {
	AddWebHook         *hookcommand.AddWebHookCommand
	UpdateWebHook      *hookcommand.UpdateWebHookCommand
	DeleteWebHook      *hookcommand.DeleteWebHookCommand
	QueueEvent         *hookcommand.QueueEventCommand
	DeliverNow         *hookcommand.DeliverNowCommand
	AddSubscription    *hookcommand.AddSubscriptionCommand
	DeleteSubscription *hookcommand.DeleteSubscriptionCommand
}

type Queries struct {
	ListWebHooks      *hookquery.ListWebHooksQuery
	GetWebHook        *hookquery.GetWebHookQuery
	OutPage           *hookquery.OutPageQuery
	DeliveriesPage    *hookquery.DeliveriesPageQuery
	ListSubscriptions *hookquery.ListSubscriptionsQuery
	GetSubscription   *hookquery.GetSubscriptionQuery
	InboxPage         *hookquery.InboxPageQuery
}

// Facade groups the command and query handlers for a publisher and, when
// one is given, a subscriber. Subscriber handlers are nil without one.
type Facade struct {
	publisher  *publisher.Publisher
	subscriber *subscriber.Subscriber
	commands   Commands
	queries    Queries
}

func NewFacade(pub *publisher.Publisher, sub *subscriber.Subscriber) (*Facade, error) {
	if pub == nil {
		return nil, fmt.Errorf("hooks: publisher is required")
	}
	facade := &Facade{publisher: pub, subscriber: sub}
	facade.commands = Commands{
		AddWebHook:    hookcommand.NewAddWebHookCommand(pub),
		UpdateWebHook: hookcommand.NewUpdateWebHookCommand(pub),
		DeleteWebHook: hookcommand.NewDeleteWebHookCommand(pub),
		QueueEvent:    hookcommand.NewQueueEventCommand(pub),
		DeliverNow:    hookcommand.NewDeliverNowCommand(pub),
	}
	facade.queries = Queries{
		ListWebHooks:   hookquery.NewListWebHooksQuery(pub),
		GetWebHook:     hookquery.NewGetWebHookQuery(pub),
		OutPage:        hookquery.NewOutPageQuery(pub),
		DeliveriesPage: hookquery.NewDeliveriesPageQuery(pub),
	}
	if sub != nil {
		facade.commands.AddSubscription = hookcommand.NewAddSubscriptionCommand(sub)
		facade.commands.DeleteSubscription = hookcommand.NewDeleteSubscriptionCommand(sub)
		facade.queries.ListSubscriptions = hookquery.NewListSubscriptionsQuery(sub)
		facade.queries.GetSubscription = hookquery.NewGetSubscriptionQuery(sub)
		facade.queries.InboxPage = hookquery.NewInboxPageQuery(sub)
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Publisher() *publisher.Publisher {
	if f == nil {
		return nil
	}
	return f.publisher
}

func (f *Facade) Subscriber() *subscriber.Subscriber {
	if f == nil {
		return nil
	}
	return f.subscriber
}
