// Package gocommand mounts the webhook and subscription handlers on a
// go-command registry and dispatcher.
package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	hookcommand "github.com/goliatone/go-hooks/command"
	"github.com/goliatone/go-hooks/publisher"
	hookquery "github.com/goliatone/go-hooks/query"
	"github.com/goliatone/go-hooks/subscriber"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// QueueResolverKey names the resolver that mirrors registered handlers into
// a go-job queue registry.
const QueueResolverKey = "hooks.queue"

// Services holds the components exposed through the dispatcher. Either one
// may be nil, in which case its handlers are not mounted.
type Services struct {
	Publisher  *publisher.Publisher
	Subscriber *subscriber.Subscriber
}

// Bus owns a go-command registry together with the dispatcher
// subscriptions made through it.
type Bus struct {
	registry      *command.Registry
	runnerOpts    []runner.Option
	subscriptions []commanddispatcher.Subscription
}

func NewBus(registry *command.Registry, runnerOpts ...runner.Option) *Bus {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &Bus{registry: registry, runnerOpts: runnerOpts}
}

func (b *Bus) Registry() *command.Registry {
	if b == nil {
		return nil
	}
	return b.registry
}

// MirrorToQueue copies every handler into queueRegistry when the registry
// is initialized, so the same messages can be run from a go-job worker.
func (b *Bus) MirrorToQueue(queueRegistry *jobqueuecommand.Registry) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return b.registry.AddResolver(QueueResolverKey, jobqueuecommand.QueueResolver(queueRegistry))
}

// Register adds a handler to the registry without subscribing it.
func (b *Bus) Register(handler any) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return b.registry.RegisterCommand(handler)
}

// Mount registers and subscribes every command and query the services
// support. On failure nothing stays subscribed.
func (b *Bus) Mount(services Services) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if services.Publisher == nil && services.Subscriber == nil {
		return fmt.Errorf("gocommand: publisher or subscriber is required")
	}

	var err error
	if pub := services.Publisher; pub != nil {
		err = firstError(
			mountCommand(b, hookcommand.NewAddWebHookCommand(pub)),
			mountCommand(b, hookcommand.NewUpdateWebHookCommand(pub)),
			mountCommand(b, hookcommand.NewDeleteWebHookCommand(pub)),
			mountCommand(b, hookcommand.NewQueueEventCommand(pub)),
			mountCommand(b, hookcommand.NewDeliverNowCommand(pub)),
			mountQuery(b, hookquery.NewListWebHooksQuery(pub)),
			mountQuery(b, hookquery.NewGetWebHookQuery(pub)),
			mountQuery(b, hookquery.NewOutPageQuery(pub)),
			mountQuery(b, hookquery.NewDeliveriesPageQuery(pub)),
		)
	}
	if sub := services.Subscriber; err == nil && sub != nil {
		err = firstError(
			mountCommand(b, hookcommand.NewAddSubscriptionCommand(sub)),
			mountCommand(b, hookcommand.NewDeleteSubscriptionCommand(sub)),
			mountQuery(b, hookquery.NewListSubscriptionsQuery(sub)),
			mountQuery(b, hookquery.NewGetSubscriptionQuery(sub)),
			mountQuery(b, hookquery.NewInboxPageQuery(sub)),
		)
	}
	if err != nil {
		b.Close()
		return err
	}
	return nil
}

func (b *Bus) Initialize() error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return b.registry.Initialize()
}

// Len reports the live dispatcher subscriptions.
func (b *Bus) Len() int {
	if b == nil {
		return 0
	}
	return len(b.subscriptions)
}

func (b *Bus) Close() {
	if b == nil {
		return
	}
	for _, subscription := range b.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	b.subscriptions = nil
}

// Each mount step is skipped once an earlier one failed.
type mountStep func() error

func mountCommand[T any](b *Bus, cmd command.Commander[T]) mountStep {
	return func() error {
		subscription := commanddispatcher.SubscribeCommand(cmd, b.runnerOpts...)
		return b.keep(subscription, cmd)
	}
}

func mountQuery[T any, R any](b *Bus, qry command.Querier[T, R]) mountStep {
	return func() error {
		subscription := commanddispatcher.SubscribeQuery(qry, b.runnerOpts...)
		return b.keep(subscription, qry)
	}
}

func (b *Bus) keep(subscription commanddispatcher.Subscription, handler any) error {
	if err := b.registry.RegisterCommand(handler); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return err
	}
	b.subscriptions = append(b.subscriptions, subscription)
	return nil
}

func firstError(steps ...mountStep) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateMessage checks that msg has a non-empty Type() and passes its own
// Validate() when it has one.
func ValidateMessage(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

// Dispatch validates msg and hands it to its subscribed command.
func Dispatch[T any](ctx context.Context, msg T) error {
	if err := ValidateMessage(msg); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	if err := ValidateMessage(msg); err != nil {
		var zero R
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}
