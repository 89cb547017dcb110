package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-hooks/publisher"
	"github.com/goliatone/go-hooks/subscriber"
	"github.com/google/uuid"
)

type WebHookService interface {
	AddWebHook(ctx context.Context, in publisher.WebHookInput) (publisher.WebHook, error)
	UpdateWebHook(ctx context.Context, id uuid.UUID, in publisher.WebHookInput) (publisher.WebHook, error)
	DeleteWebHook(ctx context.Context, id uuid.UUID) error
}

type EventPublisher interface {
	QueueEvent(ctx context.Context, messageID uuid.UUID, eventName string, payload []byte) error
	DeliverNow(ctx context.Context) (publisher.DeliveryStats, error)
}

type SubscriptionService interface {
	Add(ctx context.Context, name string) (subscriber.Subscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type AddWebHookCommand struct {
	service WebHookService
}

func NewAddWebHookCommand(service WebHookService) *AddWebHookCommand {
	return &AddWebHookCommand{service: service}
}

func (c *AddWebHookCommand) Execute(ctx context.Context, msg AddWebHookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	out, err := c.service.AddWebHook(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateWebHookCommand struct {
	service WebHookService
}

func NewUpdateWebHookCommand(service WebHookService) *UpdateWebHookCommand {
	return &UpdateWebHookCommand{service: service}
}

func (c *UpdateWebHookCommand) Execute(ctx context.Context, msg UpdateWebHookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	out, err := c.service.UpdateWebHook(ctx, msg.ID, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteWebHookCommand struct {
	service WebHookService
}

func NewDeleteWebHookCommand(service WebHookService) *DeleteWebHookCommand {
	return &DeleteWebHookCommand{service: service}
}

func (c *DeleteWebHookCommand) Execute(ctx context.Context, msg DeleteWebHookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	return c.service.DeleteWebHook(ctx, msg.ID)
}

type QueueEventCommand struct {
	publisher EventPublisher
}

func NewQueueEventCommand(publisher EventPublisher) *QueueEventCommand {
	return &QueueEventCommand{publisher: publisher}
}

// Execute queues the event and stores the message id it was queued under.
func (c *QueueEventCommand) Execute(ctx context.Context, msg QueueEventMessage) error {
	if c == nil || c.publisher == nil {
		return commandDependencyError("command: event publisher is required")
	}
	messageID := msg.MessageID
	if messageID == uuid.Nil {
		messageID = uuid.New()
	}
	if err := c.publisher.QueueEvent(ctx, messageID, msg.EventName, msg.Payload); err != nil {
		return err
	}
	storeResult(ctx, messageID)
	return nil
}

type DeliverNowCommand struct {
	publisher EventPublisher
}

func NewDeliverNowCommand(publisher EventPublisher) *DeliverNowCommand {
	return &DeliverNowCommand{publisher: publisher}
}

func (c *DeliverNowCommand) Execute(ctx context.Context, _ DeliverNowMessage) error {
	if c == nil || c.publisher == nil {
		return commandDependencyError("command: event publisher is required")
	}
	stats, err := c.publisher.DeliverNow(ctx)
	storeResult(ctx, stats)
	return err
}

type AddSubscriptionCommand struct {
	service SubscriptionService
}

func NewAddSubscriptionCommand(service SubscriptionService) *AddSubscriptionCommand {
	return &AddSubscriptionCommand{service: service}
}

func (c *AddSubscriptionCommand) Execute(ctx context.Context, msg AddSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	out, err := c.service.Add(ctx, msg.Name)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteSubscriptionCommand struct {
	service SubscriptionService
}

func NewDeleteSubscriptionCommand(service SubscriptionService) *DeleteSubscriptionCommand {
	return &DeleteSubscriptionCommand{service: service}
}

func (c *DeleteSubscriptionCommand) Execute(ctx context.Context, msg DeleteSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	return c.service.Delete(ctx, msg.ID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
