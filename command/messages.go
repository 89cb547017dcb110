package command

import (
	"strings"

	"github.com/goliatone/go-hooks/publisher"
	"github.com/google/uuid"
)

const (
	TypeAddWebHook         = "hooks.command.webhook.add"
	TypeUpdateWebHook      = "hooks.command.webhook.update"
	TypeDeleteWebHook      = "hooks.command.webhook.delete"
	TypeQueueEvent         = "hooks.command.event.queue"
	TypeDeliverNow         = "hooks.command.delivery.run"
	TypeAddSubscription    = "hooks.command.subscription.add"
	TypeDeleteSubscription = "hooks.command.subscription.delete"
)

type AddWebHookMessage struct {
	Input publisher.WebHookInput
}

func (AddWebHookMessage) Type() string { return TypeAddWebHook }

func (m AddWebHookMessage) Validate() error {
	return commandWrapValidation(m.Input.Validate(), "command: invalid webhook")
}

type UpdateWebHookMessage struct {
	ID    uuid.UUID
	Input publisher.WebHookInput
}

func (UpdateWebHookMessage) Type() string { return TypeUpdateWebHook }

func (m UpdateWebHookMessage) Validate() error {
	if m.ID == uuid.Nil {
		return commandValidationError("id", "webhook id is required")
	}
	return commandWrapValidation(m.Input.Validate(), "command: invalid webhook")
}

type DeleteWebHookMessage struct {
	ID uuid.UUID
}

func (DeleteWebHookMessage) Type() string { return TypeDeleteWebHook }

func (m DeleteWebHookMessage) Validate() error {
	if m.ID == uuid.Nil {
		return commandValidationError("id", "webhook id is required")
	}
	return nil
}

// QueueEventMessage fans an event out to every webhook that selects it.
// MessageID is generated when left empty.
type QueueEventMessage struct {
	MessageID uuid.UUID
	EventName string
	Payload   []byte
}

func (QueueEventMessage) Type() string { return TypeQueueEvent }

func (m QueueEventMessage) Validate() error {
	if strings.TrimSpace(m.EventName) == "" {
		return commandValidationError("event_name", "event name is required")
	}
	return nil
}

type DeliverNowMessage struct{}

func (DeliverNowMessage) Type() string { return TypeDeliverNow }

func (DeliverNowMessage) Validate() error { return nil }

type AddSubscriptionMessage struct {
	Name string
}

func (AddSubscriptionMessage) Type() string { return TypeAddSubscription }

func (m AddSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return commandValidationError("name", "subscription name is required")
	}
	return nil
}

type DeleteSubscriptionMessage struct {
	ID uuid.UUID
}

func (DeleteSubscriptionMessage) Type() string { return TypeDeleteSubscription }

func (m DeleteSubscriptionMessage) Validate() error {
	if m.ID == uuid.Nil {
		return commandValidationError("id", "subscription id is required")
	}
	return nil
}
