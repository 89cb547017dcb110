package query

import (
	"github.com/goliatone/go-hooks/streams"
	"github.com/google/uuid"
)

const (
	TypeListWebHooks      = "hooks.query.webhook.list"
	TypeGetWebHook        = "hooks.query.webhook.get"
	TypeOutPage           = "hooks.query.webhook.out_page"
	TypeDeliveriesPage    = "hooks.query.webhook.deliveries_page"
	TypeListSubscriptions = "hooks.query.subscription.list"
	TypeGetSubscription   = "hooks.query.subscription.get"
	TypeInboxPage         = "hooks.query.subscription.inbox_page"
)

type ListWebHooksMessage struct{}

func (ListWebHooksMessage) Type() string { return TypeListWebHooks }

func (ListWebHooksMessage) Validate() error { return nil }

type GetWebHookMessage struct {
	ID uuid.UUID
}

func (GetWebHookMessage) Type() string { return TypeGetWebHook }

func (m GetWebHookMessage) Validate() error {
	return requireID(m.ID, "webhook id is required")
}

// OutPageMessage reads queued events oldest first. A nil Start begins at the
// first version.
type OutPageMessage struct {
	ID    uuid.UUID
	Start *int64
}

func (OutPageMessage) Type() string { return TypeOutPage }

func (m OutPageMessage) Validate() error {
	return requireID(m.ID, "webhook id is required")
}

func (m OutPageMessage) start() int64 {
	if m.Start == nil {
		return streams.VersionStart
	}
	return *m.Start
}

// DeliveriesPageMessage reads delivery attempts newest first. A nil Start
// begins at the latest version.
type DeliveriesPageMessage struct {
	ID    uuid.UUID
	Start *int64
}

func (DeliveriesPageMessage) Type() string { return TypeDeliveriesPage }

func (m DeliveriesPageMessage) Validate() error {
	if err := requireID(m.ID, "webhook id is required"); err != nil {
		return err
	}
	if m.Start != nil && *m.Start < streams.VersionEnd {
		return queryValidationError("start", "start must be >= -1")
	}
	return nil
}

func (m DeliveriesPageMessage) start() int64 {
	if m.Start == nil {
		return streams.VersionEnd
	}
	return *m.Start
}

type ListSubscriptionsMessage struct{}

func (ListSubscriptionsMessage) Type() string { return TypeListSubscriptions }

func (ListSubscriptionsMessage) Validate() error { return nil }

type GetSubscriptionMessage struct {
	ID uuid.UUID
}

func (GetSubscriptionMessage) Type() string { return TypeGetSubscription }

func (m GetSubscriptionMessage) Validate() error {
	return requireID(m.ID, "subscription id is required")
}

type InboxPageMessage struct {
	ID    uuid.UUID
	Start int64
}

func (InboxPageMessage) Type() string { return TypeInboxPage }

func (m InboxPageMessage) Validate() error {
	if err := requireID(m.ID, "subscription id is required"); err != nil {
		return err
	}
	if m.Start < streams.VersionStart {
		return queryValidationError("start", "start must be >= 0")
	}
	return nil
}

func requireID(id uuid.UUID, message string) error {
	if id == uuid.Nil {
		return queryValidationError("id", message)
	}
	return nil
}
