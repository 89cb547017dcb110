package subscriber

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goliatone/go-hooks/core"
	"github.com/google/uuid"
)

// Subscription is an inbound endpoint registered with a publisher.
type Subscription struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Secret    string    `json:"secret"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s Subscription) InboxStream() string {
	return InboxStreamID(s.ID)
}

// RelativeURI is the receive path handed to the publisher.
func (s Subscription) RelativeURI() string {
	return "hooks/" + s.ID.String()
}

type SubscriptionsState struct {
	Subscriptions []Subscription `json:"subscriptions"`
}

// Subscriptions is the in-memory registry aggregate.
type Subscriptions struct {
	max       int
	now       core.Clock
	newID     func() uuid.UUID
	newSecret func() string
	items     []Subscription
}

func NewSubscriptions(maxCount int, now core.Clock) *Subscriptions {
	return RestoreSubscriptions(SubscriptionsState{}, maxCount, now)
}

func RestoreSubscriptions(state SubscriptionsState, maxCount int, now core.Clock) *Subscriptions {
	if maxCount <= 0 {
		maxCount = core.DefaultMaxSubscriptionCount
	}
	if now == nil {
		now = core.SystemClock
	}
	items := make([]Subscription, 0, len(state.Subscriptions))
	for _, sub := range state.Subscriptions {
		if sub.ID != uuid.Nil {
			items = append(items, sub)
		}
	}
	return &Subscriptions{
		max:       maxCount,
		now:       now,
		newID:     uuid.New,
		newSecret: func() string { return uuid.NewString() },
		items:     items,
	}
}

func (r *Subscriptions) State() SubscriptionsState {
	return SubscriptionsState{Subscriptions: r.List()}
}

func (r *Subscriptions) Len() int {
	return len(r.items)
}

// Add creates a subscription with a generated secret.
func (r *Subscriptions) Add(name string) (Subscription, error) {
	if len(r.items) >= r.max {
		return Subscription{}, core.LimitReachedError(
			fmt.Sprintf("subscriber: subscription limit reached (%d)", r.max),
			map[string]any{"max_subscriptions": r.max},
		)
	}
	sub := Subscription{
		ID:        r.newID(),
		Name:      strings.TrimSpace(name),
		Secret:    r.newSecret(),
		CreatedAt: r.now(),
	}
	r.items = append(r.items, sub)
	return sub, nil
}

func (r *Subscriptions) Get(id uuid.UUID) (Subscription, bool) {
	idx := r.indexOf(id)
	if idx < 0 {
		return Subscription{}, false
	}
	return r.items[idx], true
}

func (r *Subscriptions) Delete(id uuid.UUID) bool {
	idx := r.indexOf(id)
	if idx < 0 {
		return false
	}
	r.items = slices.Delete(r.items, idx, idx+1)
	return true
}

func (r *Subscriptions) List() []Subscription {
	return append([]Subscription{}, r.items...)
}

func (r *Subscriptions) indexOf(id uuid.UUID) int {
	return slices.IndexFunc(r.items, func(sub Subscription) bool { return sub.ID == id })
}

func InboxStreamID(id uuid.UUID) string {
	return "webhooks/subscriptions/" + id.String() + "/inbox"
}

func SnapshotStreamID(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = core.DefaultSubscriberSnapshotStream
	}
	return "registrations/" + name
}
