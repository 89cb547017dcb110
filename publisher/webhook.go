package publisher

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goliatone/go-hooks/core"
	"github.com/google/uuid"
)

type FilterKind string

const (
	FilterEverything     FilterKind = "everything"
	FilterSelectedEvents FilterKind = "selected_events"
)

// Filter chooses which event names a webhook receives.
type Filter struct {
	Kind   FilterKind `json:"kind"`
	Events []string   `json:"events,omitempty"`
}

func Everything() Filter {
	return Filter{Kind: FilterEverything}
}

func SelectedEvents(events ...string) Filter {
	return Filter{Kind: FilterSelectedEvents, Events: normalizeEvents(events)}
}

// Selects reports whether a webhook with this filter receives eventName.
// Enabled only gates the selected events branch; an Everything webhook is
// selected even while disabled.
func (f Filter) Selects(eventName string, enabled bool) bool {
	if f.Kind != FilterSelectedEvents {
		return true
	}
	return enabled && slices.Contains(f.Events, eventName)
}

func (f Filter) normalized() Filter {
	if f.Kind != FilterSelectedEvents {
		return Everything()
	}
	return SelectedEvents(f.Events...)
}

// WebHook is a registered delivery target.
type WebHook struct {
	ID        uuid.UUID `json:"id"`
	TargetURL string    `json:"targetUrl"`
	Enabled   bool      `json:"enabled"`
	Filter    Filter    `json:"filter"`
	Secret    string    `json:"secret,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	// EnabledAt is set when an update turns a disabled webhook back on.
	EnabledAt time.Time `json:"enabledAt,omitzero"`
}

// reenabledSince reports whether the webhook was switched back on after t.
func (w WebHook) reenabledSince(t time.Time) bool {
	return !w.EnabledAt.IsZero() && w.EnabledAt.After(t)
}

func (w WebHook) HasSecret() bool {
	return strings.TrimSpace(w.Secret) != ""
}

func (w WebHook) OutStream() string {
	return OutStreamID(w.ID)
}

func (w WebHook) DeliveriesStream() string {
	return DeliveriesStreamID(w.ID)
}

func (w WebHook) clone() WebHook {
	w.Filter.Events = slices.Clone(w.Filter.Events)
	return w
}

// WebHooksState is the snapshot form of the registry.
type WebHooksState struct {
	WebHooks []WebHook `json:"webHooks"`
}

// WebHooks is the in-memory registry aggregate. Callers persist it through
// the snapshot repository; it is not safe for concurrent use.
type WebHooks struct {
	max   int
	now   core.Clock
	newID func() uuid.UUID
	items []WebHook
}

func NewWebHooks(maxCount int, now core.Clock) *WebHooks {
	return RestoreWebHooks(WebHooksState{}, maxCount, now)
}

func RestoreWebHooks(state WebHooksState, maxCount int, now core.Clock) *WebHooks {
	if maxCount <= 0 {
		maxCount = core.DefaultMaxWebHookCount
	}
	if now == nil {
		now = core.SystemClock
	}
	items := make([]WebHook, 0, len(state.WebHooks))
	for _, hook := range state.WebHooks {
		if hook.ID == uuid.Nil {
			continue
		}
		hook.Filter = hook.Filter.normalized()
		items = append(items, hook.clone())
	}
	return &WebHooks{max: maxCount, now: now, newID: uuid.New, items: items}
}

func (r *WebHooks) State() WebHooksState {
	return WebHooksState{WebHooks: r.List()}
}

func (r *WebHooks) Len() int {
	return len(r.items)
}

func (r *WebHooks) Max() int {
	return r.max
}

// Add registers a new webhook. At capacity it returns a limit reached error
// and leaves the registry untouched.
func (r *WebHooks) Add(targetURL string, enabled bool, filter Filter, secret string) (WebHook, error) {
	if len(r.items) >= r.max {
		return WebHook{}, core.LimitReachedError(
			fmt.Sprintf("publisher: webhook limit reached (%d)", r.max),
			map[string]any{"max_webhooks": r.max},
		)
	}
	now := r.now()
	hook := WebHook{
		ID:        r.newID(),
		TargetURL: strings.TrimSpace(targetURL),
		Enabled:   enabled,
		Filter:    filter.normalized(),
		Secret:    secret,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.items = append(r.items, hook)
	return hook.clone(), nil
}

// Update replaces the mutable fields of a webhook. A nil secret keeps the
// current one; a pointer to "" clears it.
func (r *WebHooks) Update(id uuid.UUID, targetURL string, filter Filter, enabled bool, secret *string) (WebHook, error) {
	idx := r.indexOf(id)
	if idx < 0 {
		return WebHook{}, webHookNotFound(id)
	}
	hook := &r.items[idx]
	hook.TargetURL = strings.TrimSpace(targetURL)
	now := r.now()
	hook.Filter = filter.normalized()
	if enabled && !hook.Enabled {
		hook.EnabledAt = now
	}
	hook.Enabled = enabled
	if secret != nil {
		hook.Secret = *secret
	}
	hook.UpdatedAt = now
	return hook.clone(), nil
}

func (r *WebHooks) Disable(id uuid.UUID) error {
	idx := r.indexOf(id)
	if idx < 0 {
		return webHookNotFound(id)
	}
	r.items[idx].Enabled = false
	r.items[idx].UpdatedAt = r.now()
	return nil
}

func (r *WebHooks) Delete(id uuid.UUID) bool {
	idx := r.indexOf(id)
	if idx < 0 {
		return false
	}
	r.items = slices.Delete(r.items, idx, idx+1)
	return true
}

func (r *WebHooks) Get(id uuid.UUID) (WebHook, bool) {
	idx := r.indexOf(id)
	if idx < 0 {
		return WebHook{}, false
	}
	return r.items[idx].clone(), true
}

// List returns copies in insertion order.
func (r *WebHooks) List() []WebHook {
	out := make([]WebHook, 0, len(r.items))
	for _, hook := range r.items {
		out = append(out, hook.clone())
	}
	return out
}

func (r *WebHooks) indexOf(id uuid.UUID) int {
	return slices.IndexFunc(r.items, func(hook WebHook) bool { return hook.ID == id })
}

func OutStreamID(id uuid.UUID) string {
	return "webhooks/" + id.String() + "/out"
}

func DeliveriesStreamID(id uuid.UUID) string {
	return "webhooks/" + id.String() + "/deliveries"
}

func SnapshotStreamID(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = core.DefaultPublisherSnapshotStream
	}
	return "registrations/" + name
}

func normalizeEvents(events []string) []string {
	out := make([]string, 0, len(events))
	for _, event := range events {
		event = strings.TrimSpace(event)
		if event == "" || slices.Contains(out, event) {
			continue
		}
		out = append(out, event)
	}
	return out
}
