package publisher

import (
	"testing"
	"time"

	"github.com/goliatone/go-hooks/core"
	"github.com/google/uuid"
)

func fixedClock(now time.Time) core.Clock {
	return func() time.Time { return now }
}

func TestWebHooks_AddRejectsBeyondMaxWithoutMutation(t *testing.T) {
	registry := NewWebHooks(2, fixedClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	for i := 0; i < 2; i++ {
		if _, err := registry.Add("https://example.com/hook", true, Everything(), ""); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	before := registry.List()

	_, err := registry.Add("https://example.com/over", true, Everything(), "")
	if !core.IsLimitReached(err) {
		t.Fatalf("expected limit reached, got %v", err)
	}
	after := registry.List()
	if len(after) != 2 {
		t.Fatalf("expected registry size to stay at 2, got %d", len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID {
			t.Fatalf("registry changed after rejected add")
		}
	}
}

func TestWebHooks_AddSetsIdentityAndTimestamps(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	registry := NewWebHooks(10, fixedClock(now))
	hook, err := registry.Add(" https://example.com/hook ", false, SelectedEvents("a", " b ", "a", ""), "s3cret")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if hook.ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}
	if !hook.CreatedAt.Equal(now) || !hook.UpdatedAt.Equal(now) {
		t.Fatalf("expected created and updated at %s, got %s %s", now, hook.CreatedAt, hook.UpdatedAt)
	}
	if hook.TargetURL != "https://example.com/hook" || hook.Enabled {
		t.Fatalf("unexpected webhook %#v", hook)
	}
	if len(hook.Filter.Events) != 2 || hook.Filter.Events[0] != "a" || hook.Filter.Events[1] != "b" {
		t.Fatalf("expected normalized events, got %#v", hook.Filter.Events)
	}
	if !hook.HasSecret() {
		t.Fatalf("expected secret")
	}
}

func TestWebHooks_UpdateSecretSemantics(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := now
	registry := NewWebHooks(10, func() time.Time { return clock })
	hook, err := registry.Add("https://example.com/hook", true, Everything(), "original")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	clock = now.Add(time.Minute)
	updated, err := registry.Update(hook.ID, "https://example.com/v2", SelectedEvents("x"), false, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Secret != "original" {
		t.Fatalf("expected nil secret to keep the existing one, got %q", updated.Secret)
	}
	if updated.TargetURL != "https://example.com/v2" || updated.Enabled || updated.Filter.Kind != FilterSelectedEvents {
		t.Fatalf("mutable fields not replaced: %#v", updated)
	}
	if !updated.UpdatedAt.Equal(clock) || !updated.CreatedAt.Equal(now) {
		t.Fatalf("unexpected timestamps %s %s", updated.CreatedAt, updated.UpdatedAt)
	}

	empty := ""
	cleared, err := registry.Update(hook.ID, "https://example.com/v2", Everything(), true, &empty)
	if err != nil {
		t.Fatalf("clear secret: %v", err)
	}
	if cleared.HasSecret() {
		t.Fatalf("expected empty secret to clear it")
	}

	if _, err := registry.Update(uuid.New(), "https://example.com", Everything(), true, nil); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWebHooks_DisableDeleteAndOrder(t *testing.T) {
	registry := NewWebHooks(10, nil)
	first, _ := registry.Add("https://example.com/1", true, Everything(), "")
	second, _ := registry.Add("https://example.com/2", true, Everything(), "")
	third, _ := registry.Add("https://example.com/3", true, Everything(), "")

	if err := registry.Disable(second.ID); err != nil {
		t.Fatalf("disable: %v", err)
	}
	got, ok := registry.Get(second.ID)
	if !ok || got.Enabled {
		t.Fatalf("expected disabled webhook, got %#v", got)
	}
	if err := registry.Disable(uuid.New()); !core.IsNotFound(err) {
		t.Fatalf("expected not found on disable, got %v", err)
	}

	if !registry.Delete(first.ID) {
		t.Fatalf("expected delete to succeed")
	}
	if registry.Delete(first.ID) {
		t.Fatalf("expected second delete to report false")
	}
	list := registry.List()
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != third.ID {
		t.Fatalf("expected insertion order to be preserved, got %#v", list)
	}
}

func TestWebHooks_StateRoundTripKeepsOrder(t *testing.T) {
	registry := NewWebHooks(10, nil)
	a, _ := registry.Add("https://example.com/a", true, SelectedEvents("x"), "k")
	b, _ := registry.Add("https://example.com/b", false, Everything(), "")

	restored := RestoreWebHooks(registry.State(), 10, nil)
	list := restored.List()
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("unexpected restored order %#v", list)
	}
	if list[0].Secret != "k" || list[0].Filter.Events[0] != "x" || list[1].Enabled {
		t.Fatalf("unexpected restored values %#v", list)
	}
}

func TestFilter_SelectsBindsEnabledOnlyToSelectedEvents(t *testing.T) {
	cases := []struct {
		name    string
		filter  Filter
		event   string
		enabled bool
		want    bool
	}{
		{name: "everything enabled", filter: Everything(), event: "foo", enabled: true, want: true},
		{name: "everything disabled", filter: Everything(), event: "foo", enabled: false, want: true},
		{name: "selected match enabled", filter: SelectedEvents("foo"), event: "foo", enabled: true, want: true},
		{name: "selected match disabled", filter: SelectedEvents("foo"), event: "foo", enabled: false, want: false},
		{name: "selected miss", filter: SelectedEvents("bar"), event: "foo", enabled: true, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Selects(tc.event, tc.enabled); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestStreamIDs(t *testing.T) {
	id := uuid.MustParse("6f1c7f3e-1a5d-4c1b-9a39-0b7a2b1f0e11")
	if got := OutStreamID(id); got != "webhooks/6f1c7f3e-1a5d-4c1b-9a39-0b7a2b1f0e11/out" {
		t.Fatalf("unexpected out stream %q", got)
	}
	if got := DeliveriesStreamID(id); got != "webhooks/6f1c7f3e-1a5d-4c1b-9a39-0b7a2b1f0e11/deliveries" {
		t.Fatalf("unexpected deliveries stream %q", got)
	}
	if got := SnapshotStreamID(""); got != "registrations/webhooks" {
		t.Fatalf("unexpected snapshot stream %q", got)
	}
}
