package streams

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestMessage(eventType string) NewMessage {
	return NewMessage{
		ID:   uuid.New(),
		Type: eventType,
		Data: []byte(`{"id":1}`),
	}
}

func TestMemoryStore_AppendAssignsVersionsAndTimestamps(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := NewMemoryStore()
	store.Now = func() time.Time { return now }

	result, err := store.Append(ctx, "orders", ExpectedVersionNoStream, newTestMessage("created"), newTestMessage("paid"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if result.CurrentVersion != 1 {
		t.Fatalf("expected current version 1, got %d", result.CurrentVersion)
	}

	page, err := store.ReadForwards(ctx, "orders", VersionStart, 10)
	if err != nil {
		t.Fatalf("read forwards: %v", err)
	}
	if !page.Found() || len(page.Messages) != 2 {
		t.Fatalf("expected two messages, got %#v", page)
	}
	if page.Messages[0].Version != 0 || page.Messages[1].Version != 1 {
		t.Fatalf("unexpected versions %d %d", page.Messages[0].Version, page.Messages[1].Version)
	}
	if !page.Messages[0].CreatedAt.Equal(now) {
		t.Fatalf("expected created at %s, got %s", now, page.Messages[0].CreatedAt)
	}
	if !page.IsEnd {
		t.Fatalf("expected end of stream")
	}
}

func TestMemoryStore_AppendIsIdempotentByMessageID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	msg := newTestMessage("received")

	if _, err := store.Append(ctx, "inbox", ExpectedVersionAny, msg); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if _, err := store.Append(ctx, "inbox", ExpectedVersionAny, msg); err != nil {
		t.Fatalf("replayed append: %v", err)
	}
	page, err := store.ReadForwards(ctx, "inbox", VersionStart, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(page.Messages) != 1 {
		t.Fatalf("expected one message after replay, got %d", len(page.Messages))
	}

	if _, err := store.Append(ctx, "inbox", ExpectedVersionAny, msg, newTestMessage("other")); !IsWrongExpectedVersion(err) {
		t.Fatalf("expected partial replay conflict, got %v", err)
	}
}

func TestMemoryStore_ExpectedVersionChecks(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	first := newTestMessage("a")
	if _, err := store.Append(ctx, "s", ExpectedVersionNoStream, first); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append(ctx, "s", ExpectedVersionNoStream, newTestMessage("b")); !IsWrongExpectedVersion(err) {
		t.Fatalf("expected conflict for existing stream, got %v", err)
	}
	if _, err := store.Append(ctx, "s", ExpectedVersionNoStream, first); err != nil {
		t.Fatalf("expected idempotent replay at same position, got %v", err)
	}
	if _, err := store.Append(ctx, "s", 0, newTestMessage("c")); err != nil {
		t.Fatalf("append at version 0: %v", err)
	}
	if _, err := store.Append(ctx, "s", 5, newTestMessage("d")); !IsWrongExpectedVersion(err) {
		t.Fatalf("expected conflict for version ahead, got %v", err)
	}
}

func TestMemoryStore_ReadBackwardsPages(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for i := 0; i < 5; i++ {
		if _, err := store.Append(ctx, "s", ExpectedVersionAny, newTestMessage("e")); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	page, err := store.ReadBackwards(ctx, "s", VersionEnd, 2)
	if err != nil {
		t.Fatalf("read backwards: %v", err)
	}
	if len(page.Messages) != 2 || page.Messages[0].Version != 4 || page.Messages[1].Version != 3 {
		t.Fatalf("unexpected first page %#v", page.Messages)
	}
	if page.IsEnd || page.NextVersion != 2 {
		t.Fatalf("expected continuation at 2, got end=%v next=%d", page.IsEnd, page.NextVersion)
	}

	page, err = store.ReadBackwards(ctx, "s", page.NextVersion, 10)
	if err != nil {
		t.Fatalf("read backwards: %v", err)
	}
	if len(page.Messages) != 3 || !page.IsEnd {
		t.Fatalf("expected remaining three messages, got %d", len(page.Messages))
	}

	missing, err := store.ReadBackwards(ctx, "missing", VersionEnd, 1)
	if err != nil {
		t.Fatalf("read missing: %v", err)
	}
	if missing.Found() {
		t.Fatalf("expected stream not found")
	}
}

func TestMemoryStore_MaxCountTruncatesOldest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.SetMetadata(ctx, "snap", Metadata{MaxCount: 1}); err != nil {
		t.Fatalf("set metadata: %v", err)
	}

	page, err := store.ReadBackwards(ctx, "snap", VersionEnd, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if page.Found() {
		t.Fatalf("metadata alone must not create the stream")
	}

	var last NewMessage
	for i := 0; i < 3; i++ {
		last = newTestMessage("snapshot")
		if _, err := store.Append(ctx, "snap", ExpectedVersionAny, last); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	page, err = store.ReadForwards(ctx, "snap", VersionStart, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].ID != last.ID {
		t.Fatalf("expected only the newest message to be retained, got %#v", page.Messages)
	}
	if page.Messages[0].Version != 2 {
		t.Fatalf("expected versions to keep counting after truncation, got %d", page.Messages[0].Version)
	}
}

func TestMemoryStore_DeleteMessageAndStream(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	first := newTestMessage("a")
	second := newTestMessage("b")
	if _, err := store.Append(ctx, "out", ExpectedVersionAny, first, second); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.DeleteMessage(ctx, "out", first.ID); err != nil {
		t.Fatalf("delete message: %v", err)
	}
	page, err := store.ReadForwards(ctx, "out", VersionStart, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].ID != second.ID {
		t.Fatalf("expected oldest remaining message to be the second one")
	}

	if err := store.DeleteStream(ctx, "out"); err != nil {
		t.Fatalf("delete stream: %v", err)
	}
	page, err = store.ReadForwards(ctx, "out", VersionStart, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if page.Found() {
		t.Fatalf("expected deleted stream to be missing")
	}
}

func TestMemoryStore_RejectsInvalidAppends(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Append(ctx, "", ExpectedVersionAny, newTestMessage("a")); err == nil {
		t.Fatalf("expected stream id validation error")
	}
	if _, err := store.Append(ctx, "s", ExpectedVersionAny, NewMessage{Type: "a"}); err == nil {
		t.Fatalf("expected message id validation error")
	}
	if _, err := store.Append(ctx, "s", ExpectedVersionAny); err == nil {
		t.Fatalf("expected empty batch validation error")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := store.Append(cancelled, "s", ExpectedVersionAny, newTestMessage("a")); err == nil {
		t.Fatalf("expected cancelled context error")
	}
}
