package inbound

import (
	"context"
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hooks/core"
	"github.com/goliatone/go-hooks/streams"
	"github.com/goliatone/go-hooks/webhooks"
	"github.com/google/uuid"
)

type stubResolver struct {
	targets map[uuid.UUID]Target
	err     error
}

func (s stubResolver) ResolveTarget(_ context.Context, id uuid.UUID) (Target, error) {
	if s.err != nil {
		return Target{}, s.err
	}
	target, ok := s.targets[id]
	if !ok {
		return Target{}, core.NotFoundError("subscription not found", nil)
	}
	return target, nil
}

type failingAppendStore struct {
	streams.Store
}

func (failingAppendStore) Append(context.Context, string, int64, ...streams.NewMessage) (streams.AppendResult, error) {
	return streams.AppendResult{}, errors.New("database is locked")
}

func newTarget(secret string) Target {
	id := uuid.New()
	return Target{SubscriptionID: id, Secret: secret, InboxStream: "webhooks/subscriptions/" + id.String() + "/inbox"}
}

func deliveryHeaders(vendor string, secret string, body []byte) http.Header {
	header := http.Header{}
	webhooks.NewHeaders(vendor).Apply(header, webhooks.Envelope{
		EventName: "foo",
		MessageID: uuid.New(),
		Sequence:  1,
		Signature: webhooks.Sign(secret, body),
	})
	return header
}

func TestReceiver_AcceptsUnsignedDeliveryWhenNoSecret(t *testing.T) {
	target := newTarget("")
	store := streams.NewMemoryStore()
	receiver := NewReceiver(stubResolver{targets: map[uuid.UUID]Target{target.SubscriptionID: target}}, store, "Acme")
	body := []byte(`{"ok":true}`)

	result, err := receiver.Receive(context.Background(), target.SubscriptionID, deliveryHeaders("Acme", "", body), body)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if result.Status != StatusOK || result.EventName != "foo" {
		t.Fatalf("unexpected result %#v", result)
	}
	page, _ := store.ReadForwards(context.Background(), target.InboxStream, streams.VersionStart, 10)
	if len(page.Messages) != 1 || page.Messages[0].ID != result.MessageID {
		t.Fatalf("expected inbox append keyed by message id, got %#v", page.Messages)
	}
}

func TestReceiver_RejectsMissingHeaders(t *testing.T) {
	target := newTarget("secret")
	receiver := NewReceiver(stubResolver{targets: map[uuid.UUID]Target{target.SubscriptionID: target}}, streams.NewMemoryStore(), "")
	headers := webhooks.NewHeaders("")
	body := []byte(`{}`)

	for _, name := range []string{headers.EventName, headers.MessageID, headers.Sequence, headers.Signature} {
		t.Run(name, func(t *testing.T) {
			header := deliveryHeaders("", "secret", body)
			header.Del(name)
			result, err := receiver.Receive(context.Background(), target.SubscriptionID, header, body)
			if result.Status != StatusBadRequest {
				t.Fatalf("expected bad request, got %#v", result)
			}
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorBadInput || rich.Code != http.StatusBadRequest {
				t.Fatalf("expected bad input envelope, got %v", err)
			}
		})
	}
}

func TestReceiver_WrongVendorHeadersAreRejected(t *testing.T) {
	target := newTarget("secret")
	receiver := NewReceiver(stubResolver{targets: map[uuid.UUID]Target{target.SubscriptionID: target}}, streams.NewMemoryStore(), "Acme")
	body := []byte(`{}`)

	result, _ := receiver.Receive(context.Background(), target.SubscriptionID, deliveryHeaders("Other", "secret", body), body)
	if result.Status != StatusBadRequest {
		t.Fatalf("expected bad request for foreign vendor headers, got %#v", result)
	}
}

func TestReceiver_StoreFailureIsPropagated(t *testing.T) {
	target := newTarget("secret")
	receiver := NewReceiver(
		stubResolver{targets: map[uuid.UUID]Target{target.SubscriptionID: target}},
		failingAppendStore{Store: streams.NewMemoryStore()},
		"",
	)
	body := []byte(`{}`)

	result, err := receiver.Receive(context.Background(), target.SubscriptionID, deliveryHeaders("", "secret", body), body)
	if result.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 result, got %#v", result)
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorStoreFailure {
		t.Fatalf("expected store failure, got %v", err)
	}
}

func TestReceiver_ResolverFailureIsNotReportedAsNotFound(t *testing.T) {
	receiver := NewReceiver(stubResolver{err: errors.New("boom")}, streams.NewMemoryStore(), "")
	result, err := receiver.Receive(context.Background(), uuid.New(), http.Header{}, nil)
	if err == nil || result.Status != StatusFailed {
		t.Fatalf("expected failure result, got %#v %v", result, err)
	}
}
