package inbound

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hooks/core"
	"github.com/goliatone/go-hooks/streams"
	"github.com/goliatone/go-hooks/webhooks"
	"github.com/google/uuid"
)

// Target is what the receiver needs to know about a subscription.
type Target struct {
	SubscriptionID uuid.UUID
	Secret         string
	InboxStream    string
}

// TargetResolver looks up a subscription. Unknown ids return a not found
// error.
type TargetResolver interface {
	ResolveTarget(ctx context.Context, subscriptionID uuid.UUID) (Target, error)
}

type Status string

const (
	StatusOK         Status = "ok"
	StatusNotFound   Status = "not_found"
	StatusBadRequest Status = "bad_request"
	StatusFailed     Status = "failed"
)

type Result struct {
	Status     Status
	StatusCode int
	Reason     string
	MessageID  uuid.UUID
	EventName  string
}

// InboxMetadata is stored with every inbox entry.
type InboxMetadata struct {
	Sequence   int64     `json:"sequence"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type Receiver struct {
	Resolver TargetResolver
	Store    streams.Store
	Headers  webhooks.Headers
	Now      core.Clock
	// FailReceive, when it returns true, makes Receive fail with a 500 after
	// the subscription lookup. Used to simulate an unhealthy subscriber.
	FailReceive func() bool

	observer core.Observer
}

func NewReceiver(resolver TargetResolver, store streams.Store, vendor string) *Receiver {
	return &Receiver{
		Resolver: resolver,
		Store:    store,
		Headers:  webhooks.NewHeaders(vendor),
		Now:      core.SystemClock,
		observer: core.NewObserver("hooks.inbound", nil, nil, nil),
	}
}

func (r *Receiver) WithObserver(observer core.Observer) *Receiver {
	if r != nil {
		r.observer = observer
	}
	return r
}

// Receive verifies one delivery and appends it to the subscription inbox.
// The returned error is nil only for StatusOK.
func (r *Receiver) Receive(ctx context.Context, subscriptionID uuid.UUID, header http.Header, body []byte) (result Result, err error) {
	startedAt := time.Now()
	fields := map[string]any{"subscription_id": subscriptionID.String()}
	defer func() {
		if r == nil {
			return
		}
		fields["status"] = string(result.Status)
		r.observer.Observe(ctx, startedAt, "receive", err, fields)
	}()

	if r == nil || r.Resolver == nil || r.Store == nil {
		return failed(http.StatusInternalServerError, "receiver not configured"),
			inboundInternal("inbound: receiver is not configured", nil)
	}

	target, err := r.Resolver.ResolveTarget(ctx, subscriptionID)
	if err != nil {
		if core.IsNotFound(err) {
			return Result{Status: StatusNotFound, StatusCode: http.StatusNotFound, Reason: "subscription not found"}, err
		}
		return failed(http.StatusInternalServerError, "subscription lookup failed"), err
	}

	if r.FailReceive != nil && r.FailReceive() {
		return failed(http.StatusInternalServerError, "receive error"),
			inboundInternal("inbound: receive error", fields)
	}

	env, err := r.Headers.Parse(header, strings.TrimSpace(target.Secret) != "")
	if err != nil {
		return badRequest(err), err
	}
	fields["message_id"] = env.MessageID.String()
	fields["event_name"] = env.EventName

	if !webhooks.Verify(target.Secret, body, env.Signature) {
		err := inboundBadInput("inbound: signature mismatch", fields)
		return badRequest(err), err
	}

	metadata, err := json.Marshal(InboxMetadata{Sequence: env.Sequence, ReceivedAt: r.now()})
	if err != nil {
		return failed(http.StatusInternalServerError, "encode inbox metadata"),
			inboundWrapError(err, goerrors.CategoryInternal, "inbound: encode inbox metadata", core.ErrorInternal, fields)
	}
	if _, err := r.Store.Append(ctx, target.InboxStream, streams.ExpectedVersionAny, streams.NewMessage{
		ID:       env.MessageID,
		Type:     env.EventName,
		Data:     body,
		Metadata: metadata,
	}); err != nil {
		return failed(http.StatusInternalServerError, "append to inbox failed"),
			core.StoreError(err, "inbound: append to inbox", map[string]any{
				"stream_id":  target.InboxStream,
				"message_id": env.MessageID.String(),
			})
	}

	return Result{
		Status:     StatusOK,
		StatusCode: http.StatusOK,
		MessageID:  env.MessageID,
		EventName:  env.EventName,
	}, nil
}

func (r *Receiver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return core.SystemClock()
}

func badRequest(err error) Result {
	reason := "bad request"
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Message != "" {
		reason = rich.Message
	}
	return Result{Status: StatusBadRequest, StatusCode: http.StatusBadRequest, Reason: reason}
}

func failed(statusCode int, reason string) Result {
	return Result{Status: StatusFailed, StatusCode: statusCode, Reason: reason}
}
