// Package snapshot persists an aggregate as full-state JSON snapshots
// appended to a dedicated stream capped to one retained entry.
package snapshot

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hooks/core"
	"github.com/goliatone/go-hooks/streams"
	"github.com/google/uuid"
)

const DefaultMessageType = "snapshot"

// Repository loads and saves an aggregate A through its serializable form S.
type Repository[A any, S any] struct {
	Store       streams.Store
	StreamID    string
	MessageType string
	// Restore builds the aggregate. found is false when no snapshot exists.
	Restore func(state S, found bool) A
	// Capture extracts the serializable state from the aggregate.
	Capture func(aggregate A) S
	NewID   func() uuid.UUID

	mu sync.Mutex
}

func NewRepository[A any, S any](
	store streams.Store,
	streamID string,
	restore func(S, bool) A,
	capture func(A) S,
) (*Repository[A, S], error) {
	if store == nil {
		return nil, core.BadInputError("snapshot: stream store is required", nil)
	}
	streamID = strings.TrimSpace(streamID)
	if streamID == "" {
		return nil, core.BadInputError("snapshot: stream id is required", nil)
	}
	if restore == nil || capture == nil {
		return nil, core.BadInputError("snapshot: restore and capture functions are required", map[string]any{"stream_id": streamID})
	}
	return &Repository[A, S]{
		Store:       store,
		StreamID:    streamID,
		MessageType: DefaultMessageType,
		Restore:     restore,
		Capture:     capture,
		NewID:       uuid.New,
	}, nil
}

// Load reads the newest snapshot. A missing stream is initialized with a
// retention cap of one and yields a fresh aggregate.
func (r *Repository[A, S]) Load(ctx context.Context) (A, error) {
	var zero A
	if r == nil || r.Store == nil {
		return zero, errNotConfigured()
	}
	page, err := r.Store.ReadBackwards(ctx, r.StreamID, streams.VersionEnd, 1)
	if err != nil {
		return zero, core.StoreError(err, "snapshot: read latest snapshot", map[string]any{"stream_id": r.StreamID})
	}
	if !page.Found() || len(page.Messages) == 0 {
		if !page.Found() {
			if err := r.Store.SetMetadata(ctx, r.StreamID, streams.Metadata{MaxCount: 1}); err != nil {
				return zero, core.StoreError(err, "snapshot: initialize snapshot stream", map[string]any{"stream_id": r.StreamID})
			}
		}
		var empty S
		return r.Restore(empty, false), nil
	}

	var state S
	if err := json.Unmarshal(page.Messages[0].Data, &state); err != nil {
		return zero, core.StoreError(err, "snapshot: decode snapshot", map[string]any{
			"stream_id":  r.StreamID,
			"message_id": page.Messages[0].ID.String(),
		})
	}
	return r.Restore(state, true), nil
}

// Save appends the full state unconditionally. Last writer wins.
func (r *Repository[A, S]) Save(ctx context.Context, aggregate A) error {
	if r == nil || r.Store == nil {
		return errNotConfigured()
	}
	payload, err := json.Marshal(r.Capture(aggregate))
	if err != nil {
		return core.WrapError(err, goerrors.CategoryInternal, "snapshot: encode snapshot", core.ErrorInternal, map[string]any{"stream_id": r.StreamID})
	}
	newID := r.NewID
	if newID == nil {
		newID = uuid.New
	}
	messageType := strings.TrimSpace(r.MessageType)
	if messageType == "" {
		messageType = DefaultMessageType
	}
	if _, err := r.Store.Append(ctx, r.StreamID, streams.ExpectedVersionAny, streams.NewMessage{
		ID:   newID(),
		Type: messageType,
		Data: payload,
	}); err != nil {
		return core.StoreError(err, "snapshot: append snapshot", map[string]any{"stream_id": r.StreamID})
	}
	return nil
}

// Mutate runs load, fn and save under the repository lock. The snapshot is
// saved only when fn reports a change and returns no error.
func (r *Repository[A, S]) Mutate(ctx context.Context, fn func(A) (bool, error)) (A, error) {
	var zero A
	if r == nil {
		return zero, errNotConfigured()
	}
	if fn == nil {
		return zero, core.BadInputError("snapshot: mutation function is required", map[string]any{"stream_id": r.StreamID})
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	aggregate, err := r.Load(ctx)
	if err != nil {
		return zero, err
	}
	changed, err := fn(aggregate)
	if err != nil {
		return aggregate, err
	}
	if !changed {
		return aggregate, nil
	}
	if err := r.Save(ctx, aggregate); err != nil {
		return aggregate, err
	}
	return aggregate, nil
}

func errNotConfigured() error {
	return core.NewError("snapshot: repository is not configured", goerrors.CategoryInternal, core.ErrorInternal, nil)
}
