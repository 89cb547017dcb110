package streams

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hooks/core"
	"github.com/google/uuid"
)

const (
	// VersionStart is the first version of every stream.
	VersionStart int64 = 0
	// VersionEnd reads backwards from the newest message.
	VersionEnd int64 = -1
)

const (
	// ExpectedVersionAny appends without a concurrency check.
	ExpectedVersionAny int64 = -2
	// ExpectedVersionNoStream requires the stream to not exist yet.
	ExpectedVersionNoStream int64 = -1
)

type PageStatus string

const (
	PageStatusSuccess        PageStatus = "success"
	PageStatusStreamNotFound PageStatus = "stream_not_found"
)

type Direction string

const (
	DirectionForwards  Direction = "forwards"
	DirectionBackwards Direction = "backwards"
)

type NewMessage struct {
	ID       uuid.UUID
	Type     string
	Data     []byte
	Metadata []byte
}

// Message is an appended entry. Version is the per-stream sequence and
// Position the store-wide one.
type Message struct {
	StreamID  string
	ID        uuid.UUID
	Type      string
	Version   int64
	Position  int64
	CreatedAt time.Time
	Data      []byte
	Metadata  []byte
}

type ReadPage struct {
	StreamID    string
	Status      PageStatus
	Direction   Direction
	FromVersion int64
	NextVersion int64
	LastVersion int64
	IsEnd       bool
	Messages    []Message
}

func (p ReadPage) Found() bool {
	return p.Status != PageStatusStreamNotFound
}

type AppendResult struct {
	CurrentVersion  int64
	CurrentPosition int64
}

// Metadata holds retention settings. MaxCount of zero keeps everything.
type Metadata struct {
	MaxCount int
}

type Store interface {
	Append(ctx context.Context, streamID string, expectedVersion int64, messages ...NewMessage) (AppendResult, error)
	ReadForwards(ctx context.Context, streamID string, fromVersion int64, maxCount int) (ReadPage, error)
	ReadBackwards(ctx context.Context, streamID string, fromVersion int64, maxCount int) (ReadPage, error)
	DeleteMessage(ctx context.Context, streamID string, messageID uuid.UUID) error
	DeleteStream(ctx context.Context, streamID string) error
	SetMetadata(ctx context.Context, streamID string, meta Metadata) error
	GetMetadata(ctx context.Context, streamID string) (Metadata, error)
}

func WrongExpectedVersionError(streamID string, expected int64, current int64) error {
	return core.NewError(
		fmt.Sprintf("streams: wrong expected version %d for stream %q (current %d)", expected, streamID, current),
		goerrors.CategoryConflict,
		core.ErrorConflict,
		map[string]any{"stream_id": streamID, "expected_version": expected, "current_version": current},
	)
}

func IsWrongExpectedVersion(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == core.ErrorConflict
	}
	return strings.Contains(strings.ToLower(err.Error()), "wrong expected version")
}

// ValidateAppend checks the arguments shared by every Store implementation.
func ValidateAppend(streamID string, expectedVersion int64, messages []NewMessage) error {
	if strings.TrimSpace(streamID) == "" {
		return core.BadInputError("streams: stream id is required", nil)
	}
	if expectedVersion < ExpectedVersionAny {
		return core.BadInputError("streams: invalid expected version", map[string]any{
			"stream_id":        streamID,
			"expected_version": expectedVersion,
		})
	}
	if len(messages) == 0 {
		return core.BadInputError("streams: at least one message is required", map[string]any{"stream_id": streamID})
	}
	seen := make(map[uuid.UUID]struct{}, len(messages))
	for _, msg := range messages {
		if msg.ID == uuid.Nil {
			return core.BadInputError("streams: message id is required", map[string]any{"stream_id": streamID})
		}
		if strings.TrimSpace(msg.Type) == "" {
			return core.BadInputError("streams: message type is required", map[string]any{
				"stream_id":  streamID,
				"message_id": msg.ID.String(),
			})
		}
		if _, dup := seen[msg.ID]; dup {
			return core.BadInputError("streams: duplicate message id in append batch", map[string]any{
				"stream_id":  streamID,
				"message_id": msg.ID.String(),
			})
		}
		seen[msg.ID] = struct{}{}
	}
	return nil
}

// ReplayOutcome decides what an append should do given the ids already
// present at the positions the batch would occupy.
type ReplayOutcome int

const (
	ReplayNone ReplayOutcome = iota
	ReplayIdempotent
	ReplayConflict
)

// ClassifyReplay compares a batch with existing ids. All present means the
// append already happened; some present is a conflict.
func ClassifyReplay(existing map[uuid.UUID]struct{}, messages []NewMessage) ReplayOutcome {
	found := 0
	for _, msg := range messages {
		if _, ok := existing[msg.ID]; ok {
			found++
		}
	}
	switch {
	case found == 0:
		return ReplayNone
	case found == len(messages):
		return ReplayIdempotent
	default:
		return ReplayConflict
	}
}

func normalizeMaxCount(maxCount int) int {
	if maxCount <= 0 {
		return 1
	}
	return maxCount
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	return append([]byte(nil), in...)
}
