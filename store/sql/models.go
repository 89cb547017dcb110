package sqlstore

import (
	"time"

	"github.com/goliatone/go-hooks/streams"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// streamRecord tracks the head of a stream. A record with a negative version
// only carries metadata; the stream itself does not exist yet.
type streamRecord struct {
	bun.BaseModel `bun:"table:hook_streams,alias:hs"`

	ID        string    `bun:"id,pk"`
	StreamID  string    `bun:"stream_id,notnull"`
	Version   int64     `bun:"version,notnull"`
	MaxCount  int       `bun:"max_count,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *streamRecord) exists() bool {
	return r != nil && r.Version >= streams.VersionStart
}

type streamMessageRecord struct {
	bun.BaseModel `bun:"table:hook_stream_messages,alias:hsm"`

	GlobalPosition int64     `bun:"global_position,pk,autoincrement"`
	StreamID       string    `bun:"stream_id,notnull"`
	MessageID      string    `bun:"message_id,notnull"`
	MessageType    string    `bun:"message_type,notnull"`
	Version        int64     `bun:"version,notnull"`
	Data           []byte    `bun:"data"`
	Metadata       []byte    `bun:"metadata"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

func (r streamMessageRecord) toMessage() streams.Message {
	return streams.Message{
		StreamID:  r.StreamID,
		ID:        parseUUID(r.MessageID),
		Type:      r.MessageType,
		Version:   r.Version,
		Position:  r.GlobalPosition,
		CreatedAt: r.CreatedAt.UTC(),
		Data:      cloneBytes(r.Data),
		Metadata:  cloneBytes(r.Metadata),
	}
}

func newStreamRecord(streamID string, maxCount int, now time.Time) *streamRecord {
	return &streamRecord{
		ID:        uuid.NewString(),
		StreamID:  streamID,
		Version:   streams.ExpectedVersionNoStream,
		MaxCount:  maxCount,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	return append([]byte(nil), in...)
}
