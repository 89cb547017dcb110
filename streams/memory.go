package streams

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-hooks/core"
	"github.com/google/uuid"
)

type memoryStream struct {
	version  int64
	messages []Message
}

// MemoryStore is a Store kept in process memory. It is safe for concurrent
// use and mainly serves tests and single-process deployments.
type MemoryStore struct {
	Now func() time.Time

	mu       sync.RWMutex
	streams  map[string]*memoryStream
	metadata map[string]Metadata
	position int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Now:      core.SystemClock,
		streams:  map[string]*memoryStream{},
		metadata: map[string]Metadata{},
		position: -1,
	}
}

func (s *MemoryStore) Append(
	ctx context.Context,
	streamID string,
	expectedVersion int64,
	messages ...NewMessage,
) (AppendResult, error) {
	if s == nil {
		return AppendResult{}, core.StoreError(nil, "streams: memory store is nil", nil)
	}
	if err := ctxErr(ctx); err != nil {
		return AppendResult{}, err
	}
	streamID = strings.TrimSpace(streamID)
	if err := ValidateAppend(streamID, expectedVersion, messages); err != nil {
		return AppendResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stream, exists := s.streams[streamID]
	current := ExpectedVersionNoStream
	if exists {
		current = stream.version
	}

	switch {
	case expectedVersion == ExpectedVersionAny:
		if exists {
			switch ClassifyReplay(stream.idsAfter(ExpectedVersionNoStream), messages) {
			case ReplayIdempotent:
				return AppendResult{CurrentVersion: current, CurrentPosition: stream.lastPosition()}, nil
			case ReplayConflict:
				return AppendResult{}, WrongExpectedVersionError(streamID, expectedVersion, current)
			}
		}
	case expectedVersion != current:
		if exists && expectedVersion < current &&
			ClassifyReplay(stream.idsAfter(expectedVersion), messages) == ReplayIdempotent {
			return AppendResult{CurrentVersion: current, CurrentPosition: stream.lastPosition()}, nil
		}
		return AppendResult{}, WrongExpectedVersionError(streamID, expectedVersion, current)
	}

	if !exists {
		stream = &memoryStream{version: ExpectedVersionNoStream}
		s.streams[streamID] = stream
	}
	now := s.now()
	for _, msg := range messages {
		stream.version++
		s.position++
		stream.messages = append(stream.messages, Message{
			StreamID:  streamID,
			ID:        msg.ID,
			Type:      strings.TrimSpace(msg.Type),
			Version:   stream.version,
			Position:  s.position,
			CreatedAt: now,
			Data:      cloneBytes(msg.Data),
			Metadata:  cloneBytes(msg.Metadata),
		})
	}
	if meta, ok := s.metadata[streamID]; ok && meta.MaxCount > 0 && len(stream.messages) > meta.MaxCount {
		stream.messages = append([]Message(nil), stream.messages[len(stream.messages)-meta.MaxCount:]...)
	}
	return AppendResult{CurrentVersion: stream.version, CurrentPosition: s.position}, nil
}

func (s *MemoryStore) ReadForwards(
	ctx context.Context,
	streamID string,
	fromVersion int64,
	maxCount int,
) (ReadPage, error) {
	if s == nil {
		return ReadPage{}, core.StoreError(nil, "streams: memory store is nil", nil)
	}
	if err := ctxErr(ctx); err != nil {
		return ReadPage{}, err
	}
	streamID = strings.TrimSpace(streamID)
	if fromVersion < VersionStart {
		fromVersion = VersionStart
	}
	maxCount = normalizeMaxCount(maxCount)

	s.mu.RLock()
	defer s.mu.RUnlock()
	page := ReadPage{
		StreamID:    streamID,
		Direction:   DirectionForwards,
		FromVersion: fromVersion,
		NextVersion: fromVersion,
		LastVersion: VersionEnd,
		IsEnd:       true,
	}
	stream, ok := s.streams[streamID]
	if !ok {
		page.Status = PageStatusStreamNotFound
		return page, nil
	}
	page.Status = PageStatusSuccess
	page.LastVersion = stream.version
	page.NextVersion = stream.version + 1
	for i, msg := range stream.messages {
		if msg.Version < fromVersion {
			continue
		}
		if len(page.Messages) == maxCount {
			page.IsEnd = false
			page.NextVersion = stream.messages[i].Version
			break
		}
		page.Messages = append(page.Messages, cloneMessage(msg))
	}
	return page, nil
}

func (s *MemoryStore) ReadBackwards(
	ctx context.Context,
	streamID string,
	fromVersion int64,
	maxCount int,
) (ReadPage, error) {
	if s == nil {
		return ReadPage{}, core.StoreError(nil, "streams: memory store is nil", nil)
	}
	if err := ctxErr(ctx); err != nil {
		return ReadPage{}, err
	}
	streamID = strings.TrimSpace(streamID)
	maxCount = normalizeMaxCount(maxCount)

	s.mu.RLock()
	defer s.mu.RUnlock()
	page := ReadPage{
		StreamID:    streamID,
		Direction:   DirectionBackwards,
		FromVersion: fromVersion,
		NextVersion: VersionEnd,
		LastVersion: VersionEnd,
		IsEnd:       true,
	}
	stream, ok := s.streams[streamID]
	if !ok {
		page.Status = PageStatusStreamNotFound
		return page, nil
	}
	page.Status = PageStatusSuccess
	page.LastVersion = stream.version
	if fromVersion == VersionEnd || fromVersion > stream.version {
		fromVersion = stream.version
	}
	page.FromVersion = fromVersion
	for i := len(stream.messages) - 1; i >= 0; i-- {
		msg := stream.messages[i]
		if msg.Version > fromVersion {
			continue
		}
		if len(page.Messages) == maxCount {
			page.IsEnd = false
			page.NextVersion = msg.Version
			break
		}
		page.Messages = append(page.Messages, cloneMessage(msg))
	}
	return page, nil
}

func (s *MemoryStore) DeleteMessage(ctx context.Context, streamID string, messageID uuid.UUID) error {
	if s == nil {
		return core.StoreError(nil, "streams: memory store is nil", nil)
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stream, ok := s.streams[strings.TrimSpace(streamID)]
	if !ok {
		return nil
	}
	for i, msg := range stream.messages {
		if msg.ID == messageID {
			stream.messages = append(stream.messages[:i:i], stream.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) DeleteStream(ctx context.Context, streamID string) error {
	if s == nil {
		return core.StoreError(nil, "streams: memory store is nil", nil)
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	streamID = strings.TrimSpace(streamID)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, streamID)
	delete(s.metadata, streamID)
	return nil
}

func (s *MemoryStore) SetMetadata(ctx context.Context, streamID string, meta Metadata) error {
	if s == nil {
		return core.StoreError(nil, "streams: memory store is nil", nil)
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	streamID = strings.TrimSpace(streamID)
	if streamID == "" {
		return core.BadInputError("streams: stream id is required", nil)
	}
	if meta.MaxCount < 0 {
		meta.MaxCount = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[streamID] = meta
	if stream, ok := s.streams[streamID]; ok && meta.MaxCount > 0 && len(stream.messages) > meta.MaxCount {
		stream.messages = append([]Message(nil), stream.messages[len(stream.messages)-meta.MaxCount:]...)
	}
	return nil
}

func (s *MemoryStore) GetMetadata(ctx context.Context, streamID string) (Metadata, error) {
	if s == nil {
		return Metadata{}, core.StoreError(nil, "streams: memory store is nil", nil)
	}
	if err := ctxErr(ctx); err != nil {
		return Metadata{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata[strings.TrimSpace(streamID)], nil
}

func (s *MemoryStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *memoryStream) idsAfter(version int64) map[uuid.UUID]struct{} {
	ids := make(map[uuid.UUID]struct{}, len(m.messages))
	for _, msg := range m.messages {
		if msg.Version > version {
			ids[msg.ID] = struct{}{}
		}
	}
	return ids
}

func (m *memoryStream) lastPosition() int64 {
	if len(m.messages) == 0 {
		return -1
	}
	return m.messages[len(m.messages)-1].Position
}

func cloneMessage(msg Message) Message {
	out := msg
	out.Data = cloneBytes(msg.Data)
	out.Metadata = cloneBytes(msg.Metadata)
	return out
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

var _ Store = (*MemoryStore)(nil)
