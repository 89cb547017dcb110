package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-hooks/core"
	"github.com/goliatone/go-hooks/streams"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const appendAttempts = 3

var errConcurrentAppend = errors.New("sqlstore: concurrent append")

// StreamStore persists streams in two tables: hook_streams holds the head
// version and retention settings, hook_stream_messages holds the entries.
type StreamStore struct {
	Now func() time.Time

	db   *bun.DB
	repo repository.Repository[*streamRecord]
}

func NewStreamStore(db *bun.DB) (*StreamStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*streamRecord](db, streamHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid stream repository wiring: %w", err)
		}
	}
	return &StreamStore{Now: core.SystemClock, db: db, repo: repo}, nil
}

// Append writes messages at the end of the stream. Appends with
// ExpectedVersionAny that lose a race against another writer are retried.
func (s *StreamStore) Append(
	ctx context.Context,
	streamID string,
	expectedVersion int64,
	messages ...streams.NewMessage,
) (streams.AppendResult, error) {
	if s == nil || s.db == nil {
		return streams.AppendResult{}, fmt.Errorf("sqlstore: stream store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return streams.AppendResult{}, err
	}
	streamID = strings.TrimSpace(streamID)
	if err := streams.ValidateAppend(streamID, expectedVersion, messages); err != nil {
		return streams.AppendResult{}, err
	}

	var (
		result streams.AppendResult
		err    error
	)
	for attempt := 0; attempt < appendAttempts; attempt++ {
		result, err = s.appendOnce(ctx, streamID, expectedVersion, messages)
		if !errors.Is(err, errConcurrentAppend) || expectedVersion != streams.ExpectedVersionAny {
			break
		}
	}
	if errors.Is(err, errConcurrentAppend) {
		current, readErr := s.currentVersion(ctx, streamID)
		if readErr != nil {
			return streams.AppendResult{}, readErr
		}
		return streams.AppendResult{}, streams.WrongExpectedVersionError(streamID, expectedVersion, current)
	}
	return result, err
}

func (s *StreamStore) appendOnce(
	ctx context.Context,
	streamID string,
	expectedVersion int64,
	messages []streams.NewMessage,
) (streams.AppendResult, error) {
	var result streams.AppendResult
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findStream(ctx, tx, streamID)
		if err != nil {
			return err
		}
		current := streams.ExpectedVersionNoStream
		if record.exists() {
			current = record.Version
		}

		switch {
		case expectedVersion == streams.ExpectedVersionAny:
			if record.exists() {
				existing, err := existingMessageIDs(ctx, tx, streamID, streams.ExpectedVersionNoStream, messages)
				if err != nil {
					return err
				}
				switch streams.ClassifyReplay(existing, messages) {
				case streams.ReplayIdempotent:
					result, err = streamHead(ctx, tx, record)
					return err
				case streams.ReplayConflict:
					return streams.WrongExpectedVersionError(streamID, expectedVersion, current)
				}
			}
		case expectedVersion != current:
			if record.exists() && expectedVersion < current {
				existing, err := existingMessageIDs(ctx, tx, streamID, expectedVersion, messages)
				if err != nil {
					return err
				}
				if streams.ClassifyReplay(existing, messages) == streams.ReplayIdempotent {
					result, err = streamHead(ctx, tx, record)
					return err
				}
			}
			return streams.WrongExpectedVersionError(streamID, expectedVersion, current)
		}

		now := s.now()
		if record == nil {
			record = newStreamRecord(streamID, 0, now)
			if _, err := s.repo.CreateTx(ctx, tx, record); err != nil {
				if isUniqueViolation(err) {
					return errConcurrentAppend
				}
				return err
			}
		}

		version := record.Version
		position := int64(-1)
		for _, msg := range messages {
			version++
			row := &streamMessageRecord{
				StreamID:    streamID,
				MessageID:   msg.ID.String(),
				MessageType: strings.TrimSpace(msg.Type),
				Version:     version,
				Data:        cloneBytes(msg.Data),
				Metadata:    cloneBytes(msg.Metadata),
				CreatedAt:   now,
			}
			if _, err := tx.NewInsert().Model(row).Returning("global_position").Exec(ctx); err != nil {
				if isUniqueViolation(err) {
					return errConcurrentAppend
				}
				return err
			}
			position = row.GlobalPosition
		}

		res, err := tx.NewUpdate().
			Model((*streamRecord)(nil)).
			Set("version = ?", version).
			Set("updated_at = ?", now).
			Where("id = ?", record.ID).
			Where("version = ?", record.Version).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return errConcurrentAppend
		}
		if err := truncateStream(ctx, tx, streamID, version, record.MaxCount); err != nil {
			return err
		}
		result = streams.AppendResult{CurrentVersion: version, CurrentPosition: position}
		return nil
	})
	if err != nil {
		return streams.AppendResult{}, err
	}
	return result, nil
}

func (s *StreamStore) ReadForwards(
	ctx context.Context,
	streamID string,
	fromVersion int64,
	maxCount int,
) (streams.ReadPage, error) {
	if s == nil || s.db == nil {
		return streams.ReadPage{}, fmt.Errorf("sqlstore: stream store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return streams.ReadPage{}, err
	}
	streamID = strings.TrimSpace(streamID)
	if fromVersion < streams.VersionStart {
		fromVersion = streams.VersionStart
	}
	maxCount = normalizeMaxCount(maxCount)

	page := streams.ReadPage{
		StreamID:    streamID,
		Direction:   streams.DirectionForwards,
		FromVersion: fromVersion,
		NextVersion: fromVersion,
		LastVersion: streams.VersionEnd,
		IsEnd:       true,
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findStream(ctx, tx, streamID)
		if err != nil {
			return err
		}
		if !record.exists() {
			page.Status = streams.PageStatusStreamNotFound
			return nil
		}
		page.Status = streams.PageStatusSuccess
		page.LastVersion = record.Version
		page.NextVersion = record.Version + 1

		var rows []streamMessageRecord
		if err := tx.NewSelect().
			Model(&rows).
			Where("stream_id = ?", streamID).
			Where("version >= ?", fromVersion).
			OrderExpr("version ASC").
			Limit(maxCount + 1).
			Scan(ctx); err != nil {
			return err
		}
		if len(rows) > maxCount {
			page.IsEnd = false
			page.NextVersion = rows[maxCount].Version
			rows = rows[:maxCount]
		}
		page.Messages = toMessages(rows)
		return nil
	})
	if err != nil {
		return streams.ReadPage{}, err
	}
	return page, nil
}

func (s *StreamStore) ReadBackwards(
	ctx context.Context,
	streamID string,
	fromVersion int64,
	maxCount int,
) (streams.ReadPage, error) {
	if s == nil || s.db == nil {
		return streams.ReadPage{}, fmt.Errorf("sqlstore: stream store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return streams.ReadPage{}, err
	}
	streamID = strings.TrimSpace(streamID)
	maxCount = normalizeMaxCount(maxCount)

	page := streams.ReadPage{
		StreamID:    streamID,
		Direction:   streams.DirectionBackwards,
		FromVersion: fromVersion,
		NextVersion: streams.VersionEnd,
		LastVersion: streams.VersionEnd,
		IsEnd:       true,
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findStream(ctx, tx, streamID)
		if err != nil {
			return err
		}
		if !record.exists() {
			page.Status = streams.PageStatusStreamNotFound
			return nil
		}
		page.Status = streams.PageStatusSuccess
		page.LastVersion = record.Version
		from := fromVersion
		if from == streams.VersionEnd || from > record.Version {
			from = record.Version
		}
		page.FromVersion = from

		var rows []streamMessageRecord
		if err := tx.NewSelect().
			Model(&rows).
			Where("stream_id = ?", streamID).
			Where("version <= ?", from).
			OrderExpr("version DESC").
			Limit(maxCount + 1).
			Scan(ctx); err != nil {
			return err
		}
		if len(rows) > maxCount {
			page.IsEnd = false
			page.NextVersion = rows[maxCount].Version
			rows = rows[:maxCount]
		}
		page.Messages = toMessages(rows)
		return nil
	})
	if err != nil {
		return streams.ReadPage{}, err
	}
	return page, nil
}

func (s *StreamStore) DeleteMessage(ctx context.Context, streamID string, messageID uuid.UUID) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: stream store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*streamMessageRecord)(nil)).
		Where("stream_id = ?", strings.TrimSpace(streamID)).
		Where("message_id = ?", messageID.String()).
		Exec(ctx)
	return err
}

// DeleteStream removes the messages, the head and the retention settings.
func (s *StreamStore) DeleteStream(ctx context.Context, streamID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: stream store is not configured")
	}
	streamID = strings.TrimSpace(streamID)
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*streamMessageRecord)(nil)).
			Where("stream_id = ?", streamID).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().
			Model((*streamRecord)(nil)).
			Where("stream_id = ?", streamID).
			Exec(ctx)
		return err
	})
}

// SetMetadata stores retention settings and applies them right away. It
// does not make a missing stream visible to readers.
func (s *StreamStore) SetMetadata(ctx context.Context, streamID string, meta streams.Metadata) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: stream store is not configured")
	}
	streamID = strings.TrimSpace(streamID)
	if streamID == "" {
		return core.BadInputError("streams: stream id is required", nil)
	}
	if meta.MaxCount < 0 {
		meta.MaxCount = 0
	}
	now := s.now()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findStream(ctx, tx, streamID)
		if err != nil {
			return err
		}
		if record == nil {
			_, err := s.repo.CreateTx(ctx, tx, newStreamRecord(streamID, meta.MaxCount, now))
			return err
		}
		if _, err := tx.NewUpdate().
			Model((*streamRecord)(nil)).
			Set("max_count = ?", meta.MaxCount).
			Set("updated_at = ?", now).
			Where("id = ?", record.ID).
			Exec(ctx); err != nil {
			return err
		}
		if !record.exists() {
			return nil
		}
		return truncateStream(ctx, tx, streamID, record.Version, meta.MaxCount)
	})
}

func (s *StreamStore) GetMetadata(ctx context.Context, streamID string) (streams.Metadata, error) {
	if s == nil || s.repo == nil {
		return streams.Metadata{}, fmt.Errorf("sqlstore: stream store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("stream_id", "=", strings.TrimSpace(streamID)),
	)
	if err != nil {
		return streams.Metadata{}, err
	}
	if len(records) == 0 {
		return streams.Metadata{}, nil
	}
	return streams.Metadata{MaxCount: records[0].MaxCount}, nil
}

func (s *StreamStore) currentVersion(ctx context.Context, streamID string) (int64, error) {
	record, err := findStream(ctx, s.db, streamID)
	if err != nil {
		return 0, err
	}
	if !record.exists() {
		return streams.ExpectedVersionNoStream, nil
	}
	return record.Version, nil
}

func (s *StreamStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func findStream(ctx context.Context, db bun.IDB, streamID string) (*streamRecord, error) {
	record := &streamRecord{}
	err := db.NewSelect().
		Model(record).
		Where("stream_id = ?", streamID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func existingMessageIDs(
	ctx context.Context,
	db bun.IDB,
	streamID string,
	afterVersion int64,
	messages []streams.NewMessage,
) (map[uuid.UUID]struct{}, error) {
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.ID.String())
	}
	var found []string
	if err := db.NewSelect().
		Model((*streamMessageRecord)(nil)).
		Column("message_id").
		Where("stream_id = ?", streamID).
		Where("version > ?", afterVersion).
		Where("message_id IN (?)", bun.In(ids)).
		Scan(ctx, &found); err != nil {
		return nil, err
	}
	existing := make(map[uuid.UUID]struct{}, len(found))
	for _, id := range found {
		existing[parseUUID(id)] = struct{}{}
	}
	return existing, nil
}

func streamHead(ctx context.Context, db bun.IDB, record *streamRecord) (streams.AppendResult, error) {
	var position int64
	if err := db.NewSelect().
		Model((*streamMessageRecord)(nil)).
		ColumnExpr("COALESCE(MAX(global_position), -1)").
		Where("stream_id = ?", record.StreamID).
		Scan(ctx, &position); err != nil {
		return streams.AppendResult{}, err
	}
	return streams.AppendResult{CurrentVersion: record.Version, CurrentPosition: position}, nil
}

func truncateStream(ctx context.Context, db bun.IDB, streamID string, version int64, maxCount int) error {
	if maxCount <= 0 {
		return nil
	}
	_, err := db.NewDelete().
		Model((*streamMessageRecord)(nil)).
		Where("stream_id = ?", streamID).
		Where("version <= ?", version-int64(maxCount)).
		Exec(ctx)
	return err
}

func toMessages(rows []streamMessageRecord) []streams.Message {
	if len(rows) == 0 {
		return nil
	}
	out := make([]streams.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toMessage())
	}
	return out
}

func normalizeMaxCount(maxCount int) int {
	if maxCount <= 0 {
		return 1
	}
	return maxCount
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
