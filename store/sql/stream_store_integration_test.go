package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"testing"
	"time"

	hookmigrations "github.com/goliatone/go-hooks/migrations"
	sqlstore "github.com/goliatone/go-hooks/store/sql"
	"github.com/goliatone/go-hooks/streams"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-hooks-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, want := range []string{"hook_streams", "hook_stream_messages"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			want,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master: %v", err)
		}
		if tableName != want {
			t.Fatalf("expected %s table, got %q", want, tableName)
		}
	}
}

func TestStreamStore_AppendAndReadBothDirections(t *testing.T) {
	ctx := context.Background()
	store := newStreamStore(t)

	messages := newMessages(5)
	result, err := store.Append(ctx, "webhooks/a/out", streams.ExpectedVersionNoStream, messages...)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if result.CurrentVersion != 4 {
		t.Fatalf("expected current version 4, got %d", result.CurrentVersion)
	}

	page, err := store.ReadForwards(ctx, "webhooks/a/out", streams.VersionStart, 2)
	if err != nil {
		t.Fatalf("read forwards: %v", err)
	}
	if !page.Found() || len(page.Messages) != 2 || page.IsEnd || page.NextVersion != 2 {
		t.Fatalf("unexpected forwards page %#v", page)
	}
	if page.Messages[0].ID != messages[0].ID || page.Messages[1].Version != 1 {
		t.Fatalf("expected oldest messages first, got %#v", page.Messages)
	}
	if string(page.Messages[0].Data) != `{"n":0}` || page.Messages[0].Type != "foo" {
		t.Fatalf("unexpected message contents %#v", page.Messages[0])
	}

	last, err := store.ReadForwards(ctx, "webhooks/a/out", 4, 10)
	if err != nil {
		t.Fatalf("read forwards tail: %v", err)
	}
	if !last.IsEnd || last.NextVersion != 5 || last.LastVersion != 4 || len(last.Messages) != 1 {
		t.Fatalf("unexpected tail page %#v", last)
	}

	backwards, err := store.ReadBackwards(ctx, "webhooks/a/out", streams.VersionEnd, 1)
	if err != nil {
		t.Fatalf("read backwards: %v", err)
	}
	if len(backwards.Messages) != 1 || backwards.Messages[0].Version != 4 || backwards.NextVersion != 3 || backwards.IsEnd {
		t.Fatalf("unexpected backwards page %#v", backwards)
	}
	if backwards.Messages[0].Position <= page.Messages[0].Position {
		t.Fatalf("expected positions to grow with versions")
	}
}

func TestStreamStore_MissingStreamReportsNotFound(t *testing.T) {
	ctx := context.Background()
	store := newStreamStore(t)

	forwards, err := store.ReadForwards(ctx, "webhooks/missing/out", streams.VersionStart, 10)
	if err != nil {
		t.Fatalf("read forwards: %v", err)
	}
	if forwards.Found() || forwards.Status != streams.PageStatusStreamNotFound {
		t.Fatalf("expected stream not found, got %#v", forwards)
	}

	if err := store.SetMetadata(ctx, "webhooks/missing/out", streams.Metadata{MaxCount: 3}); err != nil {
		t.Fatalf("set metadata: %v", err)
	}
	backwards, err := store.ReadBackwards(ctx, "webhooks/missing/out", streams.VersionEnd, 10)
	if err != nil {
		t.Fatalf("read backwards: %v", err)
	}
	if backwards.Found() {
		t.Fatalf("expected metadata alone to keep the stream invisible")
	}
}

func TestStreamStore_AppendIsIdempotentByMessageID(t *testing.T) {
	ctx := context.Background()
	store := newStreamStore(t)
	messages := newMessages(2)

	first, err := store.Append(ctx, "inbox", streams.ExpectedVersionAny, messages...)
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	second, err := store.Append(ctx, "inbox", streams.ExpectedVersionAny, messages...)
	if err != nil {
		t.Fatalf("replayed append: %v", err)
	}
	if second.CurrentVersion != first.CurrentVersion || second.CurrentPosition != first.CurrentPosition {
		t.Fatalf("expected replay to report the same head, got %#v vs %#v", second, first)
	}

	if _, err := store.Append(ctx, "inbox", streams.ExpectedVersionAny, messages[0], newMessages(1)[0]); !streams.IsWrongExpectedVersion(err) {
		t.Fatalf("expected partial replay to conflict, got %v", err)
	}

	replayAt, err := store.Append(ctx, "inbox", streams.ExpectedVersionNoStream, messages...)
	if err != nil {
		t.Fatalf("replay at expected version: %v", err)
	}
	if replayAt.CurrentVersion != 1 {
		t.Fatalf("expected replay to keep version 1, got %d", replayAt.CurrentVersion)
	}

	page, _ := store.ReadForwards(ctx, "inbox", streams.VersionStart, 10)
	if len(page.Messages) != 2 {
		t.Fatalf("expected exactly two stored messages, got %d", len(page.Messages))
	}
}

func TestStreamStore_ExpectedVersionConflicts(t *testing.T) {
	ctx := context.Background()
	store := newStreamStore(t)

	if _, err := store.Append(ctx, "s", 3, newMessages(1)...); !streams.IsWrongExpectedVersion(err) {
		t.Fatalf("expected conflict appending at version 3 to a missing stream, got %v", err)
	}
	if _, err := store.Append(ctx, "s", streams.ExpectedVersionNoStream, newMessages(1)...); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append(ctx, "s", streams.ExpectedVersionNoStream, newMessages(1)...); !streams.IsWrongExpectedVersion(err) {
		t.Fatalf("expected conflict on existing stream, got %v", err)
	}
	result, err := store.Append(ctx, "s", 0, newMessages(1)...)
	if err != nil {
		t.Fatalf("append at version 0: %v", err)
	}
	if result.CurrentVersion != 1 {
		t.Fatalf("expected version 1, got %d", result.CurrentVersion)
	}
}

func TestStreamStore_MaxCountTruncatesOldest(t *testing.T) {
	ctx := context.Background()
	store := newStreamStore(t)

	if err := store.SetMetadata(ctx, "webhooks/a/deliveries", streams.Metadata{MaxCount: 2}); err != nil {
		t.Fatalf("set metadata: %v", err)
	}
	if _, err := store.Append(ctx, "webhooks/a/deliveries", streams.ExpectedVersionAny, newMessages(4)...); err != nil {
		t.Fatalf("append: %v", err)
	}

	page, err := store.ReadForwards(ctx, "webhooks/a/deliveries", streams.VersionStart, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(page.Messages) != 2 || page.Messages[0].Version != 2 || page.Messages[1].Version != 3 {
		t.Fatalf("expected only the newest two messages, got %#v", page.Messages)
	}

	if err := store.SetMetadata(ctx, "webhooks/a/deliveries", streams.Metadata{MaxCount: 1}); err != nil {
		t.Fatalf("tighten metadata: %v", err)
	}
	page, _ = store.ReadForwards(ctx, "webhooks/a/deliveries", streams.VersionStart, 10)
	if len(page.Messages) != 1 || page.Messages[0].Version != 3 {
		t.Fatalf("expected truncation on metadata change, got %#v", page.Messages)
	}
	meta, err := store.GetMetadata(ctx, "webhooks/a/deliveries")
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if meta.MaxCount != 1 {
		t.Fatalf("expected max count 1, got %d", meta.MaxCount)
	}
}

func TestStreamStore_DeleteMessageAndStream(t *testing.T) {
	ctx := context.Background()
	store := newStreamStore(t)
	messages := newMessages(3)
	if err := store.SetMetadata(ctx, "webhooks/a/out", streams.Metadata{MaxCount: 10}); err != nil {
		t.Fatalf("set metadata: %v", err)
	}
	if _, err := store.Append(ctx, "webhooks/a/out", streams.ExpectedVersionAny, messages...); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := store.DeleteMessage(ctx, "webhooks/a/out", messages[0].ID); err != nil {
		t.Fatalf("delete message: %v", err)
	}
	page, _ := store.ReadForwards(ctx, "webhooks/a/out", streams.VersionStart, 10)
	if len(page.Messages) != 2 || page.Messages[0].ID != messages[1].ID {
		t.Fatalf("expected head message removed, got %#v", page.Messages)
	}
	if err := store.DeleteMessage(ctx, "webhooks/a/out", uuid.New()); err != nil {
		t.Fatalf("deleting an unknown message should be a no-op: %v", err)
	}

	if err := store.DeleteStream(ctx, "webhooks/a/out"); err != nil {
		t.Fatalf("delete stream: %v", err)
	}
	page, _ = store.ReadForwards(ctx, "webhooks/a/out", streams.VersionStart, 10)
	if page.Found() {
		t.Fatalf("expected stream to be gone")
	}
	meta, _ := store.GetMetadata(ctx, "webhooks/a/out")
	if meta.MaxCount != 0 {
		t.Fatalf("expected metadata to be removed with the stream, got %d", meta.MaxCount)
	}

	result, err := store.Append(ctx, "webhooks/a/out", streams.ExpectedVersionNoStream, newMessages(1)...)
	if err != nil {
		t.Fatalf("append after delete: %v", err)
	}
	if result.CurrentVersion != 0 {
		t.Fatalf("expected recreated stream to restart at version 0, got %d", result.CurrentVersion)
	}
}

func TestStreamStore_UsesClockForCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := newStreamStore(t)
	now := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	if _, err := store.Append(ctx, "s", streams.ExpectedVersionAny, newMessages(1)...); err != nil {
		t.Fatalf("append: %v", err)
	}
	page, _ := store.ReadForwards(ctx, "s", streams.VersionStart, 1)
	if len(page.Messages) != 1 || !page.Messages[0].CreatedAt.Equal(now) {
		t.Fatalf("expected created at %s, got %#v", now, page.Messages)
	}
}

func TestCachedStore_ServesMetadataReadsAndInvalidates(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory := sqlstore.NewRepositoryFactory().WithCache(newTestCacheService(t))
	store, err := factory.BuildStores(client)
	if err != nil {
		t.Fatalf("build stores: %v", err)
	}
	if _, ok := store.(*sqlstore.CachedStore); !ok {
		t.Fatalf("expected cached store from factory, got %T", store)
	}

	if err := store.SetMetadata(ctx, "webhooks/a/out", streams.Metadata{MaxCount: 5}); err != nil {
		t.Fatalf("set metadata: %v", err)
	}
	meta, err := store.GetMetadata(ctx, "webhooks/a/out")
	if err != nil || meta.MaxCount != 5 {
		t.Fatalf("expected max count 5, got %d (%v)", meta.MaxCount, err)
	}

	if _, err := factory.DB().NewRaw(
		"UPDATE hook_streams SET max_count = 9 WHERE stream_id = ?",
		"webhooks/a/out",
	).Exec(ctx); err != nil {
		t.Fatalf("update behind cache: %v", err)
	}
	meta, _ = store.GetMetadata(ctx, "webhooks/a/out")
	if meta.MaxCount != 5 {
		t.Fatalf("expected cached value 5, got %d", meta.MaxCount)
	}

	if err := store.SetMetadata(ctx, "webhooks/a/out", streams.Metadata{MaxCount: 7}); err != nil {
		t.Fatalf("set metadata: %v", err)
	}
	meta, _ = store.GetMetadata(ctx, "webhooks/a/out")
	if meta.MaxCount != 7 {
		t.Fatalf("expected invalidated read to return 7, got %d", meta.MaxCount)
	}

	if err := store.DeleteStream(ctx, "webhooks/a/out"); err != nil {
		t.Fatalf("delete stream: %v", err)
	}
	meta, _ = store.GetMetadata(ctx, "webhooks/a/out")
	if meta.MaxCount != 0 {
		t.Fatalf("expected delete to invalidate cached metadata, got %d", meta.MaxCount)
	}
}

func TestCachedStore_ServesRegistrySnapshotHeadAndInvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory := sqlstore.NewRepositoryFactory().WithCache(newTestCacheService(t))
	store, err := factory.BuildStores(client)
	if err != nil {
		t.Fatalf("build stores: %v", err)
	}
	const streamID = "registrations/publisher"
	if _, err := store.Append(ctx, streamID, streams.ExpectedVersionAny, streams.NewMessage{
		ID: uuid.New(), Type: "snapshot", Data: []byte(`{"n":1}`),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	head := readHead(t, store, streamID)
	if head != `{"n":1}` {
		t.Fatalf("unexpected head %s", head)
	}

	rewriteData(t, factory, streamID, `{"n":99}`)
	if head := readHead(t, store, streamID); head != `{"n":1}` {
		t.Fatalf("expected cached head, got %s", head)
	}

	if _, err := store.Append(ctx, streamID, streams.ExpectedVersionAny, streams.NewMessage{
		ID: uuid.New(), Type: "snapshot", Data: []byte(`{"n":2}`),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if head := readHead(t, store, streamID); head != `{"n":2}` {
		t.Fatalf("expected append to invalidate the cached head, got %s", head)
	}

	if _, err := store.Append(ctx, streamID, 0, streams.NewMessage{
		ID: uuid.New(), Type: "snapshot", Data: []byte(`{"n":3}`),
	}); !streams.IsWrongExpectedVersion(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	rewriteData(t, factory, streamID, `{"n":42}`)
	if head := readHead(t, store, streamID); head != `{"n":42}` {
		t.Fatalf("expected a failed append to invalidate the cached head, got %s", head)
	}

	if err := store.DeleteStream(ctx, streamID); err != nil {
		t.Fatalf("delete stream: %v", err)
	}
	page, err := store.ReadBackwards(ctx, streamID, streams.VersionEnd, 1)
	if err != nil {
		t.Fatalf("read after delete: %v", err)
	}
	if page.Found() {
		t.Fatalf("expected delete to invalidate the cached head")
	}
}

func TestCachedStore_ReadsOtherStreamsThrough(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory := sqlstore.NewRepositoryFactory().WithCache(newTestCacheService(t))
	store, err := factory.BuildStores(client)
	if err != nil {
		t.Fatalf("build stores: %v", err)
	}
	const streamID = "webhooks/a/deliveries"
	if _, err := store.Append(ctx, streamID, streams.ExpectedVersionAny, streams.NewMessage{
		ID: uuid.New(), Type: "foo", Data: []byte(`{"n":1}`),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = readHead(t, store, streamID)
	rewriteData(t, factory, streamID, `{"n":7}`)
	if head := readHead(t, store, streamID); head != `{"n":7}` {
		t.Fatalf("expected uncached read, got %s", head)
	}
}

func TestCachedStore_HeadCachingCanBeDisabled(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory := sqlstore.NewRepositoryFactory().WithCache(newTestCacheService(t)).WithCachedHeadPrefixes()
	store, err := factory.BuildStores(client)
	if err != nil {
		t.Fatalf("build stores: %v", err)
	}
	const streamID = "registrations/publisher"
	if _, err := store.Append(ctx, streamID, streams.ExpectedVersionAny, streams.NewMessage{
		ID: uuid.New(), Type: "snapshot", Data: []byte(`{"n":1}`),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = readHead(t, store, streamID)
	rewriteData(t, factory, streamID, `{"n":5}`)
	if head := readHead(t, store, streamID); head != `{"n":5}` {
		t.Fatalf("expected uncached registry read, got %s", head)
	}
}

func readHead(t *testing.T, store streams.Store, streamID string) string {
	t.Helper()
	page, err := store.ReadBackwards(context.Background(), streamID, streams.VersionEnd, 1)
	if err != nil {
		t.Fatalf("read head of %s: %v", streamID, err)
	}
	if len(page.Messages) != 1 {
		t.Fatalf("expected one head message in %s, got %d", streamID, len(page.Messages))
	}
	return string(page.Messages[0].Data)
}

func rewriteData(t *testing.T, factory *sqlstore.RepositoryFactory, streamID string, data string) {
	t.Helper()
	if _, err := factory.DB().NewRaw(
		"UPDATE hook_stream_messages SET data = ? WHERE stream_id = ?",
		[]byte(data), streamID,
	).Exec(context.Background()); err != nil {
		t.Fatalf("update behind cache: %v", err)
	}
}

func TestStreamHeadCacheKey_Contract(t *testing.T) {
	key, err := sqlstore.StreamHeadCacheKey("registrations/publisher")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "go-hooks::stream_head::v1::registrations%2Fpublisher" {
		t.Fatalf("unexpected cache key %q", key)
	}
}

func TestStreamMetadataCacheKey_Contract(t *testing.T) {
	key, err := sqlstore.StreamMetadataCacheKey(" webhooks/a b/out ")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "go-hooks::stream_metadata::v1::webhooks%2Fa%20b%2Fout" {
		t.Fatalf("unexpected cache key %q", key)
	}
	if _, err := sqlstore.StreamMetadataCacheKey("  "); err == nil {
		t.Fatalf("expected blank stream id to be rejected")
	}
}

func TestRepositoryFactory_RejectsUnsupportedClient(t *testing.T) {
	if _, err := sqlstore.NewRepositoryFactory().BuildStores(struct{}{}); err == nil {
		t.Fatalf("expected unsupported persistence client error")
	}
	if _, err := sqlstore.NewRepositoryFactory().BuildStores(nil); err == nil {
		t.Fatalf("expected missing persistence client error")
	}
}

func newStreamStore(t *testing.T) *sqlstore.StreamStore {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	t.Cleanup(cleanup)
	store, err := sqlstore.NewStreamStore(client.DB())
	if err != nil {
		t.Fatalf("new stream store: %v", err)
	}
	return store
}

func newMessages(count int) []streams.NewMessage {
	out := make([]streams.NewMessage, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, streams.NewMessage{
			ID:   uuid.New(),
			Type: "foo",
			Data: []byte(fmt.Sprintf(`{"n":%d}`, i)),
		})
	}
	return out
}

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:hooks-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = hookmigrations.Register(ctx, hookmigrations.SQLite, func(_ context.Context, _ hookmigrations.Dialect, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	})
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
