package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	hooks "github.com/goliatone/go-hooks"
	_ "github.com/mattn/go-sqlite3"
)

func TestSource_ResolvesBothDialects(t *testing.T) {
	for _, dialect := range []Dialect{Postgres, SQLite} {
		source, err := Source(dialect, nil)
		if err != nil {
			t.Fatalf("source %s: %v", dialect, err)
		}
		versions, err := Versions(source)
		if err != nil {
			t.Fatalf("versions %s: %v", dialect, err)
		}
		if len(versions) == 0 || versions[0] != "00001_hooks_streams_schema" {
			t.Fatalf("expected streams schema first for %s, got %#v", dialect, versions)
		}
	}
	if _, err := Source(Dialect("oracle"), nil); err == nil {
		t.Fatalf("expected unsupported dialect error")
	}
}

func TestVersions_RequiresDownPair(t *testing.T) {
	fsys := fstest.MapFS{
		"00001_a.up.sql":   {Data: []byte("SELECT 1;")},
		"00001_a.down.sql": {Data: []byte("SELECT 1;")},
		"00002_b.up.sql":   {Data: []byte("SELECT 1;")},
	}
	if _, err := Versions(fsys); err == nil || !strings.Contains(err.Error(), "00002_b") {
		t.Fatalf("expected missing down error for 00002_b, got %v", err)
	}
	if _, err := Versions(fstest.MapFS{}); err == nil {
		t.Fatalf("expected error for empty tree")
	}
}

func TestDialectForDriver(t *testing.T) {
	cases := map[string]Dialect{
		"sqlite3":  SQLite,
		"SQLite":   SQLite,
		"postgres": Postgres,
		"pgx":      Postgres,
	}
	for driver, want := range cases {
		got, err := DialectForDriver(driver)
		if err != nil || got != want {
			t.Fatalf("driver %q: expected %s, got %s (%v)", driver, want, got, err)
		}
	}
	if _, err := DialectForDriver("mysql"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestRegister_PassesDialectTree(t *testing.T) {
	var calls []Dialect
	versions, err := Register(context.Background(), SQLite, func(_ context.Context, dialect Dialect, fsys fs.FS) error {
		calls = append(calls, dialect)
		if _, err := fs.Stat(fsys, "00001_hooks_streams_schema.up.sql"); err != nil {
			t.Fatalf("expected sqlite tree, stat failed: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != SQLite {
		t.Fatalf("expected one sqlite registration, got %#v", calls)
	}
	if len(versions) != 1 {
		t.Fatalf("expected one version, got %#v", versions)
	}
	if _, err := Register(context.Background(), SQLite, nil); err == nil {
		t.Fatalf("expected error without register function")
	}
}

func TestStreamsSchemaMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := hooks.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_hooks_streams_schema.up.sql",
		"data/sql/migrations/00001_hooks_streams_schema.down.sql",
		"data/sql/migrations/sqlite/00001_hooks_streams_schema.up.sql",
		"data/sql/migrations/sqlite/00001_hooks_streams_schema.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteStreamsSchemaMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-streams-schema?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	root := hooks.GetMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "00001_hooks_streams_schema.up.sql"); err != nil {
		t.Fatalf("apply streams schema up: %v", err)
	}

	insertMessage := `
		INSERT INTO hook_stream_messages (
			stream_id,
			message_id,
			message_type,
			version,
			data,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(context.Background(), insertMessage,
		"webhooks/a/out", "m-1", "foo", 0, []byte("{}"), "2026-01-01T00:00:00Z",
	); err != nil {
		t.Fatalf("insert first message: %v", err)
	}
	if _, err := db.ExecContext(context.Background(), insertMessage,
		"webhooks/a/out", "m-2", "foo", 0, []byte("{}"), "2026-01-01T00:00:00Z",
	); err == nil {
		t.Fatalf("expected unique (stream_id, version) violation")
	}
	if _, err := db.ExecContext(context.Background(), insertMessage,
		"webhooks/a/out", "m-1", "foo", 1, []byte("{}"), "2026-01-01T00:00:00Z",
	); err == nil {
		t.Fatalf("expected unique (stream_id, message_id) violation")
	}
	if _, err := db.ExecContext(context.Background(), insertMessage,
		"webhooks/b/out", "m-1", "foo", 0, []byte("{}"), "2026-01-01T00:00:00Z",
	); err != nil {
		t.Fatalf("expected same message id on another stream to succeed: %v", err)
	}

	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "00001_hooks_streams_schema.down.sql"); err != nil {
		t.Fatalf("apply streams schema down: %v", err)
	}

	for _, tableName := range []string{"hook_streams", "hook_stream_messages"} {
		var count int
		if err := db.QueryRowContext(
			context.Background(),
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
			tableName,
		).Scan(&count); err != nil {
			t.Fatalf("query sqlite_master for %s: %v", tableName, err)
		}
		if count != 0 {
			t.Fatalf("expected %s to be dropped after down migration", tableName)
		}
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
