// Package migrations exposes the stream store schema for each SQL dialect
// the store supports.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	hooks "github.com/goliatone/go-hooks"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

const rootPath = "data/sql/migrations"

// RegisterFunc hands the migration tree of one dialect to a migrator.
type RegisterFunc func(ctx context.Context, dialect Dialect, fsys fs.FS) error

// DialectForDriver maps a database/sql driver name to its schema dialect.
func DialectForDriver(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "postgres", "pgx", "pq":
		return Postgres, nil
	default:
		return "", fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}

// Source returns the migration files for dialect. The postgres files sit at
// the root of the tree and the sqlite variants under sqlite/. root defaults
// to the embedded tree.
func Source(dialect Dialect, root fs.FS) (fs.FS, error) {
	if root == nil {
		root = hooks.GetMigrationsFS()
	}
	base, err := fs.Sub(root, rootPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootPath, err)
	}

	var source fs.FS
	switch dialect {
	case Postgres:
		source = base
	case SQLite:
		source, err = fs.Sub(base, "sqlite")
		if err != nil {
			return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
		}
	default:
		return nil, fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}

	if _, err := Versions(source); err != nil {
		return nil, fmt.Errorf("migrations: %s: %w", dialect, err)
	}
	return source, nil
}

// Versions lists the migration versions in fsys in apply order. Every up
// file must have a matching down file.
func Versions(fsys fs.FS) ([]string, error) {
	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("no *.up.sql files")
	}
	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		version := strings.TrimSuffix(up, ".up.sql")
		if _, err := fs.Stat(fsys, version+".down.sql"); err != nil {
			return nil, fmt.Errorf("missing down migration for %s", version)
		}
		versions = append(versions, version)
	}
	sort.Strings(versions)
	return versions, nil
}

// Register resolves the tree for dialect and passes it to register.
func Register(ctx context.Context, dialect Dialect, register RegisterFunc) ([]string, error) {
	if register == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	source, err := Source(dialect, nil)
	if err != nil {
		return nil, err
	}
	versions, err := Versions(source)
	if err != nil {
		return nil, err
	}
	if err := register(ctx, dialect, source); err != nil {
		return nil, fmt.Errorf("migrations: register %s: %w", dialect, err)
	}
	return versions, nil
}
