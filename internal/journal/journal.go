package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/stackline/internal/engine"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is stamped into PRAGMA user_version when the schema is
// created. A journal written by a newer build is refused rather than read
// with the wrong layout.
const schemaVersion = 1

// ErrNotEmpty is returned by Create when the journal already holds edits.
var ErrNotEmpty = errors.New("journal already holds edits")

// Journal is a durable edit log. SQLite allows one writer, so the pool is
// limited to a single connection.
type Journal struct {
	db *sql.DB
}

// dsn carries the connection pragmas as go-sqlite3 parameters so every
// pooled connection gets them, not just the first.
func dsn(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", "5000")
	return path + "?" + q.Encode()
}

// Open opens the journal at path, creating the file and its tables when
// they do not exist yet.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.init(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return j, nil
}

// Create opens a journal for a new recording. The journal must not hold any
// edits; the timeline settings replay needs are stored before it returns.
func Create(ctx context.Context, path string, cfg engine.Config) (*Journal, error) {
	j, err := Open(path)
	if err != nil {
		return nil, err
	}
	n, err := j.Count(ctx)
	if err == nil && n > 0 {
		err = fmt.Errorf("%s: %w (%d)", path, ErrNotEmpty, n)
	}
	if err == nil {
		err = j.WriteSettings(ctx, cfg)
	}
	if err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}

// init creates the tables of a fresh journal and checks the schema version
// of an existing one.
func (j *Journal) init(ctx context.Context) error {
	var version int
	if err := j.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case version == schemaVersion:
		return nil
	case version > schemaVersion:
		return fmt.Errorf("schema version %d is newer than supported version %d", version, schemaVersion)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	return tx.Commit()
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) pragma(name string) (string, error) {
	var value string
	if err := j.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("query %s: %w", name, err)
	}
	return value, nil
}
