package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/stackline/internal/engine"
	"github.com/roach88/stackline/internal/ir"
)

const (
	settingLayerHeight = "layer_height"
	settingPlayhead    = "playhead"
)

// Entry is a stored record with the digest it was written with.
type Entry struct {
	Record ir.EditRecord
	Digest string
}

// ReadEdits returns every stored record ordered by seq. Returns an empty
// slice (not nil) for an empty journal.
func (j *Journal) ReadEdits(ctx context.Context) ([]Entry, error) {
	return j.readEdits(ctx, 0)
}

// ReadEditsAfter returns the records with seq greater than after.
func (j *Journal) ReadEditsAfter(ctx context.Context, after int64) ([]Entry, error) {
	return j.readEdits(ctx, after)
}

func (j *Journal) readEdits(ctx context.Context, after int64) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, op, args, digest
		FROM edits
		WHERE seq > ?
		ORDER BY seq ASC
	`, after)
	if err != nil {
		return nil, fmt.Errorf("query edits: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edits: %w", err)
	}
	return entries, nil
}

// ReadEdit returns one record. Returns sql.ErrNoRows if not found.
func (j *Journal) ReadEdit(ctx context.Context, seq int64) (Entry, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT seq, op, args, digest FROM edits WHERE seq = ?
	`, seq)
	return scanEntry(row)
}

// LastSeq returns the highest stored seq, 0 for an empty journal.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := j.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM edits`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// Count returns the number of stored records.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edits`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count edits: %w", err)
	}
	return n, nil
}

// ReadSettings returns the recorded timeline parameters. ok is false when
// none were written.
func (j *Journal) ReadSettings(ctx context.Context) (cfg engine.Config, ok bool, err error) {
	rows, err := j.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return engine.Config{}, false, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return engine.Config{}, false, fmt.Errorf("scan setting: %w", err)
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return engine.Config{}, false, fmt.Errorf("setting %s: %w", k, err)
		}
		switch k {
		case settingLayerHeight:
			cfg.LayerHeight = int(n)
		case settingPlayhead:
			cfg.Playhead = time.Duration(n)
		default:
			continue
		}
		ok = true
	}
	if err := rows.Err(); err != nil {
		return engine.Config{}, false, fmt.Errorf("iterate settings: %w", err)
	}
	return cfg, ok, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e        Entry
		op, args string
	)
	if err := s.Scan(&e.Record.Seq, &op, &args, &e.Digest); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan edit: %w", err)
	}
	e.Record.Op = ir.Op(op)
	obj, err := unmarshalArgs(args)
	if err != nil {
		return Entry{}, fmt.Errorf("edit %d: %w", e.Record.Seq, err)
	}
	e.Record.Args = obj
	return e, nil
}
