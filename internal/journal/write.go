package journal

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/stackline/internal/engine"
	"github.com/roach88/stackline/internal/ir"
)

// WriteEdit appends an applied record. Uses ON CONFLICT(seq) DO NOTHING:
// rewriting a seq that is already stored is silently ignored.
func (j *Journal) WriteEdit(ctx context.Context, rec ir.EditRecord) error {
	if rec.Seq <= 0 {
		return fmt.Errorf("write edit: seq %d must be positive", rec.Seq)
	}
	argsJSON, err := marshalArgs(rec.Args)
	if err != nil {
		return fmt.Errorf("write edit: %w", err)
	}
	digest, err := ir.EditDigest(rec)
	if err != nil {
		return fmt.Errorf("write edit: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO edits (seq, op, args, digest)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`, rec.Seq, string(rec.Op), argsJSON, digest)
	if err != nil {
		return fmt.Errorf("write edit: %w", err)
	}
	return nil
}

// WriteSettings records the timeline parameters replay needs to rebuild an
// identical timeline. Later calls overwrite earlier ones.
func (j *Journal) WriteSettings(ctx context.Context, cfg engine.Config) error {
	values := map[string]string{
		settingLayerHeight: strconv.Itoa(cfg.LayerHeight),
		settingPlayhead:    strconv.FormatInt(int64(cfg.Playhead), 10),
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	defer tx.Rollback()

	for k, v := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, k, v); err != nil {
			return fmt.Errorf("write settings: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
