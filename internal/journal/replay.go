package journal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/stackline/internal/engine"
)

// Record drains sub and writes every applied edit until the subscription
// is closed. The seed update a subscription starts with carries no edit
// and is skipped.
func (j *Journal) Record(ctx context.Context, sub *engine.Subscription) error {
	for {
		u, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if u.Edit.Op == "" {
			continue
		}
		if err := j.WriteEdit(ctx, u.Edit); err != nil {
			return fmt.Errorf("record seq %d: %w", u.Edit.Seq, err)
		}
	}
}

// ReplayError reports a record that did not replay identically.
type ReplayError struct {
	Seq     int64
	Message string
	Err     error
}

func (e *ReplayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("replay seq %d: %s: %v", e.Seq, e.Message, e.Err)
	}
	return fmt.Sprintf("replay seq %d: %s", e.Seq, e.Message)
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}

// IsReplayError reports whether err is or wraps a *ReplayError.
func IsReplayError(err error) bool {
	var re *ReplayError
	return errors.As(err, &re)
}

// Replay applies every stored record to tl in seq order and returns how
// many were applied. tl should be fresh and built without an asset
// provider: resolved asset metadata is itself part of the log.
//
// Each record's digest is checked before it is applied, and the applied
// record must hash to the same digest, so a replay that had to generate an
// id it did not find in the log fails.
func Replay(ctx context.Context, j *Journal, tl *engine.Timeline) (int, error) {
	entries, err := j.ReadEdits(ctx)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := verifyDigest(e.Record, e.Digest); err != nil {
			return i, &ReplayError{Seq: e.Record.Seq, Message: "stored record corrupted", Err: err}
		}
		u, err := tl.Apply(ctx, e.Record)
		if err != nil {
			return i, &ReplayError{Seq: e.Record.Seq, Message: "apply failed", Err: err}
		}
		if err := verifyDigest(u.Edit, e.Digest); err != nil {
			return i, &ReplayError{Seq: e.Record.Seq, Message: "applied record diverged", Err: err}
		}
	}
	slog.Info("journal replayed", "edits", len(entries), "version", tl.Snapshot().Version())
	return len(entries), nil
}
