package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/stackline/internal/ir"
	"github.com/roach88/stackline/internal/objects"
	"github.com/roach88/stackline/internal/resolver"
)

// AssetResult is the outcome of one asset metadata lookup.
type AssetResult struct {
	Duration time.Duration
	Err      error
}

// AssetProvider discovers asset metadata. Lookup must not block: it returns
// a channel that later delivers exactly one result, or is closed without one
// when ctx is cancelled.
type AssetProvider interface {
	Lookup(ctx context.Context, assetID string) <-chan AssetResult
}

// AssetFunc adapts a blocking lookup function to AssetProvider by running
// it on its own goroutine.
type AssetFunc func(ctx context.Context, assetID string) (time.Duration, error)

// Lookup implements AssetProvider.
func (f AssetFunc) Lookup(ctx context.Context, assetID string) <-chan AssetResult {
	ch := make(chan AssetResult, 1)
	go func() {
		defer close(ch)
		d, err := f(ctx, assetID)
		ch <- AssetResult{Duration: d, Err: err}
	}()
	return ch
}

// requestAssets starts a lookup for every asset an edit introduced whose
// metadata is neither known nor already requested. Edits never wait for
// the result: it comes back as an asset_resolved edit.
func (t *Timeline) requestAssets(changes []resolver.Change) {
	if t.assets == nil {
		return
	}
	for _, c := range changes {
		if c.Before != nil || c.After == nil || c.After.AssetID == "" {
			continue
		}
		asset := c.After.AssetID
		if _, known := t.store.AssetDuration(asset); known || t.pending[asset] {
			continue
		}
		t.pending[asset] = true
		ch := t.assets.Lookup(t.ctx, asset)
		slog.Debug("asset lookup started", "asset_id", asset)

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			var (
				res AssetResult
				ok  bool
			)
			select {
			case <-t.ctx.Done():
				return
			case res, ok = <-ch:
				if !ok {
					return
				}
			}
			args := ir.IRObject{"asset": ir.IRString(asset)}
			if res.Err != nil {
				args["error"] = ir.IRString(res.Err.Error())
			} else {
				args["duration"] = ir.IRDuration(res.Duration)
			}
			_, err := t.Apply(t.ctx, ir.EditRecord{Op: ir.OpAssetInfo, Args: args})
			if err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, context.Canceled) {
				slog.Error("asset metadata rejected", "asset_id", asset, "error", err)
			}
		}()
	}
}

// assetResolved records an asset's metadata and checks every active
// element that uses it. Elements whose in-point and duration exceed the
// asset are deactivated; the edit still succeeds and reports each one as
// an InvalidRange error. A failed lookup deactivates every user of the
// asset.
func (t *Timeline) assetResolved(a *argReader) (outcome, error) {
	asset := a.str("asset")
	failure := a.optStr("error", "")
	var duration time.Duration
	if failure == "" {
		duration = a.dur("duration")
	}
	if err := a.err(); err != nil {
		return outcome{}, err
	}
	if failure == "" && duration <= 0 {
		return outcome{}, ir.NewInvalidRange(asset, "asset duration %s must be positive", duration)
	}
	delete(t.pending, asset)

	if failure == "" {
		t.store.SetAssetDuration(asset, duration)
		slog.Info("asset resolved", "asset_id", asset, "duration", duration)
	} else {
		slog.Warn("asset lookup failed", "asset_id", asset, "error", failure)
	}

	var out outcome
	for _, e := range t.store.Elements() {
		if e.AssetID != asset || !e.Active {
			continue
		}
		problem := t.store.Validate(e)
		if failure != "" {
			problem = ir.NewInvalidRange(string(e.ID), "asset %s unavailable: %s", asset, failure)
		}
		if problem == nil {
			continue
		}
		res, err := t.objects.SetActive(e.ID, false)
		if err != nil {
			return outcome{}, err
		}
		out.result = mergeResults(out.result, res)
		out.errs = append(out.errs, problem)
		slog.Warn("element deactivated", "element_id", e.ID, "asset_id", asset, "error", problem)
	}
	return out, nil
}

func mergeResults(a, b objects.Result) objects.Result {
	return objects.Result{
		Changes:  append(a.Changes, b.Changes...),
		Warnings: append(a.Warnings, b.Warnings...),
	}
}
