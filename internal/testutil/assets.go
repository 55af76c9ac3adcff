package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/stackline/internal/engine"
)

// ManualAssets is an engine.AssetProvider whose lookups stay pending until
// the test resolves them, which makes asset timing deterministic.
//
// Thread-safety: all methods are safe for concurrent use.
type ManualAssets struct {
	mu       sync.Mutex
	pending  map[string][]chan engine.AssetResult
	requests []string
}

// NewManualAssets creates a provider with no pending lookups.
func NewManualAssets() *ManualAssets {
	return &ManualAssets{pending: make(map[string][]chan engine.AssetResult)}
}

// Lookup implements engine.AssetProvider.
func (m *ManualAssets) Lookup(_ context.Context, assetID string) <-chan engine.AssetResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan engine.AssetResult, 1)
	m.pending[assetID] = append(m.pending[assetID], ch)
	m.requests = append(m.requests, assetID)
	return ch
}

// Requests returns every asset looked up so far, in order.
func (m *ManualAssets) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requests...)
}

// Resolve completes every pending lookup of assetID with duration. It
// returns false when nothing was pending.
func (m *ManualAssets) Resolve(assetID string, duration time.Duration) bool {
	return m.complete(assetID, engine.AssetResult{Duration: duration})
}

// Fail completes every pending lookup of assetID with err.
func (m *ManualAssets) Fail(assetID string, err error) bool {
	return m.complete(assetID, engine.AssetResult{Err: err})
}

func (m *ManualAssets) complete(assetID string, res engine.AssetResult) bool {
	m.mu.Lock()
	chans := m.pending[assetID]
	delete(m.pending, assetID)
	m.mu.Unlock()

	for _, ch := range chans {
		ch <- res
		close(ch)
	}
	return len(chans) > 0
}
