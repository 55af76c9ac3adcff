package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stackline/internal/journal"
)

func TestLogMissingDatabaseFlag(t *testing.T) {
	_, err := run(t, NewLogCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestLogEmptyJournal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")
	j, err := journal.Open(db)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	out, err := run(t, NewLogCommand(&RootOptions{Format: "text"}), "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No edits found in journal.")
}

func TestLogListsEntries(t *testing.T) {
	db, _ := recordJournal(t)

	out, err := run(t, NewLogCommand(&RootOptions{Format: "json"}), "--db", db)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   LogResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 4, resp.Data.Total)
	assert.Equal(t, map[string]int{"add_track": 1, "add_layer": 1, "add": 2}, resp.Data.ByOp)

	first := resp.Data.Entries[0]
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, "add_track", first.Op)
	assert.JSONEq(t, `{"id":"v1","medium":"video"}`, string(first.Args))
	assert.Len(t, first.Digest, 64)
}

func TestLogFilters(t *testing.T) {
	db, _ := recordJournal(t)

	out, err := run(t, NewLogCommand(&RootOptions{Format: "text"}), "--db", db, "--op", "add")
	require.NoError(t, err)
	assert.Contains(t, out, "Journal: 2 edit(s)")
	assert.Contains(t, out, `"id":"A"`)
	assert.Contains(t, out, `"id":"B"`)
	assert.NotContains(t, out, "add_track")

	out, err = run(t, NewLogCommand(&RootOptions{Format: "text"}), "--db", db, "--after", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Journal: 1 edit(s)")
	assert.Contains(t, out, "#4")
}

func TestLogUnknownOp(t *testing.T) {
	db, _ := recordJournal(t)

	_, err := run(t, NewLogCommand(&RootOptions{Format: "text"}), "--db", db, "--op", "explode")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
