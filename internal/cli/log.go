package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stackline/internal/ir"
	"github.com/roach88/stackline/internal/journal"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database string
	Op       string // optional - filter to one op
	After    int64  // only entries with a greater seq
}

// LogEntry is one journal record as reported by the log command.
type LogEntry struct {
	Seq    int64           `json:"seq"`
	Op     string          `json:"op"`
	Args   json.RawMessage `json:"args"`
	Digest string          `json:"digest"`
}

// LogResult holds the log output.
type LogResult struct {
	Entries []LogEntry     `json:"entries"`
	Total   int            `json:"total"`
	ByOp    map[string]int `json:"by_op"`
}

func (r LogResult) String() string {
	if len(r.Entries) == 0 {
		return "No edits found in journal."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Journal: %d edit(s)\n\n", r.Total)
	for _, e := range r.Entries {
		fmt.Fprintf(&b, "  #%-4d %-14s %s  %s\n", e.Seq, e.Op, string(e.Args), truncateDigest(e.Digest))
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List the edits recorded in a journal",
		Long: `List the edit records of a journal in seq order.

Arguments are printed as canonical JSON, including the ids that were
generated when the edit was first applied.

Exit codes:
  0 - Success
  2 - Command error (journal cannot be opened, etc.)

Examples:
  stackline log --db ./edits.db
  stackline log --db ./edits.db --op split
  stackline log --db ./edits.db --after 10 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the edit journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Op, "op", "", "only list this op")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only list edits after this seq")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Op != "" && !slices.Contains(ir.KnownOps, ir.Op(opts.Op)) {
		return out.fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("unknown op %q", opts.Op), nil)
	}

	j, err := journal.Open(opts.Database)
	if err != nil {
		return out.fail(ExitCommandError, ErrCodeJournal, "failed to open journal", err)
	}
	defer j.Close()

	entries, err := j.ReadEditsAfter(ctx, opts.After)
	if err != nil {
		return out.fail(ExitCommandError, ErrCodeJournal, "failed to read journal", err)
	}

	result := LogResult{Entries: []LogEntry{}, ByOp: map[string]int{}}
	for _, e := range entries {
		if opts.Op != "" && string(e.Record.Op) != opts.Op {
			continue
		}
		args, err := ir.MarshalCanonical(e.Record.Args)
		if err != nil {
			return out.fail(ExitCommandError, ErrCodeJournal, fmt.Sprintf("seq %d: invalid args", e.Record.Seq), err)
		}
		result.Entries = append(result.Entries, LogEntry{
			Seq:    e.Record.Seq,
			Op:     string(e.Record.Op),
			Args:   args,
			Digest: e.Digest,
		})
		result.ByOp[string(e.Record.Op)]++
	}
	result.Total = len(result.Entries)

	return out.Success(result)
}

// truncateDigest shortens a digest for display.
func truncateDigest(d string) string {
	if len(d) <= 12 {
		return d
	}
	return d[:12]
}
