package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stackline/internal/engine"
	"github.com/roach88/stackline/internal/harness"
	"github.com/roach88/stackline/internal/ir"
	"github.com/roach88/stackline/internal/journal"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	At      string // instant to resolve; defaults to the playhead
	Until   string // end of the segment listing
	Track   string // only this track
	Journal string // record applied edits here
}

// ResolveResult is the output of the resolve command.
type ResolveResult struct {
	Scenario string      `json:"scenario"`
	Applied  int         `json:"applied"`
	Version  uint64      `json:"version"`
	Position string      `json:"position"`
	At       string      `json:"at"`
	Digest   string      `json:"digest"`
	Journal  string      `json:"journal,omitempty"`
	Tracks   []TrackView `json:"tracks"`
}

func (r ResolveResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d edits applied, version %d, playhead %s\n", r.Scenario, r.Applied, r.Version, r.Position)
	if r.Journal != "" {
		fmt.Fprintf(&b, "Journal: %s\n", r.Journal)
	}
	fmt.Fprintf(&b, "Stacks at %s:\n", r.At)
	writeTrackViews(&b, r.Tracks)
	return strings.TrimRight(b.String(), "\n")
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <scenario.yaml>",
		Short: "Apply a scenario's edits and print the resolved stacks",
		Long: `Apply the edits of a scenario file to a new timeline and print what
every track plays at an instant, with the window over which that stack holds.

Scenario expectations and assertions are ignored; use "stackline test" to
check them. The first rejected edit stops the command. With --journal every
applied edit is recorded into an empty SQLite journal for later replay.

Exit codes:
  0 - All edits applied
  1 - An edit was rejected
  2 - Command error (unreadable scenario, journal not empty, etc.)

Examples:
  stackline resolve overlay.yaml
  stackline resolve overlay.yaml --at 3s --until 12s
  stackline resolve overlay.yaml --track v1 --format json
  stackline resolve overlay.yaml --journal ./edits.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "instant to resolve (default: playhead)")
	cmd.Flags().StringVar(&opts.Until, "until", "", "list constant-stack segments from --at up to this instant")
	cmd.Flags().StringVar(&opts.Track, "track", "", "only resolve this track")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record applied edits into this journal (default: journal.path from config)")

	return cmd
}

func runResolve(ctx context.Context, opts *ResolveOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	settings, err := opts.Settings()
	if err != nil {
		return out.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return out.fail(ExitCommandError, ErrCodeScenario, "failed to load scenario", err)
	}
	base, err := settings.Engine()
	if err != nil {
		return out.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	ecfg, err := scenario.Config.Engine(base)
	if err != nil {
		return out.fail(ExitCommandError, ErrCodeScenario, "invalid scenario config", err)
	}
	at, err := optionalDuration(opts.At)
	if err != nil {
		return out.fail(ExitCommandError, ErrCodeGeneric, "invalid --at", err)
	}
	until, err := optionalDuration(opts.Until)
	if err != nil {
		return out.fail(ExitCommandError, ErrCodeGeneric, "invalid --until", err)
	}

	tl, err := engine.New(ecfg, engine.WithIDGenerator(settings.IDGenerator()))
	if err != nil {
		return out.fail(ExitCommandError, ErrCodeGeneric, "failed to create timeline", err)
	}
	defer tl.Close()

	journalPath := opts.Journal
	if journalPath == "" {
		journalPath = settings.Journal.Path
	}
	var recorded chan error
	if journalPath != "" {
		j, err := journal.Create(ctx, journalPath, ecfg)
		if err != nil {
			return out.fail(ExitCommandError, ErrCodeJournal, "failed to prepare journal", err)
		}
		defer j.Close()

		sub := tl.Subscribe()
		recorded = make(chan error, 1)
		go func() { recorded <- j.Record(ctx, sub) }()
		out.VerboseLog("recording edits into %s", journalPath)
	}
	// finish closes the timeline and waits for the recorder to drain.
	finish := func() error {
		tl.Close()
		if recorded == nil {
			return nil
		}
		return <-recorded
	}

	applied := 0
	for i, step := range scenario.Steps {
		args, err := ir.ObjectFromMap(step.Args)
		if err == nil {
			_, err = tl.Apply(ctx, ir.EditRecord{Op: ir.Op(step.Op), Args: args})
		}
		if err != nil {
			if recErr := finish(); recErr != nil {
				slog.Error("journal recording failed", "path", journalPath, "error", recErr)
			}
			return out.fail(ExitFailure, ErrCodeEditRejected,
				fmt.Sprintf("step %d (%s) rejected: %s", i, step.Op, rejectionCode(err)), err)
		}
		applied++
		out.VerboseLog("step %d: %s applied", i, step.Op)
	}

	if opts.At == "" {
		at = tl.Position()
	}
	tracks, err := viewTracks(tl, opts.Track, at, until)
	if err != nil {
		_ = finish()
		return out.fail(ExitCommandError, ErrCodeNotFound, "failed to resolve", err)
	}
	snap := tl.Snapshot()
	result := ResolveResult{
		Scenario: scenario.Name,
		Applied:  applied,
		Version:  snap.Version(),
		Position: formatTime(snap.Position()),
		At:       formatTime(at),
		Digest:   snap.Digest(),
		Journal:  journalPath,
		Tracks:   tracks,
	}

	if err := finish(); err != nil {
		return out.fail(ExitCommandError, ErrCodeJournal, "failed to record edits", err)
	}
	return out.Success(result)
}

func optionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", d)
	}
	return d, nil
}

// rejectionCode names why an edit was rejected.
func rejectionCode(err error) string {
	if code := ir.CodeOf(err); code != "" {
		return string(code)
	}
	var de *engine.DispatchError
	if errors.As(err, &de) {
		return string(de.Code)
	}
	return "ERROR"
}
