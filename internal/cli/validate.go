package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stackline/internal/harness"
)

// FileError is a scenario file that failed to load.
type FileError struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// ValidateResult holds the validate output.
type ValidateResult struct {
	Files  []string    `json:"files"`
	Valid  int         `json:"valid"`
	Errors []FileError `json:"errors,omitempty"`
}

func (r ValidateResult) String() string {
	var b strings.Builder
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "✗ %s\n  %s\n", e.File, e.Message)
	}
	fmt.Fprintf(&b, "%d of %d scenario file(s) valid", r.Valid, len(r.Files))
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenarios>",
		Short: "Check scenario files without running them",
		Long: `Parse scenario files and check their structure: required fields,
known ops, assertion shapes and config values. No edit is applied.

Exit codes:
  0 - All files are valid
  1 - One or more files are invalid
  2 - Command error (path not found)

Examples:
  stackline validate ./scenarios
  stackline validate ./scenarios/overlay.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	files, err := harness.FindScenarios(path)
	if err != nil {
		var nf *harness.ScenarioNotFoundError
		if errors.As(err, &nf) {
			return out.fail(ExitCommandError, ErrCodeNotFound, "scenarios not found", err)
		}
		return out.fail(ExitCommandError, ErrCodeGeneric, "failed to find scenarios", err)
	}

	result := ValidateResult{Files: files}
	for _, f := range files {
		if _, err := harness.LoadScenario(f); err != nil {
			result.Errors = append(result.Errors, FileError{File: f, Message: err.Error()})
			continue
		}
		result.Valid++
		out.VerboseLog("%s: ok", f)
	}

	if len(result.Errors) > 0 {
		if out.json() {
			if err := out.Failure(ErrCodeScenario, fmt.Sprintf("%d invalid scenario file(s)", len(result.Errors)), result); err != nil {
				return err
			}
		} else if err := out.Success(result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "invalid scenarios")
	}
	return out.Success(result)
}
