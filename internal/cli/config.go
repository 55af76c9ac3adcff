package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/stackline/internal/config"
)

// ConfigResult is the effective configuration and where it came from.
type ConfigResult struct {
	Source string        `json:"source"`
	Config config.Config `json:"config"`
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after the --config file has been unified with
the built-in schema and its defaults.

Exit codes:
  0 - Success
  2 - Invalid configuration

Examples:
  stackline config
  stackline config --config ./stackline.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{
				Format:    rootOpts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   rootOpts.Verbose,
			}
			cfg, err := rootOpts.Settings()
			if err != nil {
				return out.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
			}
			source := rootOpts.ConfigPath
			if source == "" {
				source = "defaults"
			}
			result := ConfigResult{Source: source, Config: cfg}
			if out.json() {
				return out.Success(result)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return out.fail(ExitCommandError, ErrCodeGeneric, "failed to encode configuration", err)
			}
			fmt.Fprintf(out.Writer, "# source: %s\n%s", source, strings.TrimLeft(string(data), "\n"))
			return nil
		},
	}
}
