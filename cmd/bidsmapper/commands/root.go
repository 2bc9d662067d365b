package commands

import (
	"github.com/spf13/cobra"

	"bidsmapper/internal/config"
	"bidsmapper/internal/errors"
	"bidsmapper/internal/logger"
	"bidsmapper/internal/template"
)

// cfg is loaded once before any command runs.
var cfg *config.Config

// RootCmd is the bidsmapper root command.
var RootCmd = &cobra.Command{
	Use:   "bidsmapper",
	Short: "bidsmapper - classify source files with a bidsmap template",
	Long: `bidsmapper matches source files against the ordered rules of a bidsmap
template and resolves every file's output identity.

Available commands:
  check   - Validate a template
  map     - Map source files and print the decisions
  config  - Show or write the configuration
  version - Show version information

Examples:
  bidsmapper check -t bidsmap_template.yaml
  bidsmapper map -t bidsmap_template.yaml --sidecars raw/
  bidsmapper map -t bidsmap_template.yaml --manifest files.yaml --out bidsmap.yaml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")

		loaded, err := config.Load(path)
		if err != nil {
			return err
		}

		cfg = loaded

		jsonLog, _ := cmd.Flags().GetBool("json-log")
		verbose, _ := cmd.Flags().GetCount("verbose")

		level := cfg.Log.Level
		if verbose > 0 {
			level = "debug"
		}

		if err := logger.Initialize(jsonLog || cfg.Log.JSON, level); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}

		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file (default: nearest bidsmapper.toml)")
	RootCmd.PersistentFlags().Bool("json-log", false, "Write logs as JSON")
	RootCmd.PersistentFlags().CountP("verbose", "v", "Increase log verbosity")

	RootCmd.AddCommand(CheckCmd)
	RootCmd.AddCommand(MapCmd)
	RootCmd.AddCommand(ConfigCmd)
	RootCmd.AddCommand(VersionCmd)
}

// templateOptions returns the load options implied by the configuration.
func templateOptions(partial bool) []template.Option {
	opts := []template.Option{template.WithReservedGroups(cfg.Template.Unassigned, cfg.Template.Discard)}
	if partial {
		opts = append(opts, template.Partial())
	}

	return opts
}
