/*
PURPOSE:
  Defines the root Cobra command for the ollama-sweep CLI.
  Handles global flags, configuration loading and logger setup.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config, --log-level, --log-format.

  Implementation-discovered:
  - Needs to expose an Execute() function for main.go.
  - Every subcommand works on the same loaded config.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/ollama-sweep/main.go
  - Calls: Child commands (run, plan, list-models, sensors)
  - Modifies: Global configuration state (loaded once in PersistentPreRunE).

ERROR HANDLING:
  - Returns error to main.go for exit code handling.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands.

USAGE:
  Called by main.go.

SELF-HEALING INSTRUCTIONS:
  - If adding new global flags, add them to init().

RELATED FILES:
  - cmd/ollama-sweep/main.go
  - internal/config/config.go

MAINTENANCE:
  - Update when adding global configuration options.
*/

package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/daryltucker/ollama-sweep/internal/config"
	"github.com/daryltucker/ollama-sweep/internal/output"
)

var (
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile   string
	logLevel  string
	logFormat string

	// cfg is the loaded configuration, before command-specific overrides.
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "ollama-sweep",
		Short: "Parameter sweep benchmarks for Ollama models",
		Long: `Runs every combination of prompt, image, context size, max tokens, temperature
and seed against one Ollama model, records throughput and host resource usage,
and prints a comparative summary. Use 'run --help' for sweep options.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		loaded.LogLevel = logLevel
	}
	if cmd.Flags().Changed("log-format") {
		loaded.LogFormat = logFormat
	}
	if err := output.Configure(os.Stdout, loaded.LogLevel, loaded.LogFormat); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./sweep.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")
}
