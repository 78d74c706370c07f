/*
PURPOSE:
  Defines the 'list-models' subcommand.
  Helps debug connectivity and model discovery.

REQUIREMENTS:
  User-specified:
  - List available models.

  Implementation-discovered:
  - Useful validation step before full run.
  - Shows memory placement for models that are currently loaded.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Client (GetModels, GetRunningModelInfo)

ERROR HANDLING:
  - Returns error if the host cannot be queried.

IMPLEMENTATION RULES:
  - Simple output to stdout.

USAGE:
  ollama-sweep list-models --host http://localhost:11434

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/engine/client.go

MAINTENANCE:
  - None.
*/

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daryltucker/ollama-sweep/internal/engine"
)

var listHost string

var listModelsCmd = &cobra.Command{
	Use:   "list-models",
	Short: "List available models on the target host",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := *cfg
		if cmd.Flags().Changed("host") {
			c.Host = listHost
		}

		client := engine.New(&c)
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "Querying %s...\n", client.Host)
		models, err := client.GetModels(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list models on %s: %w", client.Host, err)
		}
		for _, m := range models {
			size, vram, err := client.GetRunningModelInfo(cmd.Context(), m)
			if err != nil || size == 0 {
				fmt.Fprintf(out, "- %s\n", m)
				continue
			}
			fmt.Fprintf(out, "- %s (loaded, %.0f MB, %.0f%% in VRAM)\n",
				m, float64(size)/(1024*1024), float64(vram)/float64(size)*100)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(listModelsCmd)
	listModelsCmd.Flags().StringVar(&listHost, "host", "http://localhost:11434", "Ollama endpoint URL")
}
