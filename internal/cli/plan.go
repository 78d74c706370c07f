/*
PURPOSE:
  Defines the 'plan' subcommand: shows the combinations and job count a
  run would execute, without contacting the server.

REQUIREMENTS:
  Implementation-discovered:
  - Large sweeps are easy to misconfigure; a dry run catches that early.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.BuildPlan

ERROR HANDLING:
  - Returns configuration errors unchanged.

USAGE:
  ollama-sweep plan --model gpt-oss:20b --temp 0,0.5,1
  ollama-sweep plan --dump-config
*/

package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/daryltucker/ollama-sweep/internal/engine"
)

var (
	planFlags  sweepFlags
	dumpConfig bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the combinations a run would execute",
	Long: `Resolves config, flags and profile exactly like 'run', then lists every
combination in execution order and the planned job count. No request is sent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := planFlags.resolve(cmd, cfg)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if dumpConfig {
			printer := pp.New()
			printer.SetOutput(out)
			printer.SetColoringEnabled(false)
			printer.Println(c)
		}

		plan, err := engine.BuildPlan(c)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tMODE\tKEY")
		for i, combo := range plan.Combinations {
			fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, combo.Mode(), combo.Key())
		}
		w.Flush()
		fmt.Fprintf(out, "\n%d combinations x %d runs x %d cycles = %d jobs\n",
			len(plan.Combinations), plan.Runs, plan.Cycles, plan.Jobs())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planFlags.register(planCmd)
	planCmd.Flags().BoolVar(&dumpConfig, "dump-config", false, "Pretty-print the effective configuration")
}
