/*
PURPOSE:
  Defines the 'sensors' subcommand: shows what resource readings this
  host can provide before a sweep depends on them.

ARCHITECTURE INTEGRATION:
  - Calls: internal/monitor (HostSampler, Summarize)

USAGE:
  ollama-sweep sensors --samples 5 --interval 500ms
*/

package cli

import (
	"fmt"
	"time"

	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/daryltucker/ollama-sweep/internal/model"
	"github.com/daryltucker/ollama-sweep/internal/monitor"
)

var (
	sensorSamples  int
	sensorInterval time.Duration
)

var sensorsCmd = &cobra.Command{
	Use:   "sensors",
	Short: "Take resource samples and print what this host exposes",
	Long: `Samples CPU, memory, GPU, temperature, power and disk the same way a sweep
does. Fields that print as nil are not available on this host. The first CPU
percentage is relative to process start, so at least two samples are taken.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sampler := monitor.NewHostSampler()
		defer sampler.Close()

		n := max(sensorSamples, 2)
		samples := make([]model.ResourceSample, 0, n)
		for i := 0; i < n; i++ {
			if i > 0 {
				select {
				case <-cmd.Context().Done():
					return nil
				case <-time.After(sensorInterval):
				}
			}
			samples = append(samples, sampler.Sample(cmd.Context()))
		}

		printer := pp.New()
		printer.SetOutput(cmd.OutOrStdout())
		printer.SetColoringEnabled(false)

		fmt.Fprintln(cmd.OutOrStdout(), "Last sample:")
		printer.Println(samples[len(samples)-1])
		fmt.Fprintln(cmd.OutOrStdout(), "Summary:")
		printer.Println(monitor.Summarize(samples))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sensorsCmd)
	sensorsCmd.Flags().IntVar(&sensorSamples, "samples", 2, "Number of samples (minimum 2)")
	sensorsCmd.Flags().DurationVar(&sensorInterval, "interval", monitor.DefaultInterval, "Delay between samples")
}
