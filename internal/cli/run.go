/*
PURPOSE:
  Defines the 'run' subcommand.
  Executes one parameter sweep against an Ollama model.

REQUIREMENTS:
  User-specified:
  - Run the sweep.
  - Flags for every axis, repetition, monitoring and output setting.
  - Interrupt (Ctrl-C) prints the summary of completed jobs and exits 0.

  Implementation-discovered:
  - Need to load config first.
  - Flags override config only when explicitly set.
  - Profiles fill whatever neither the file nor the flags set.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Run()
  - Uses: internal/config, internal/sweep

ERROR HANDLING:
  - Returns configuration and connectivity errors (exit 1).
  - Job and sink failures are handled inside the engine.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Load Config -> Override -> Profile -> Validate -> Engine.Run.

USAGE:
  ollama-sweep run --model gpt-oss:20b --ctx 4096,8192 --temp 0,0.7 --out results.jsonl

SELF-HEALING INSTRUCTIONS:
  - Check flag names match Config yaml keys generally.

RELATED FILES:
  - internal/cli/root.go
  - internal/cli/plan.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/daryltucker/ollama-sweep/internal/config"
	"github.com/daryltucker/ollama-sweep/internal/engine"
	"github.com/daryltucker/ollama-sweep/internal/model"
	"github.com/daryltucker/ollama-sweep/internal/output"
	"github.com/daryltucker/ollama-sweep/internal/sweep"
)

// sweepFlags are the overrides shared by run and plan.
type sweepFlags struct {
	host, model, profile string
	prompts              []string
	promptFile           string
	images               []string
	imageDir             string
	ctx, numPredict      string
	temp, seed           string
	runs, cycles         int
	mode                 string
	warmup               bool
	sleep, timeout       time.Duration
	noMonitor            bool
	monitorInterval      time.Duration
	out, csv, parquet    string
	monitorFile, chart   string
	noProgress           bool
}

func (f *sweepFlags) register(cmd *cobra.Command) {
	d := config.DefaultConfig()
	fl := cmd.Flags()
	fl.StringVar(&f.host, "host", d.Host, "Ollama endpoint URL")
	fl.StringVar(&f.model, "model", d.Model, "Model to benchmark")
	fl.StringVar(&f.profile, "profile", "", "Profile supplying default prompts and axes (default: the model name)")
	fl.StringArrayVar(&f.prompts, "prompt", nil, "Prompt to include (repeatable, appended to --prompt-file)")
	fl.StringVarP(&f.promptFile, "prompt-file", "p", "", "File with one prompt per line (# comments allowed)")
	fl.StringArrayVar(&f.images, "image", nil, "Image file for vision jobs (repeatable)")
	fl.StringVar(&f.imageDir, "image-dir", "", "Directory of images for vision jobs")
	fl.StringVar(&f.ctx, "ctx", "", "Comma-separated context sizes (num_ctx)")
	fl.StringVar(&f.numPredict, "num-predict", "", "Comma-separated max token counts (num_predict)")
	fl.StringVar(&f.temp, "temp", "", "Comma-separated temperatures")
	fl.StringVar(&f.seed, "seed", "", "Comma-separated seeds; empty lets the server choose")
	fl.IntVar(&f.runs, "runs", d.Runs, "Repetitions per combination")
	fl.IntVar(&f.cycles, "cycles", d.Cycles, "Passes over all combinations")
	fl.StringVar(&f.mode, "mode", "", "Test mode: text, vision or both")
	fl.BoolVar(&f.warmup, "warmup", d.Warmup, "Send one untimed warmup request per combination")
	fl.DurationVar(&f.sleep, "sleep", d.Sleep, "Pause between runs")
	fl.DurationVar(&f.timeout, "timeout", d.Timeout, "Per-request timeout")
	fl.BoolVar(&f.noMonitor, "no-system-monitor", false, "Disable host resource monitoring")
	fl.DurationVar(&f.monitorInterval, "monitor-interval", d.Monitor.Interval, "Resource sampling interval")
	fl.StringVar(&f.out, "out", "", "JSONL results file")
	fl.StringVar(&f.csv, "csv", "", "CSV results file")
	fl.StringVar(&f.parquet, "parquet", "", "Parquet results file (written at the end)")
	fl.StringVar(&f.monitorFile, "monitor-file", "", "JSONL file receiving the raw resource samples of every job")
	fl.StringVar(&f.chart, "chart", "", "HTML chart of the summary")
	fl.BoolVar(&f.noProgress, "no-progress", false, "Disable the progress bar")
}

// apply copies explicitly set flags onto c.
func (f *sweepFlags) apply(cmd *cobra.Command, c *config.Config) {
	changed := cmd.Flags().Changed
	if changed("host") {
		c.Host = f.host
	}
	if changed("model") {
		c.Model = f.model
	}
	if changed("profile") {
		c.Profile = f.profile
	}
	if changed("prompt") {
		c.Prompts = f.prompts
	}
	if changed("prompt-file") {
		c.PromptFile = f.promptFile
	}
	if changed("image") {
		c.Images = f.images
	}
	if changed("image-dir") {
		c.ImageDir = f.imageDir
	}
	if changed("ctx") {
		c.Contexts = f.ctx
	}
	if changed("num-predict") {
		c.NumPredict = f.numPredict
	}
	if changed("temp") {
		c.Temperatures = f.temp
	}
	if changed("seed") {
		seed := f.seed
		c.Seeds = &seed
	}
	if changed("runs") {
		c.Runs = f.runs
	}
	if changed("cycles") {
		c.Cycles = f.cycles
	}
	if changed("mode") {
		c.Mode = f.mode
	}
	if changed("warmup") {
		c.Warmup = f.warmup
	}
	if changed("sleep") {
		c.Sleep = f.sleep
	}
	if changed("timeout") {
		c.Timeout = f.timeout
	}
	if changed("no-system-monitor") {
		c.Monitor.Enabled = !f.noMonitor
	}
	if changed("monitor-interval") {
		c.Monitor.Interval = f.monitorInterval
	}
	if changed("out") {
		c.Output.JSONL = f.out
	}
	if changed("csv") {
		c.Output.CSV = f.csv
	}
	if changed("parquet") {
		c.Output.Parquet = f.parquet
	}
	if changed("monitor-file") {
		c.Output.MonitorFile = f.monitorFile
	}
	if changed("chart") {
		c.Output.Chart = f.chart
	}
	if changed("no-progress") {
		c.Output.ProgressBar = !f.noProgress
	}
}

// resolve turns the loaded config plus flags into the effective sweep config.
func (f *sweepFlags) resolve(cmd *cobra.Command, base *config.Config) (*config.Config, error) {
	c := *base
	f.apply(cmd, &c)
	c.ApplyProfile()

	if c.Mode != string(model.ModeText) && len(c.Images) == 0 && c.ImageDir == "" {
		if found := sweep.DiscoverDefaultImages("."); len(found) > 0 {
			output.Logger.Info("Using default sample image", "path", found[0])
			c.Images = found
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

var runFlags sweepFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a parameter sweep",
	Long: `Executes cycles x combinations x runs generate requests against one model.
1. Probe: waits for the Ollama endpoint (/api/version) before any job.
2. Sweep: each job is timed while host resources are sampled in the background.
3. Report: records go to the configured JSONL/CSV/Parquet files as they complete;
   a summary per mode, combination and temperature is printed at the end.

Ctrl-C stops after the current job and still prints the summary.`,
	Example: `  # Run the built-in profile of the default vision model
  ollama-sweep run --out results.jsonl

  # Text-only sweep over two context sizes and three temperatures
  ollama-sweep run --model gpt-oss:20b --mode text --ctx 4096,8192 --temp 0.3,0.7,1.0 --csv results.csv

  # Vision sweep over a directory of images, with raw resource samples
  ollama-sweep run --mode vision --image-dir ./images --monitor-file monitor.jsonl

  # Use prompts from a file and let the server pick seeds
  ollama-sweep run -p ./prompts.txt --seed ""`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := runFlags.resolve(cmd, cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, err = engine.Run(ctx, c, cmd.OutOrStdout(), cmd.ErrOrStderr())
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runFlags.register(runCmd)
}
