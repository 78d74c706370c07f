/*
PURPOSE:
  High-level runner that orchestrates one sweep.
  Loops through Cycles -> Combinations -> Runs and executes each job.

REQUIREMENTS:
  User-specified:
  - Probe the server before any job; fail fast when unreachable.
  - Optional warmup per combination, sleep between runs.
  - Persist every record (JSONL, CSV, Parquet) and report progress with ETA.
  - Final summary per mode, per combination, per temperature, top 5.

  Implementation-discovered:
  - An interrupt must still produce the summary of completed jobs.
  - A failing sink is disabled; the sweep keeps going.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Uses: internal/engine (Client, Executor, Aggregate), internal/monitor, internal/output

ERROR HANDLING:
  - Configuration and connectivity errors are returned before any job runs.
  - Job errors are logged and counted (resilience).
  - Persistence errors disable the sink and are logged.

IMPLEMENTATION RULES:
  - Jobs are strictly sequential.
  - Records are persisted in execution order.
  - The resource monitor is never left running (Executor guarantees it).

USAGE:
  summary, err := engine.Run(ctx, cfg, os.Stdout, os.Stderr)

SELF-HEALING INSTRUCTIONS:
  - If ETA looks wrong, check that failed jobs are counted as attempted.

RELATED FILES:
  - internal/engine/client.go
  - internal/engine/executor.go
  - internal/engine/aggregate.go

MAINTENANCE:
  - Update iteration logic if parallelism is introduced.
*/

package engine

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/daryltucker/ollama-sweep/internal/config"
	"github.com/daryltucker/ollama-sweep/internal/model"
	"github.com/daryltucker/ollama-sweep/internal/monitor"
	"github.com/daryltucker/ollama-sweep/internal/output"
)

// WarmupPrompt is sent once per combination before its timed runs.
const WarmupPrompt = "Warmup."

// Sweep executes a plan job by job.
type Sweep struct {
	RunID    string
	Model    string
	Host     string
	Plan     *Plan
	Executor *Executor

	Warmup bool
	Sleep  time.Duration

	Sinks    *output.Sinks
	Dump     *output.MonitorDump // nil disables the per-job sample dump
	Progress *output.Progress
}

// Run executes the full sweep described by cfg, prints the summary to
// stdout and returns it. Progress bar output goes to stderr.
func Run(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) (model.SweepSummary, error) {
	plan, err := BuildPlan(cfg)
	if err != nil {
		return model.SweepSummary{}, err
	}

	client := New(cfg)
	if _, err := client.WaitForServer(ctx); err != nil {
		if ctx.Err() != nil {
			output.Logger.Warn("Interrupted while waiting for Ollama", "host", client.Host)
			return model.SweepSummary{Model: cfg.Model, Planned: plan.Jobs(), Interrupted: true}, nil
		}
		return model.SweepSummary{}, err
	}

	runID := uuid.NewString()
	logHostInfo(runID, cfg)

	exec := &Executor{
		Client: client,
		RunID:  runID,
		Host:   client.Host,
		Model:  cfg.Model,
		Images: plan.Images,
	}
	if cfg.Monitor.Enabled {
		sampler := monitor.NewHostSampler()
		defer sampler.Close()
		m := monitor.New(sampler, cfg.Monitor.Interval)
		if cfg.Monitor.JoinTimeout > 0 {
			m.JoinTimeout = cfg.Monitor.JoinTimeout
		}
		exec.Monitor = m
	}

	sinks := openSinks(cfg)
	var dump *output.MonitorDump
	if cfg.Output.MonitorFile != "" && exec.Monitor != nil {
		dump = output.NewMonitorDump(cfg.Output.MonitorFile)
	}

	var barOut io.Writer
	if cfg.Output.ProgressBar {
		barOut = stderr
	}

	s := &Sweep{
		RunID:    runID,
		Model:    cfg.Model,
		Host:     client.Host,
		Plan:     plan,
		Executor: exec,
		Warmup:   cfg.Warmup,
		Sleep:    cfg.Sleep,
		Sinks:    sinks,
		Dump:     dump,
		Progress: output.NewProgress(stdout, barOut, plan.Jobs()),
	}

	summary := s.Execute(ctx)
	if err := sinks.Close(); err != nil {
		output.Logger.Error("Failed to close result sinks", "error", err)
	}
	if active := sinks.Active(); len(active) > 0 {
		output.Logger.Info("Results written", "sinks", active)
	}

	output.PrintSummary(stdout, summary)
	if cfg.Output.Chart != "" {
		if err := output.RenderChart(cfg.Output.Chart, summary); err != nil {
			output.Logger.Error("Failed to render chart", "path", cfg.Output.Chart, "error", err)
		} else {
			output.Logger.Info("Chart written", "path", cfg.Output.Chart)
		}
	}
	return summary, nil
}

func openSinks(cfg *config.Config) *output.Sinks {
	var sinks []output.RecordSink
	if cfg.Output.JSONL != "" {
		sinks = append(sinks, output.NewJSONWriter(cfg.Output.JSONL))
	}
	if cfg.Output.CSV != "" {
		w, err := output.NewCSVWriter(cfg.Output.CSV)
		if err != nil {
			output.Logger.Error("CSV sink disabled", "path", cfg.Output.CSV, "error", err)
		} else {
			sinks = append(sinks, w)
		}
	}
	if cfg.Output.Parquet != "" {
		sinks = append(sinks, output.NewParquetWriter(cfg.Output.Parquet))
	}
	return output.NewSinks(sinks...)
}

// Execute runs cycles x combinations x runs and returns the summary of
// what completed. Cancelling ctx stops the sweep after the current job.
func (s *Sweep) Execute(ctx context.Context) model.SweepSummary {
	start := time.Now()
	total := s.Plan.Jobs()
	agg := NewAggregate()

	summary := model.SweepSummary{
		RunID:   s.RunID,
		Model:   s.Model,
		Host:    s.Host,
		Planned: total,
	}

	output.Logger.Info("Sweep starting",
		"run_id", s.RunID,
		"model", s.Model,
		"mode", s.Plan.Mode,
		"combinations", len(s.Plan.Combinations),
		"runs", s.Plan.Runs,
		"cycles", s.Plan.Cycles,
		"jobs", total,
	)

	attempted := 0
sweepLoop:
	for cycle := 1; cycle <= s.Plan.Cycles; cycle++ {
		output.Logger.Info("Cycle starting", "cycle", cycle, "of", s.Plan.Cycles)
		for _, combo := range s.Plan.Combinations {
			if ctx.Err() != nil {
				break sweepLoop
			}
			if s.Warmup {
				s.warmup(ctx, combo)
			}

			for run := 1; run <= s.Plan.Runs; run++ {
				if ctx.Err() != nil {
					break sweepLoop
				}

				rec, samples, err := s.Executor.Run(ctx, combo, cycle, run)
				if err != nil && ctx.Err() != nil {
					// Cancelled mid-job; the job neither completed nor failed.
					break sweepLoop
				}
				attempted++

				if err != nil {
					summary.Failed++
					agg.Fail(combo)
					output.Logger.Error("Job failed", "cycle", cycle, "run", run, "key", combo.Key(), "error", err)
					s.Progress.Skip()
				} else {
					summary.Completed++
					agg.Add(combo, rec)
					s.persist(rec, samples)
					s.Progress.Job(output.JobProgress{
						Done:   attempted,
						Total:  total,
						Record: rec,
						ETA:    eta(time.Since(start), attempted, total),
					})
				}

				if attempted < total {
					if err := sleepCtx(ctx, s.Sleep); err != nil {
						break sweepLoop
					}
				}
			}
		}
	}
	s.Progress.Finish()

	summary.Interrupted = ctx.Err() != nil && attempted < total
	if summary.Interrupted {
		output.Logger.Warn("Sweep interrupted", "completed", summary.Completed, "planned", total)
	}
	summary.ElapsedS = time.Since(start).Seconds()
	agg.Fill(&summary)
	return summary
}

func (s *Sweep) persist(rec model.BenchmarkRecord, samples []model.ResourceSample) {
	for _, err := range s.Sinks.Write(rec) {
		output.Logger.Debug("Record not persisted", "error", err)
	}
	if s.Dump != nil {
		entry := output.MonitorDumpEntry{
			RunID:   rec.RunID,
			Cycle:   rec.Cycle,
			Run:     rec.Run,
			Key:     rec.Key,
			Samples: samples,
		}
		if err := s.Dump.Write(entry); err != nil {
			output.Logger.Debug("Monitor samples not persisted", "error", err)
		}
	}
}

// warmup primes the server with the combination's parameters. Failures
// are logged only.
func (s *Sweep) warmup(ctx context.Context, combo model.Combination) {
	req := GenerateRequest{
		Model:       s.Model,
		Prompt:      WarmupPrompt,
		Context:     combo.Context,
		NumPredict:  combo.NumPredict,
		Temperature: combo.Temperature,
		Seed:        combo.Seed,
	}
	if combo.ImagePath != nil {
		if data, ok := s.Executor.Images[*combo.ImagePath]; ok {
			req.Images = []string{data}
		}
	}
	if _, err := s.Executor.Client.Generate(ctx, req); err != nil {
		output.Logger.Warn("Warmup failed", "key", combo.Key(), "error", err)
	}
}

// eta extrapolates the mean time per attempted job over the remaining jobs.
func eta(elapsed time.Duration, done, total int) time.Duration {
	if done <= 0 || done >= total {
		return 0
	}
	return elapsed / time.Duration(done) * time.Duration(total-done)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
