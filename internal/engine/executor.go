/*
PURPOSE:
  Runs one benchmark job: a single generate call wrapped in a resource
  monitor session, folded into one BenchmarkRecord.

REQUIREMENTS:
  User-specified:
  - Correlate inference timing with host resources sampled during the call.
  - Record placement (model size, VRAM share) when the server reports it.

  Implementation-discovered:
  - The monitor must be stopped before the /api/ps lookup, otherwise the
    lookup is counted as part of the job.
  - The monitor must be stopped on every path, including failures.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine.Sweep (Execute, warmup)
  - Calls: Inferencer (engine.Client), ResourceMonitor (monitor.Monitor)

ERROR HANDLING:
  - Any inference failure is returned as *model.JobError.
  - Missing image data for a vision combination is a JobError, not a panic.

IMPLEMENTATION RULES:
  - Never retry here. Retries live in the client.
  - Record timestamps come from Now so tests can pin them.

USAGE:
  rec, samples, err := exec.Run(ctx, combo, cycle, run)

SELF-HEALING INSTRUCTIONS:
  - If resource summaries come back empty, check Monitor.Interval against job length.

RELATED FILES:
  - internal/engine/client.go
  - internal/monitor/monitor.go

MAINTENANCE:
  - Update when BenchmarkRecord gains fields.
*/

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/daryltucker/ollama-sweep/internal/model"
	"github.com/daryltucker/ollama-sweep/internal/output"
)

// Inferencer is the inference collaborator of the executor.
type Inferencer interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// ModelInfoer optionally reports the loaded model's memory placement.
type ModelInfoer interface {
	GetRunningModelInfo(ctx context.Context, modelName string) (int64, int64, error)
}

// ResourceMonitor is the part of monitor.Monitor the executor drives.
type ResourceMonitor interface {
	Start(ctx context.Context)
	Stop() []model.ResourceSample
	Summary() model.ResourceSummary
}

// Executor runs one combination once: monitor, infer, merge.
type Executor struct {
	Client  Inferencer
	Monitor ResourceMonitor // nil disables resource monitoring

	RunID string
	Host  string
	Model string

	// Images maps an image path to its base64 payload.
	Images map[string]string

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// Run executes combo for the given cycle and run (both 1-based). It
// returns the record and the raw monitor samples. The monitor is always
// stopped, even when inference fails.
func (e *Executor) Run(ctx context.Context, combo model.Combination, cycle, run int) (rec model.BenchmarkRecord, samples []model.ResourceSample, err error) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	req := GenerateRequest{
		Model:       e.Model,
		Prompt:      combo.Prompt,
		Context:     combo.Context,
		NumPredict:  combo.NumPredict,
		Temperature: combo.Temperature,
		Seed:        combo.Seed,
	}
	if combo.ImagePath != nil {
		data, ok := e.Images[*combo.ImagePath]
		if !ok {
			return rec, nil, &model.JobError{Cycle: cycle, Run: run, Key: combo.Key(), Err: errMissingImage(*combo.ImagePath)}
		}
		req.Images = []string{data}
	}

	var resources *model.ResourceSummary
	stopMonitor := func() {}
	if e.Monitor != nil {
		e.Monitor.Start(ctx)
		stopped := false
		stopMonitor = func() {
			if stopped {
				return
			}
			stopped = true
			samples = e.Monitor.Stop()
			s := e.Monitor.Summary()
			resources = &s
		}
		defer stopMonitor()
	}

	started := now()
	resp, err := e.Client.Generate(ctx, req)
	wall := now().Sub(started).Seconds()
	stopMonitor()
	if err != nil {
		return rec, samples, &model.JobError{Cycle: cycle, Run: run, Key: combo.Key(), Err: err}
	}

	stats := resp.Stats
	stats.WallTimeS = wall

	rec = model.BenchmarkRecord{
		RunID:        e.RunID,
		Timestamp:    started,
		Host:         e.Host,
		Model:        e.Model,
		Mode:         combo.Mode(),
		Key:          combo.Key(),
		PromptHash:   model.PromptHash(combo.Prompt),
		PromptLength: len(combo.Prompt),
		ImagePath:    combo.ImagePath,
		Context:      combo.Context,
		NumPredict:   combo.NumPredict,
		Temperature:  combo.Temperature,
		Seed:         combo.Seed,
		Cycle:        cycle,
		Run:          run,

		WallTimeS:           stats.WallTimeS,
		TotalDurationS:      stats.TotalDurationS,
		LoadDurationS:       stats.LoadDurationS,
		PromptEvalDurationS: stats.PromptEvalDurationS,
		EvalDurationS:       stats.EvalDurationS,
		PrefillTokens:       stats.PromptEvalCount,
		DecodeTokens:        stats.EvalCount,
		PrefillTPS:          stats.PrefillTPS(),
		DecodeTPS:           stats.DecodeTPS(),
		ResponseChars:       len(resp.Text),
		Resources:           resources,
	}

	if info, ok := e.Client.(ModelInfoer); ok {
		size, vram, perr := info.GetRunningModelInfo(ctx, e.Model)
		if perr != nil {
			output.Logger.Debug("Cannot read model placement", "model", e.Model, "error", perr)
		} else if size > 0 {
			sizeMB, vramMB := bytesToMB(size), bytesToMB(vram)
			rec.ModelSizeMB, rec.ModelVRAMMB = &sizeMB, &vramMB
		}
	}

	return rec, samples, nil
}

func errMissingImage(path string) error {
	return fmt.Errorf("image %s was not loaded", path)
}

func bytesToMB(b int64) float64 {
	return float64(b) / (1024 * 1024)
}
