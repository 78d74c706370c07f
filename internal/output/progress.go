/*
PURPOSE:
  Per-job progress reporting: one line per finished job with throughput,
  ETA and resource usage, plus an optional progress bar.

REQUIREMENTS:
  User-specified:
  - Show an estimated time remaining.

  Implementation-discovered:
  - The bar writes to stderr so stdout stays parseable.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine.Sweep

ERROR HANDLING:
  - Bar write errors are ignored.

USAGE:
  p := output.NewProgress(os.Stdout, os.Stderr, total)
  p.Job(output.JobProgress{Done: 1, Total: total, Record: rec, ETA: eta})

RELATED FILES:
  - internal/engine/runner.go
*/

package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/daryltucker/ollama-sweep/internal/model"
)

// JobProgress describes one finished job for the progress line.
type JobProgress struct {
	Done   int
	Total  int
	Record model.BenchmarkRecord
	ETA    time.Duration
}

// Progress prints one line per job to out and, optionally, drives a
// progress bar on barOut.
type Progress struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

// NewProgress returns a reporter for total jobs. barOut nil disables the bar.
func NewProgress(out, barOut io.Writer, total int) *Progress {
	p := &Progress{out: out}
	if barOut != nil && total > 0 {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(barOut),
			progressbar.OptionSetDescription("sweep"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
	}
	return p
}

// Job reports a completed job.
func (p *Progress) Job(info JobProgress) {
	if p.bar != nil {
		_ = p.bar.Clear()
	}
	fmt.Fprintln(p.out, FormatProgress(info))
	p.advance(string(info.Record.Mode))
}

// Skip advances the bar for a job that produced no record.
func (p *Progress) Skip() {
	p.advance("failed")
}

// Finish completes the bar.
func (p *Progress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
		fmt.Fprintln(p.out)
	}
}

func (p *Progress) advance(desc string) {
	if p.bar == nil {
		return
	}
	p.bar.Describe(desc)
	_ = p.bar.Add(1)
}

// FormatProgress renders the one-line progress report.
func FormatProgress(info JobProgress) string {
	r := info.Record
	var b strings.Builder
	fmt.Fprintf(&b, "[%d/%d] %s ctx=%d np=%d temp=%g seed=%s",
		info.Done, info.Total, r.Mode, r.Context, r.NumPredict, r.Temperature, seedLabel(r.Seed))
	if r.ImagePath != nil {
		fmt.Fprintf(&b, " image=%s", *r.ImagePath)
	}
	fmt.Fprintf(&b, " decode=%s prefill=%s wall=%.2fs",
		tpsLabel(r.DecodeTPS), tpsLabel(r.PrefillTPS), r.WallTimeS)
	if eta := info.ETA.Round(time.Second); eta > 0 {
		fmt.Fprintf(&b, " ETA %s", eta)
	}

	if res := r.Resources; res != nil {
		var parts []string
		if v := res.CPUPercent.Mean; v != nil {
			parts = append(parts, fmt.Sprintf("cpu %.1f%%", *v))
		}
		if v := res.RAMPercent.Mean; v != nil {
			parts = append(parts, fmt.Sprintf("ram %.1f%%", *v))
		}
		if v := res.GPUUsagePercent.Mean; v != nil {
			parts = append(parts, fmt.Sprintf("gpu %.1f%%", *v))
		}
		if v := res.CPUTempC.Max; v != nil {
			parts = append(parts, fmt.Sprintf("cpu_temp %.1fC", *v))
		}
		if v := res.GPUTempC.Max; v != nil {
			parts = append(parts, fmt.Sprintf("gpu_temp %.1fC", *v))
		}
		if v := res.PowerWatts.Mean; v != nil {
			parts = append(parts, fmt.Sprintf("power %.1fW", *v))
		}
		if len(parts) > 0 {
			b.WriteString(" | ")
			b.WriteString(strings.Join(parts, " "))
		}
	}
	return b.String()
}

func seedLabel(seed *int) string {
	if seed == nil {
		return "auto"
	}
	return fmt.Sprintf("%d", *seed)
}

func tpsLabel(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f tok/s", *v)
}
