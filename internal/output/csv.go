/*
PURPOSE:
  Appends benchmark records to a CSV file with a fixed column order.
  Resource summaries are flattened to <metric>_min/_max/_mean columns.

REQUIREMENTS:
  User-specified:
  - Output to CSV.
  - Header row written once, before the first data row.
  - No file handle held open across jobs.

  Implementation-discovered:
  - An existing non-empty file keeps its header; rows are appended.
  - Missing values are empty cells, never 0.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (through output.Sinks)
  - Consumes: internal/model.BenchmarkRecord

ERROR HANDLING:
  - Returns *model.PersistenceError on open or write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() and close after every write.
  - Header and row builders must stay in the same order.

USAGE:
  w, err := output.NewCSVWriter("results.csv")
  w.Write(record)

SELF-HEALING INSTRUCTIONS:
  - If CSV format changes, update CSVHeader and csvRow together.

RELATED FILES:
  - internal/model/types.go

MAINTENANCE:
  - Update csvRow mapping when BenchmarkRecord changes.
*/

package output

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/daryltucker/ollama-sweep/internal/model"
)

var recordColumns = []string{
	"run_id", "timestamp", "host", "model", "mode", "key", "prompt_hash", "prompt_length",
	"image_path", "context", "num_predict", "temperature", "seed", "cycle", "run",
	"wall_time_s", "total_duration_s", "load_duration_s", "prompt_eval_duration_s", "eval_duration_s",
	"prefill_tokens", "decode_tokens", "prefill_tps", "decode_tps",
	"model_size_mb", "model_vram_mb", "response_chars",
}

var resourceMetrics = []string{
	"cpu_percent", "ram_percent", "ram_used_gb", "gpu_usage_percent", "gpu_mem_used_mb",
	"cpu_temp_c", "gpu_temp_c", "power_watts", "disk_read_mb", "disk_write_mb",
}

// CSVHeader returns the fixed column order of the CSV sink.
func CSVHeader() []string {
	header := append([]string{}, recordColumns...)
	for _, m := range resourceMetrics {
		header = append(header, m+"_min", m+"_max", m+"_mean")
	}
	return append(header, "monitoring_duration_s", "monitoring_samples")
}

// CSVWriter appends records to a CSV file.
type CSVWriter struct {
	path string
	mu   sync.Mutex
}

// NewCSVWriter creates a CSVWriter and writes the header if the file is
// missing or empty.
func NewCSVWriter(path string) (*CSVWriter, error) {
	cw := &CSVWriter{path: path}
	if st, err := os.Stat(path); err == nil && st.Size() > 0 {
		return cw, nil
	}
	if err := cw.append(CSVHeader()); err != nil {
		return nil, err
	}
	return cw, nil
}

func (cw *CSVWriter) Name() string { return "csv" }
func (cw *CSVWriter) Path() string { return cw.path }

// Write appends a single record to the CSV file.
// It is thread-safe.
func (cw *CSVWriter) Write(r model.BenchmarkRecord) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.append(csvRow(r))
}

// Close is a no-op; every write closes its own handle.
func (cw *CSVWriter) Close() error { return nil }

func (cw *CSVWriter) append(row []string) error {
	if dir := filepath.Dir(cw.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &model.PersistenceError{Sink: cw.Name(), Path: cw.path, Err: err}
		}
	}
	f, err := os.OpenFile(cw.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return &model.PersistenceError{Sink: cw.Name(), Path: cw.path, Err: err}
	}
	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		f.Close()
		return &model.PersistenceError{Sink: cw.Name(), Path: cw.path, Err: err}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return &model.PersistenceError{Sink: cw.Name(), Path: cw.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &model.PersistenceError{Sink: cw.Name(), Path: cw.path, Err: err}
	}
	return nil
}

func csvRow(r model.BenchmarkRecord) []string {
	row := []string{
		r.RunID,
		r.Timestamp.Format(time.RFC3339),
		r.Host,
		r.Model,
		string(r.Mode),
		r.Key,
		r.PromptHash,
		strconv.Itoa(r.PromptLength),
		optString(r.ImagePath),
		strconv.Itoa(r.Context),
		strconv.Itoa(r.NumPredict),
		fmtFloat(r.Temperature),
		optInt(r.Seed),
		strconv.Itoa(r.Cycle),
		strconv.Itoa(r.Run),
		fmtFloat(r.WallTimeS),
		fmtFloat(r.TotalDurationS),
		fmtFloat(r.LoadDurationS),
		fmtFloat(r.PromptEvalDurationS),
		fmtFloat(r.EvalDurationS),
		strconv.Itoa(r.PrefillTokens),
		strconv.Itoa(r.DecodeTokens),
		optFloat(r.PrefillTPS),
		optFloat(r.DecodeTPS),
		optFloat(r.ModelSizeMB),
		optFloat(r.ModelVRAMMB),
		strconv.Itoa(r.ResponseChars),
	}

	if r.Resources == nil {
		for range resourceMetrics {
			row = append(row, "", "", "")
		}
		return append(row, "", "")
	}
	for _, st := range resourceStats(r.Resources) {
		row = append(row, optFloat(st.Min), optFloat(st.Max), optFloat(st.Mean))
	}
	return append(row, fmtFloat(r.Resources.DurationS), strconv.Itoa(r.Resources.SampleCount))
}

// resourceStats lists the summary metrics in resourceMetrics order.
func resourceStats(s *model.ResourceSummary) []model.MetricStats {
	return []model.MetricStats{
		s.CPUPercent, s.RAMPercent, s.RAMUsedGB, s.GPUUsagePercent, s.GPUMemUsedMB,
		s.CPUTempC, s.GPUTempC, s.PowerWatts, s.DiskReadMB, s.DiskWriteMB,
	}
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return fmtFloat(*v)
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
