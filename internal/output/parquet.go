/*
PURPOSE:
  Parquet result file, one row per benchmark record.

REQUIREMENTS:
  Implementation-discovered:
  - Parquet files cannot be appended to, so rows are buffered and written on Close.

ARCHITECTURE INTEGRATION:
  - Called by: internal/output.Sinks

ERROR HANDLING:
  - Write never fails; Close returns file and encoding errors.

RELATED FILES:
  - internal/output/sink.go
*/

package output

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"

	"github.com/daryltucker/ollama-sweep/internal/model"
)

// ParquetRow is the columnar form of a BenchmarkRecord with the resource
// summary flattened to means and maxima.
type ParquetRow struct {
	RunID         string   `parquet:"run_id"`
	TimestampMs   int64    `parquet:"timestamp_ms"`
	Host          string   `parquet:"host"`
	Model         string   `parquet:"model"`
	Mode          string   `parquet:"mode"`
	Key           string   `parquet:"key"`
	PromptHash    string   `parquet:"prompt_hash"`
	PromptLength  int64    `parquet:"prompt_length"`
	ImagePath     *string  `parquet:"image_path"`
	Context       int64    `parquet:"context"`
	NumPredict    int64    `parquet:"num_predict"`
	Temperature   float64  `parquet:"temperature"`
	Seed          *int64   `parquet:"seed"`
	Cycle         int64    `parquet:"cycle"`
	Run           int64    `parquet:"run"`
	WallTimeS     float64  `parquet:"wall_time_s"`
	TotalS        float64  `parquet:"total_duration_s"`
	LoadS         float64  `parquet:"load_duration_s"`
	PromptEvalS   float64  `parquet:"prompt_eval_duration_s"`
	EvalS         float64  `parquet:"eval_duration_s"`
	PrefillTokens int64    `parquet:"prefill_tokens"`
	DecodeTokens  int64    `parquet:"decode_tokens"`
	PrefillTPS    *float64 `parquet:"prefill_tps"`
	DecodeTPS     *float64 `parquet:"decode_tps"`
	ModelVRAMMB   *float64 `parquet:"model_vram_mb"`

	CPUPercentMean *float64 `parquet:"cpu_percent_mean"`
	CPUPercentMax  *float64 `parquet:"cpu_percent_max"`
	RAMPercentMean *float64 `parquet:"ram_percent_mean"`
	RAMPercentMax  *float64 `parquet:"ram_percent_max"`
	GPUUsageMean   *float64 `parquet:"gpu_usage_percent_mean"`
	GPUUsageMax    *float64 `parquet:"gpu_usage_percent_max"`
	CPUTempMean    *float64 `parquet:"cpu_temp_c_mean"`
	CPUTempMax     *float64 `parquet:"cpu_temp_c_max"`
	GPUTempMean    *float64 `parquet:"gpu_temp_c_mean"`
	GPUTempMax     *float64 `parquet:"gpu_temp_c_max"`
	PowerMean      *float64 `parquet:"power_watts_mean"`
	PowerMax       *float64 `parquet:"power_watts_max"`
	MonitorS       *float64 `parquet:"monitoring_duration_s"`
	MonitorSamples *int64   `parquet:"monitoring_samples"`
}

// ParquetWriter buffers rows and writes the file once, on Close.
type ParquetWriter struct {
	path string
	mu   sync.Mutex
	rows []ParquetRow
}

func NewParquetWriter(path string) *ParquetWriter {
	return &ParquetWriter{path: path}
}

func (pw *ParquetWriter) Name() string { return "parquet" }
func (pw *ParquetWriter) Path() string { return pw.path }

func (pw *ParquetWriter) Write(r model.BenchmarkRecord) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	pw.rows = append(pw.rows, toParquetRow(r))
	return nil
}

// Close writes all buffered rows. Nothing is written when no job completed.
func (pw *ParquetWriter) Close() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if len(pw.rows) == 0 {
		return nil
	}
	if dir := filepath.Dir(pw.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &model.PersistenceError{Sink: pw.Name(), Path: pw.path, Err: err}
		}
	}
	if err := parquet.WriteFile(pw.path, pw.rows); err != nil {
		return &model.PersistenceError{Sink: pw.Name(), Path: pw.path, Err: err}
	}
	Logger.Info("Parquet results written", "path", pw.path, "rows", len(pw.rows))
	return nil
}

func toParquetRow(r model.BenchmarkRecord) ParquetRow {
	row := ParquetRow{
		RunID:         r.RunID,
		TimestampMs:   r.Timestamp.UnixMilli(),
		Host:          r.Host,
		Model:         r.Model,
		Mode:          string(r.Mode),
		Key:           r.Key,
		PromptHash:    r.PromptHash,
		PromptLength:  int64(r.PromptLength),
		ImagePath:     r.ImagePath,
		Context:       int64(r.Context),
		NumPredict:    int64(r.NumPredict),
		Temperature:   r.Temperature,
		Cycle:         int64(r.Cycle),
		Run:           int64(r.Run),
		WallTimeS:     r.WallTimeS,
		TotalS:        r.TotalDurationS,
		LoadS:         r.LoadDurationS,
		PromptEvalS:   r.PromptEvalDurationS,
		EvalS:         r.EvalDurationS,
		PrefillTokens: int64(r.PrefillTokens),
		DecodeTokens:  int64(r.DecodeTokens),
		PrefillTPS:    r.PrefillTPS,
		DecodeTPS:     r.DecodeTPS,
		ModelVRAMMB:   r.ModelVRAMMB,
	}
	if r.Seed != nil {
		seed := int64(*r.Seed)
		row.Seed = &seed
	}
	if res := r.Resources; res != nil {
		row.CPUPercentMean, row.CPUPercentMax = res.CPUPercent.Mean, res.CPUPercent.Max
		row.RAMPercentMean, row.RAMPercentMax = res.RAMPercent.Mean, res.RAMPercent.Max
		row.GPUUsageMean, row.GPUUsageMax = res.GPUUsagePercent.Mean, res.GPUUsagePercent.Max
		row.CPUTempMean, row.CPUTempMax = res.CPUTempC.Mean, res.CPUTempC.Max
		row.GPUTempMean, row.GPUTempMax = res.GPUTempC.Mean, res.GPUTempC.Max
		row.PowerMean, row.PowerMax = res.PowerWatts.Mean, res.PowerWatts.Max
		dur, n := res.DurationS, int64(res.SampleCount)
		row.MonitorS, row.MonitorSamples = &dur, &n
	}
	return row
}
