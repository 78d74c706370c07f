/*
PURPOSE:
  Defines the core data structures shared by the sweep engine.
  Resource samples and summaries, inference timing stats, parameter
  combinations and the flattened benchmark record persisted per job.

REQUIREMENTS:
  User-specified:
  - Record inference timings (seconds) and token counts per job.
  - Record host telemetry summary per job.
  - Missing sensors must stay missing (nil), never zero.

  Implementation-discovered:
  - Pointers are the nullable type; JSON encodes them as null.
  - Combination identity must be stable across cycles for aggregation.

ARCHITECTURE INTEGRATION:
  - Used by: internal/monitor, internal/sweep, internal/engine, internal/output
  - Shared across boundaries.

ERROR HANDLING:
  - None (pure data structs). Error types live in errors.go.

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - BenchmarkRecord is never mutated after the executor returns it.

USAGE:
  rec := model.BenchmarkRecord{...}
  tps := stats.DecodeTPS()

SELF-HEALING INSTRUCTIONS:
  - If new metrics are needed, add the field here, to ResourceSummary, and to the CSV columns.

RELATED FILES:
  - internal/output/csv.go
  - internal/monitor/summary.go

MAINTENANCE:
  - Update when adding new metrics to capture.
*/

package model

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

// Mode selects which slice of the image axis a sweep exercises.
type Mode string

const (
	ModeText   Mode = "text"
	ModeVision Mode = "vision"
	ModeBoth   Mode = "both"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeText, ModeVision, ModeBoth:
		return m, nil
	}
	return "", &ConfigurationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q (want text, vision or both)", s)}
}

// ResourceSample is one point-in-time reading of host resources.
type ResourceSample struct {
	Timestamp time.Time `json:"timestamp"`

	CPUPercent        float64  `json:"cpu_percent"`
	CPUFreqCurrentMHz *float64 `json:"cpu_freq_current_mhz"`
	CPUFreqMaxMHz     *float64 `json:"cpu_freq_max_mhz"`
	CPUCountLogical   int      `json:"cpu_count_logical"`
	CPUCountPhysical  int      `json:"cpu_count_physical"`

	RAMTotalGB     float64 `json:"ram_total_gb"`
	RAMUsedGB      float64 `json:"ram_used_gb"`
	RAMAvailableGB float64 `json:"ram_available_gb"`
	RAMPercent     float64 `json:"ram_percent"`

	GPUUsagePercent *float64 `json:"gpu_usage_percent"`
	GPUMemUsedMB    *float64 `json:"gpu_mem_used_mb"`
	GPUMemTotalMB   *float64 `json:"gpu_mem_total_mb"`

	CPUTempC *float64 `json:"cpu_temp_c"`
	GPUTempC *float64 `json:"gpu_temp_c"`

	PowerWatts *float64 `json:"power_watts"`

	DiskReadMB  *float64 `json:"disk_read_mb"`
	DiskWriteMB *float64 `json:"disk_write_mb"`
}

// MetricStats summarizes one metric over the samples where it was present.
// Min, Max and Mean are nil when Count is zero.
type MetricStats struct {
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Mean  *float64 `json:"mean"`
	Count int      `json:"count"`
}

// ResourceSummary is derived from the samples collected during one job.
type ResourceSummary struct {
	DurationS   float64 `json:"duration_s"`
	SampleCount int     `json:"sample_count"`

	CPUPercent      MetricStats `json:"cpu_percent"`
	RAMPercent      MetricStats `json:"ram_percent"`
	RAMUsedGB       MetricStats `json:"ram_used_gb"`
	GPUUsagePercent MetricStats `json:"gpu_usage_percent"`
	GPUMemUsedMB    MetricStats `json:"gpu_mem_used_mb"`
	CPUTempC        MetricStats `json:"cpu_temp_c"`
	GPUTempC        MetricStats `json:"gpu_temp_c"`
	PowerWatts      MetricStats `json:"power_watts"`
	DiskReadMB      MetricStats `json:"disk_read_mb"`
	DiskWriteMB     MetricStats `json:"disk_write_mb"`
}

// InferenceStats holds the timing stats of one generate call, in seconds.
type InferenceStats struct {
	WallTimeS           float64 `json:"wall_time_s"`
	TotalDurationS      float64 `json:"total_duration_s"`
	LoadDurationS       float64 `json:"load_duration_s"`
	PromptEvalDurationS float64 `json:"prompt_eval_duration_s"`
	EvalDurationS       float64 `json:"eval_duration_s"`
	PromptEvalCount     int     `json:"prompt_eval_count"`
	EvalCount           int     `json:"eval_count"`
}

// PrefillTPS is prompt tokens per second, nil without a prompt eval duration.
func (s InferenceStats) PrefillTPS() *float64 {
	return rate(s.PromptEvalCount, s.PromptEvalDurationS)
}

// DecodeTPS is generated tokens per second, nil without an eval duration.
func (s InferenceStats) DecodeTPS() *float64 {
	return rate(s.EvalCount, s.EvalDurationS)
}

func rate(tokens int, seconds float64) *float64 {
	if seconds <= 0 {
		return nil
	}
	v := float64(tokens) / seconds
	return &v
}

// Combination is one fixed assignment of every parameter axis.
type Combination struct {
	Prompt      string
	ImagePath   *string
	Context     int
	NumPredict  int
	Temperature float64
	Seed        *int
}

// PromptHash returns the first 8 hex characters of the prompt's SHA-1.
func PromptHash(prompt string) string {
	sum := sha1.Sum([]byte(prompt))
	return hex.EncodeToString(sum[:])[:8]
}

// Mode reports vision when the combination carries an image.
func (c Combination) Mode() Mode {
	if c.ImagePath != nil {
		return ModeVision
	}
	return ModeText
}

// Key identifies the combination for aggregation.
func (c Combination) Key() string {
	img := "none"
	if c.ImagePath != nil {
		img = *c.ImagePath
	}
	seed := "none"
	if c.Seed != nil {
		seed = fmt.Sprintf("%d", *c.Seed)
	}
	return fmt.Sprintf("%s|%s|ctx=%d|np=%d|temp=%g|seed=%s",
		PromptHash(c.Prompt), img, c.Context, c.NumPredict, c.Temperature, seed)
}

// BenchmarkRecord is one executed job, flattened for persistence.
type BenchmarkRecord struct {
	RunID        string    `json:"run_id"`
	Timestamp    time.Time `json:"timestamp"`
	Host         string    `json:"host"`
	Model        string    `json:"model"`
	Mode         Mode      `json:"mode"`
	Key          string    `json:"key"`
	PromptHash   string    `json:"prompt_hash"`
	PromptLength int       `json:"prompt_length"`
	ImagePath    *string   `json:"image_path"`
	Context      int       `json:"context"`
	NumPredict   int       `json:"num_predict"`
	Temperature  float64   `json:"temperature"`
	Seed         *int      `json:"seed"`
	Cycle        int       `json:"cycle"`
	Run          int       `json:"run"`

	WallTimeS           float64  `json:"wall_time_s"`
	TotalDurationS      float64  `json:"total_duration_s"`
	LoadDurationS       float64  `json:"load_duration_s"`
	PromptEvalDurationS float64  `json:"prompt_eval_duration_s"`
	EvalDurationS       float64  `json:"eval_duration_s"`
	PrefillTokens       int      `json:"prefill_tokens"`
	DecodeTokens        int      `json:"decode_tokens"`
	PrefillTPS          *float64 `json:"prefill_tps"`
	DecodeTPS           *float64 `json:"decode_tps"`

	// Resource Usage (from /api/ps)
	ModelSizeMB *float64 `json:"model_size_mb"`
	ModelVRAMMB *float64 `json:"model_vram_mb"`

	ResponseChars int `json:"response_chars"`

	Resources *ResourceSummary `json:"resources"`
}
