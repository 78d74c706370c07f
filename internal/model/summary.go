package model

// TPSStats describes a list of decode tokens-per-second values.
// Stdev is nil with fewer than two samples.
type TPSStats struct {
	Samples int      `json:"samples"`
	Mean    float64  `json:"mean"`
	Median  float64  `json:"median"`
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Stdev   *float64 `json:"stdev"`
}

// ComboSummary is the decode throughput of one combination across runs and cycles.
type ComboSummary struct {
	Key         string  `json:"key"`
	Mode        Mode    `json:"mode"`
	PromptHash  string  `json:"prompt_hash"`
	ImagePath   *string `json:"image_path"`
	Context     int     `json:"context"`
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
	Seed        *int    `json:"seed"`
	Failed      int     `json:"failed"`
	TPSStats
}

// TemperatureSummary groups decode throughput by sampling temperature and mode.
type TemperatureSummary struct {
	Temperature float64 `json:"temperature"`
	Mode        Mode    `json:"mode"`
	TPSStats
}

// ModeComparison compares text and vision throughput when both have data.
type ModeComparison struct {
	TextVisionRatio     float64 `json:"text_vision_ratio"`
	TextFasterByPercent float64 `json:"text_faster_by_percent"`
	FasterMode          Mode    `json:"faster_mode"`
}

// SweepSummary is the final report of a sweep.
type SweepSummary struct {
	RunID       string  `json:"run_id"`
	Model       string  `json:"model"`
	Host        string  `json:"host"`
	Planned     int     `json:"planned_jobs"`
	Completed   int     `json:"completed_jobs"`
	Failed      int     `json:"failed_jobs"`
	Interrupted bool    `json:"interrupted"`
	ElapsedS    float64 `json:"elapsed_s"`

	Text   *TPSStats `json:"text,omitempty"`
	Vision *TPSStats `json:"vision,omitempty"`

	Comparison   *ModeComparison      `json:"comparison,omitempty"`
	Combinations []ComboSummary       `json:"combinations"`
	Temperatures []TemperatureSummary `json:"temperatures"`
	Top          []ComboSummary       `json:"top"`
}
