package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/ollama-sweep/internal/model"
	"github.com/daryltucker/ollama-sweep/internal/output"
	"github.com/daryltucker/ollama-sweep/internal/sweep"
)

type fakeInferencer struct {
	mu    sync.Mutex
	calls []GenerateRequest
	fn    func(n int, req GenerateRequest) (*GenerateResponse, error)
}

func (f *fakeInferencer) Generate(_ context.Context, req GenerateRequest) (*GenerateResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(n, req)
	}
	return okResponse(), nil
}

func (f *fakeInferencer) prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return lo.Map(f.calls, func(r GenerateRequest, _ int) string { return r.Prompt })
}

func okResponse() *GenerateResponse {
	return &GenerateResponse{
		Text: "ok",
		Stats: model.InferenceStats{
			EvalCount:           100,
			EvalDurationS:       2,
			PromptEvalCount:     10,
			PromptEvalDurationS: 0.5,
		},
	}
}

type fakeMonitor struct {
	starts, stops int
}

func (m *fakeMonitor) Start(context.Context) { m.starts++ }
func (m *fakeMonitor) Stop() []model.ResourceSample {
	m.stops++
	return []model.ResourceSample{{CPUPercent: 10}, {CPUPercent: 30}}
}
func (m *fakeMonitor) Summary() model.ResourceSummary {
	return model.ResourceSummary{SampleCount: 2, CPUPercent: model.MetricStats{Mean: lo.ToPtr(20.0), Count: 2}}
}

func textCombo(temp float64) model.Combination {
	return model.Combination{Prompt: "hello", Context: 4096, NumPredict: 128, Temperature: temp, Seed: lo.ToPtr(42)}
}

func TestExecutorRunBuildsRecord(t *testing.T) {
	mon := &fakeMonitor{}
	clock := []time.Time{time.Unix(100, 0), time.Unix(102, 500_000_000)}
	exec := &Executor{
		Client:  &fakeInferencer{},
		Monitor: mon,
		RunID:   "r1",
		Host:    "http://h",
		Model:   "m",
		Now: func() time.Time {
			ts := clock[0]
			clock = clock[1:]
			return ts
		},
	}

	rec, samples, err := exec.Run(testContext(t), textCombo(0.4), 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, mon.starts)
	assert.Equal(t, 1, mon.stops)
	assert.Len(t, samples, 2)

	assert.Equal(t, "r1", rec.RunID)
	assert.Equal(t, model.ModeText, rec.Mode)
	assert.Equal(t, model.PromptHash("hello"), rec.PromptHash)
	assert.Equal(t, textCombo(0.4).Key(), rec.Key)
	assert.Equal(t, 2, rec.Cycle)
	assert.Equal(t, 3, rec.Run)
	assert.InDelta(t, 2.5, rec.WallTimeS, 1e-9)
	require.NotNil(t, rec.DecodeTPS)
	assert.InDelta(t, 50.0, *rec.DecodeTPS, 1e-9)
	assert.InDelta(t, 20.0, *rec.PrefillTPS, 1e-9)
	require.NotNil(t, rec.Resources)
	assert.Equal(t, 2, rec.Resources.SampleCount)
	assert.Equal(t, 2, rec.ResponseChars)
}

func TestExecutorFailureStillStopsMonitor(t *testing.T) {
	mon := &fakeMonitor{}
	exec := &Executor{
		Client: &fakeInferencer{fn: func(int, GenerateRequest) (*GenerateResponse, error) {
			return nil, errors.New("connection reset")
		}},
		Monitor: mon,
	}

	_, _, err := exec.Run(testContext(t), textCombo(0), 1, 1)
	var jerr *model.JobError
	require.ErrorAs(t, err, &jerr)
	assert.Equal(t, textCombo(0).Key(), jerr.Key)
	assert.Equal(t, 1, mon.starts)
	assert.Equal(t, 1, mon.stops)
}

func TestExecutorSendsImagePayload(t *testing.T) {
	inf := &fakeInferencer{}
	exec := &Executor{Client: inf, Images: map[string]string{"a.png": "QUJD"}}

	combo := textCombo(0)
	combo.ImagePath = lo.ToPtr("a.png")
	rec, _, err := exec.Run(testContext(t), combo, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, model.ModeVision, rec.Mode)
	assert.Nil(t, rec.Resources)
	assert.Equal(t, []string{"QUJD"}, inf.calls[0].Images)

	combo.ImagePath = lo.ToPtr("missing.png")
	_, _, err = exec.Run(testContext(t), combo, 1, 1)
	var jerr *model.JobError
	assert.ErrorAs(t, err, &jerr)
}

func newTestSweep(t *testing.T, inf Inferencer, combos []model.Combination, runs, cycles int) (*Sweep, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.jsonl")
	return &Sweep{
		RunID: "run",
		Model: "m",
		Plan: &Plan{
			Mode:         model.ModeText,
			Combinations: combos,
			Runs:         runs,
			Cycles:       cycles,
		},
		Executor: &Executor{Client: inf, RunID: "run", Model: "m"},
		Sinks:    output.NewSinks(output.NewJSONWriter(path)),
		Progress: output.NewProgress(io.Discard, nil, sweep.JobCount(combos, runs, cycles)),
	}, path
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	return n
}

func TestSweepOnePromptTwoTemperaturesTwoRuns(t *testing.T) {
	combos, err := sweep.Generate(sweep.Axes{
		Prompts:      []string{"hello"},
		Contexts:     []int{4096},
		NumPredict:   []int{128},
		Temperatures: []float64{0, 0.7},
		Seeds:        []*int{lo.ToPtr(42)},
	}, model.ModeText)
	require.NoError(t, err)

	s, path := newTestSweep(t, &fakeInferencer{}, combos, 2, 1)
	summary := s.Execute(testContext(t))

	assert.Equal(t, 4, summary.Planned)
	assert.Equal(t, 4, summary.Completed)
	assert.Zero(t, summary.Failed)
	assert.False(t, summary.Interrupted)
	assert.Equal(t, 4, countLines(t, path))

	require.Len(t, summary.Combinations, 2)
	for _, c := range summary.Combinations {
		assert.Equal(t, 2, c.Samples)
		assert.InDelta(t, 50.0, c.Mean, 1e-9)
	}
	require.NotNil(t, summary.Text)
	assert.Equal(t, 4, summary.Text.Samples)
	assert.Nil(t, summary.Vision)
	assert.Nil(t, summary.Comparison)
	require.Len(t, summary.Temperatures, 2)
	assert.Equal(t, 0.0, summary.Temperatures[0].Temperature)
	assert.Equal(t, 0.7, summary.Temperatures[1].Temperature)
}

func TestSweepCountsFailuresPerCombination(t *testing.T) {
	inf := &fakeInferencer{fn: func(_ int, req GenerateRequest) (*GenerateResponse, error) {
		if req.Temperature == 0.7 {
			return nil, errors.New("boom")
		}
		return okResponse(), nil
	}}
	combos := []model.Combination{textCombo(0), textCombo(0.7)}
	s, path := newTestSweep(t, inf, combos, 2, 1)
	summary := s.Execute(testContext(t))

	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 2, summary.Failed)
	assert.LessOrEqual(t, summary.Completed, summary.Planned)
	assert.Equal(t, 2, countLines(t, path))

	require.Len(t, summary.Combinations, 2)
	assert.Equal(t, 0, summary.Combinations[0].Failed)
	assert.Equal(t, 2, summary.Combinations[1].Failed)
	assert.Zero(t, summary.Combinations[1].Samples)
	require.Len(t, summary.Top, 1)
	assert.Equal(t, textCombo(0).Key(), summary.Top[0].Key)
}

func TestSweepWarmupPerCombinationPerCycle(t *testing.T) {
	inf := &fakeInferencer{}
	s, _ := newTestSweep(t, inf, []model.Combination{textCombo(0), textCombo(1)}, 2, 2)
	s.Warmup = true
	summary := s.Execute(testContext(t))

	assert.Equal(t, 8, summary.Completed)
	warmups := lo.Count(inf.prompts(), WarmupPrompt)
	assert.Equal(t, 4, warmups)
	assert.Equal(t, WarmupPrompt, inf.prompts()[0])
}

func TestSweepWarmupFailureIsNotFatal(t *testing.T) {
	inf := &fakeInferencer{fn: func(_ int, req GenerateRequest) (*GenerateResponse, error) {
		if req.Prompt == WarmupPrompt {
			return nil, errors.New("cold")
		}
		return okResponse(), nil
	}}
	s, _ := newTestSweep(t, inf, []model.Combination{textCombo(0)}, 1, 1)
	s.Warmup = true
	summary := s.Execute(testContext(t))
	assert.Equal(t, 1, summary.Completed)
	assert.Zero(t, summary.Failed)
}

func TestSweepInterruptReportsPartialSummary(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()

	inf := &fakeInferencer{fn: func(n int, _ GenerateRequest) (*GenerateResponse, error) {
		if n == 2 {
			cancel()
			return nil, context.Canceled
		}
		return okResponse(), nil
	}}
	s, path := newTestSweep(t, inf, []model.Combination{textCombo(0), textCombo(1)}, 2, 1)
	summary := s.Execute(ctx)

	assert.True(t, summary.Interrupted)
	assert.Equal(t, 1, summary.Completed)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 4, summary.Planned)
	assert.Equal(t, 1, countLines(t, path))
	require.NotNil(t, summary.Text)
	assert.Equal(t, 1, summary.Text.Samples)
}

func TestSweepInterruptDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()

	inf := &fakeInferencer{fn: func(int, GenerateRequest) (*GenerateResponse, error) {
		time.AfterFunc(20*time.Millisecond, cancel)
		return okResponse(), nil
	}}
	s, _ := newTestSweep(t, inf, []model.Combination{textCombo(0)}, 3, 1)
	s.Sleep = time.Hour
	summary := s.Execute(ctx)

	assert.True(t, summary.Interrupted)
	assert.Equal(t, 1, summary.Completed)
	assert.Len(t, inf.prompts(), 1)
}

func TestSweepWritesMonitorDump(t *testing.T) {
	dumpPath := filepath.Join(t.TempDir(), "monitor.jsonl")
	s, _ := newTestSweep(t, &fakeInferencer{}, []model.Combination{textCombo(0)}, 2, 1)
	s.Executor.Monitor = &fakeMonitor{}
	s.Dump = output.NewMonitorDump(dumpPath)

	summary := s.Execute(testContext(t))
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 2, countLines(t, dumpPath))
}

func TestComputeStats(t *testing.T) {
	assert.Nil(t, ComputeStats(nil))

	one := ComputeStats([]float64{7})
	require.NotNil(t, one)
	assert.Nil(t, one.Stdev)
	assert.Equal(t, 7.0, one.Median)

	st := ComputeStats([]float64{4, 1, 3, 2})
	assert.Equal(t, 4, st.Samples)
	assert.InDelta(t, 2.5, st.Mean, 1e-9)
	assert.InDelta(t, 2.5, st.Median, 1e-9)
	assert.Equal(t, 1.0, st.Min)
	assert.Equal(t, 4.0, st.Max)
	require.NotNil(t, st.Stdev)
	assert.InDelta(t, math.Sqrt(5.0/3.0), *st.Stdev, 1e-9)

	odd := ComputeStats([]float64{5, 1, 3})
	assert.Equal(t, 3.0, odd.Median)
}

func TestCompare(t *testing.T) {
	c := Compare(&model.TPSStats{Mean: 50}, &model.TPSStats{Mean: 25})
	require.NotNil(t, c)
	assert.InDelta(t, 2.0, c.TextVisionRatio, 1e-9)
	assert.InDelta(t, 100.0, c.TextFasterByPercent, 1e-9)
	assert.Equal(t, model.ModeText, c.FasterMode)

	slow := Compare(&model.TPSStats{Mean: 20}, &model.TPSStats{Mean: 40})
	assert.Equal(t, model.ModeVision, slow.FasterMode)
	assert.InDelta(t, -50.0, slow.TextFasterByPercent, 1e-9)

	assert.Nil(t, Compare(nil, &model.TPSStats{Mean: 1}))
	assert.Nil(t, Compare(&model.TPSStats{Mean: 1}, &model.TPSStats{}))
}

func TestAggregateTopFiveAndModes(t *testing.T) {
	agg := NewAggregate()
	for i := 0; i < 6; i++ {
		c := textCombo(float64(i) / 10)
		agg.Add(c, model.BenchmarkRecord{DecodeTPS: lo.ToPtr(float64(10 + i))})
	}
	img := textCombo(0)
	img.ImagePath = lo.ToPtr("a.png")
	agg.Add(img, model.BenchmarkRecord{DecodeTPS: lo.ToPtr(5.0)})
	agg.Add(img, model.BenchmarkRecord{})

	var s model.SweepSummary
	agg.Fill(&s)

	require.Len(t, s.Combinations, 7)
	require.Len(t, s.Top, TopN)
	assert.InDelta(t, 15.0, s.Top[0].Mean, 1e-9)
	assert.InDelta(t, 11.0, s.Top[4].Mean, 1e-9)

	require.NotNil(t, s.Vision)
	assert.Equal(t, 1, s.Vision.Samples)
	assert.Equal(t, []float64{5}, agg.values(img.Key()))
	require.NotNil(t, s.Comparison)
	assert.Equal(t, model.ModeText, s.Comparison.FasterMode)
	assert.Len(t, agg.keys(), 7)
}

func TestETA(t *testing.T) {
	assert.Equal(t, 30*time.Second, eta(10*time.Second, 1, 4))
	assert.Zero(t, eta(10*time.Second, 4, 4))
	assert.Zero(t, eta(0, 0, 4))
}

func TestRunInterruptedWhileWaitingForServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	cfg := testConfig(url)
	cfg.Model = "gpt-oss:20b"
	cfg.Mode = string(model.ModeText)
	cfg.Probe.Attempts = 5
	cfg.Probe.Delay = time.Hour
	cfg.ApplyProfile()

	ctx, cancel := context.WithCancel(testContext(t))
	time.AfterFunc(30*time.Millisecond, cancel)

	var stdout, stderr bytes.Buffer
	sum, err := Run(ctx, cfg, &stdout, &stderr)
	require.NoError(t, err)
	assert.True(t, sum.Interrupted)
	assert.Zero(t, sum.Completed)
	assert.Positive(t, sum.Planned)
}
