package monitor

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/ollama-sweep/internal/model"
)

type countingSampler struct {
	calls atomic.Int64
	gen   atomic.Int64
	delay time.Duration
}

func (c *countingSampler) Sample(context.Context) model.ResourceSample {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.calls.Add(1)
	return model.ResourceSample{
		Timestamp:  time.Now(),
		CPUPercent: float64(c.gen.Load()),
	}
}

type panicSampler struct{ calls atomic.Int64 }

func (p *panicSampler) Sample(context.Context) model.ResourceSample {
	if p.calls.Add(1)%2 == 1 {
		panic("sensor exploded")
	}
	return model.ResourceSample{Timestamp: time.Now()}
}

func TestMonitorStopReturnsCompletedIterations(t *testing.T) {
	s := &countingSampler{}
	m := New(s, 10*time.Millisecond)

	m.Start(context.Background())
	require.True(t, m.running())
	time.Sleep(60 * time.Millisecond)
	samples := m.Stop()

	assert.False(t, m.running())
	assert.NotEmpty(t, samples)
	assert.Equal(t, int(s.calls.Load()), len(samples))

	sum := m.Summary()
	assert.Equal(t, len(samples), sum.SampleCount)
	assert.Equal(t, len(samples), sum.CPUPercent.Count)
}

func TestMonitorRestartResetsBuffer(t *testing.T) {
	s := &countingSampler{}
	m := New(s, 5*time.Millisecond)

	s.gen.Store(1)
	m.Start(context.Background())
	time.Sleep(30 * time.Millisecond)

	s.gen.Store(2)
	m.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	samples := m.Stop()

	require.NotEmpty(t, samples)
	for _, smp := range samples {
		assert.Equal(t, 2.0, smp.CPUPercent)
	}
}

func TestMonitorStopTimeoutReturnsBuffered(t *testing.T) {
	s := &countingSampler{delay: 300 * time.Millisecond}
	m := New(s, 5*time.Millisecond)
	m.JoinTimeout = 20 * time.Millisecond

	m.Start(context.Background())
	time.Sleep(350 * time.Millisecond)
	start := time.Now()
	samples := m.Stop()

	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.LessOrEqual(t, len(samples), int(s.calls.Load()))
}

func TestMonitorRecoversFromSamplePanics(t *testing.T) {
	p := &panicSampler{}
	m := New(p, 5*time.Millisecond)

	m.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	samples := m.Stop()

	assert.NotEmpty(t, samples)
	assert.Greater(t, p.calls.Load(), int64(len(samples)))
}

func TestMonitorIdle(t *testing.T) {
	m := New(&countingSampler{}, 0)
	assert.Equal(t, DefaultInterval, m.Interval)
	assert.Nil(t, m.Stop())

	sum := m.Summary()
	assert.Equal(t, 0, sum.SampleCount)
	assert.Zero(t, sum.DurationS)
	assert.Nil(t, sum.CPUPercent.Mean)
}

func TestMonitorStopReturnsCopy(t *testing.T) {
	m := New(&countingSampler{}, 5*time.Millisecond)
	m.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	samples := m.Stop()
	require.NotEmpty(t, samples)

	samples[0].CPUPercent = 999
	assert.Less(t, *m.Summary().CPUPercent.Max, 999.0)
}

type explodingGPU struct{}

func (explodingGPU) Name() string { return "exploding" }

func (explodingGPU) Read(context.Context) (GPUReading, error) {
	panic("vendor tool exploded")
}

func TestMonitorSurvivesPanickingGPUSource(t *testing.T) {
	s := &HostSampler{
		GPUSources:  []GPUSource{explodingGPU{}},
		ThermalRoot: t.TempDir(),
		PowerGlob:   filepath.Join(t.TempDir(), "missing", "*"),
		ExecTimeout: 100 * time.Millisecond,
	}
	m := New(s, 10*time.Millisecond)

	m.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	samples := m.Stop()

	require.NotEmpty(t, samples)
	for _, sample := range samples {
		assert.Nil(t, sample.GPUUsagePercent)
		assert.Nil(t, sample.GPUMemUsedMB)
	}
}
