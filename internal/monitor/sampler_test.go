package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v4/sensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/ollama-sweep/internal/model"
)

type stubGPU struct {
	name    string
	reading GPUReading
	err     error
	calls   int
}

func (s *stubGPU) Name() string { return s.name }

func (s *stubGPU) Read(context.Context) (GPUReading, error) {
	s.calls++
	return s.reading, s.err
}

func TestSummarizeCountsPresentValuesOnly(t *testing.T) {
	t0 := time.Unix(1000, 0)
	samples := []model.ResourceSample{
		{Timestamp: t0, CPUPercent: 10, GPUUsagePercent: lo.ToPtr(50.0)},
		{Timestamp: t0.Add(500 * time.Millisecond), CPUPercent: 30},
		{Timestamp: t0.Add(time.Second), CPUPercent: 20, GPUUsagePercent: lo.ToPtr(70.0)},
	}

	sum := Summarize(samples)
	assert.Equal(t, 3, sum.SampleCount)
	assert.InDelta(t, 1.0, sum.DurationS, 1e-9)

	assert.Equal(t, 3, sum.CPUPercent.Count)
	assert.InDelta(t, 10.0, *sum.CPUPercent.Min, 1e-9)
	assert.InDelta(t, 30.0, *sum.CPUPercent.Max, 1e-9)
	assert.InDelta(t, 20.0, *sum.CPUPercent.Mean, 1e-9)

	assert.Equal(t, 2, sum.GPUUsagePercent.Count)
	assert.InDelta(t, 60.0, *sum.GPUUsagePercent.Mean, 1e-9)

	for _, st := range []model.MetricStats{sum.PowerWatts, sum.CPUTempC, sum.GPUTempC, sum.DiskReadMB} {
		assert.Equal(t, 0, st.Count)
		assert.Nil(t, st.Mean)
		assert.Nil(t, st.Min)
		assert.Nil(t, st.Max)
	}
	assert.LessOrEqual(t, sum.GPUUsagePercent.Count, sum.SampleCount)
}

func TestSummarizeSingleSampleHasZeroDuration(t *testing.T) {
	sum := Summarize([]model.ResourceSample{{Timestamp: time.Now(), RAMPercent: 42}})
	assert.Equal(t, 1, sum.SampleCount)
	assert.Zero(t, sum.DurationS)
	assert.InDelta(t, 42.0, *sum.RAMPercent.Mean, 1e-9)
}

func TestSampleWithFailingGPUSources(t *testing.T) {
	dead := &stubGPU{name: "dead", err: errors.New("no driver")}
	s := &HostSampler{
		GPUSources:  []GPUSource{dead},
		ThermalRoot: t.TempDir(),
		PowerGlob:   filepath.Join(t.TempDir(), "missing", "*"),
		ExecTimeout: 100 * time.Millisecond,
	}

	sample := s.Sample(context.Background())
	assert.Equal(t, 1, dead.calls)
	assert.Nil(t, sample.GPUUsagePercent)
	assert.Nil(t, sample.GPUMemUsedMB)
	assert.Nil(t, sample.PowerWatts)
	assert.False(t, sample.Timestamp.IsZero())
}

func TestSampleUsesFirstWorkingGPUSource(t *testing.T) {
	first := &stubGPU{name: "first", err: errGPUUnavailable}
	second := &stubGPU{name: "second", reading: GPUReading{UsagePercent: lo.ToPtr(33.0), PowerW: lo.ToPtr(12.5)}}
	third := &stubGPU{name: "third", reading: GPUReading{UsagePercent: lo.ToPtr(99.0)}}
	s := &HostSampler{
		GPUSources:  []GPUSource{first, second, third},
		ThermalRoot: t.TempDir(),
		PowerGlob:   filepath.Join(t.TempDir(), "*"),
		ExecTimeout: 100 * time.Millisecond,
	}

	sample := s.Sample(context.Background())
	require.NotNil(t, sample.GPUUsagePercent)
	assert.Equal(t, 33.0, *sample.GPUUsagePercent)
	require.NotNil(t, sample.PowerWatts)
	assert.Equal(t, 12.5, *sample.PowerWatts)
	assert.Zero(t, third.calls)
}

func TestSampleSkipsPanickingGPUSource(t *testing.T) {
	backup := &stubGPU{name: "backup", reading: GPUReading{UsagePercent: lo.ToPtr(21.0)}}
	s := &HostSampler{
		GPUSources:  []GPUSource{explodingGPU{}, backup},
		ThermalRoot: t.TempDir(),
		PowerGlob:   filepath.Join(t.TempDir(), "missing", "*"),
		ExecTimeout: 100 * time.Millisecond,
	}

	sample := s.Sample(context.Background())
	assert.Equal(t, 1, backup.calls)
	require.NotNil(t, sample.GPUUsagePercent)
	assert.Equal(t, 21.0, *sample.GPUUsagePercent)
}

func TestGuardedAbsorbsPanic(t *testing.T) {
	var reached bool
	fn := guarded("test", func() {
		reached = true
		panic("boom")
	})
	assert.NotPanics(t, func() { assert.NoError(t, fn()) })
	assert.True(t, reached)
}

func TestSampleAlwaysFailingSensorStillSummarizes(t *testing.T) {
	s := &HostSampler{
		GPUSources:  []GPUSource{&stubGPU{name: "dead", err: errors.New("boom")}},
		ThermalRoot: t.TempDir(),
		PowerGlob:   filepath.Join(t.TempDir(), "*"),
		ExecTimeout: 50 * time.Millisecond,
	}
	samples := []model.ResourceSample{s.Sample(context.Background()), s.Sample(context.Background())}

	sum := Summarize(samples)
	assert.Equal(t, 2, sum.SampleCount)
	assert.Equal(t, 0, sum.GPUUsagePercent.Count)
	assert.Nil(t, sum.GPUUsagePercent.Mean)
	assert.Equal(t, 2, sum.CPUPercent.Count)
	assert.Equal(t, 2, sum.RAMPercent.Count)
}

func TestReadThermalZonesOrdersByZoneNumber(t *testing.T) {
	root := t.TempDir()
	writeZone := func(name, val string) {
		dir := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "temp"), []byte(val), 0o644))
	}
	writeZone("thermal_zone10", "30000\n")
	writeZone("thermal_zone2", "45500\n")
	writeZone("thermal_zone0", "51000\n")
	writeZone("thermal_zone1", "garbage\n")

	assert.Equal(t, []float64{51, 45.5, 30}, readThermalZones(root))
	assert.Empty(t, readThermalZones(filepath.Join(root, "nope")))
}

func TestReadPowerRails(t *testing.T) {
	root := t.TempDir()
	for i, mw := range []string{"1500", "2500\n"} {
		dir := filepath.Join(root, "0-004"+string(rune('0'+i)), "iio_device")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "in_power0_input"), []byte(mw), 0o644))
	}

	w, ok := readPowerRails(filepath.Join(root, "*", "iio_device", "in_power*_input"))
	require.True(t, ok)
	assert.InDelta(t, 4.0, w, 1e-9)

	_, ok = readPowerRails(filepath.Join(root, "missing", "*"))
	assert.False(t, ok)
}

func TestPickSensorTemps(t *testing.T) {
	cpu, gpu := pickSensorTemps([]sensors.TemperatureStat{
		{SensorKey: "nvme_composite", Temperature: 38},
		{SensorKey: "gpu-thermal", Temperature: 41},
		{SensorKey: "coretemp_package_id_0", Temperature: 55},
	})
	require.NotNil(t, cpu)
	require.NotNil(t, gpu)
	assert.Equal(t, 55.0, *cpu)
	assert.Equal(t, 41.0, *gpu)

	cpu, gpu = pickSensorTemps([]sensors.TemperatureStat{{SensorKey: "acpitz", Temperature: 27}})
	assert.Nil(t, cpu)
	assert.Nil(t, gpu)
}

func TestParseSMI(t *testing.T) {
	r, err := parseSMI("87, 10240, 24576, 66, 251.30\n12, 1, 2, 3, 4\n")
	require.NoError(t, err)
	assert.Equal(t, 87.0, *r.UsagePercent)
	assert.Equal(t, 10240.0, *r.MemUsedMB)
	assert.Equal(t, 24576.0, *r.MemTotalMB)
	assert.Equal(t, 66.0, *r.TempC)
	assert.InDelta(t, 251.3, *r.PowerW, 1e-9)

	r, err = parseSMI("45, 100, 200, 50, [N/A]")
	require.NoError(t, err)
	assert.Nil(t, r.PowerW)

	_, err = parseSMI("")
	assert.Error(t, err)
}

func TestParseTegrastats(t *testing.T) {
	line := "RAM 3021/7772MB (lfb 5x4MB) CPU [12%@1190,8%@1190] EMC_FREQ 0% GR3D_FREQ 76%@[1300] CPU@48.5C GPU@46.25C"
	r, err := parseTegrastats(line)
	require.NoError(t, err)
	assert.Equal(t, 76.0, *r.UsagePercent)
	assert.Equal(t, 46.25, *r.TempC)

	_, err = parseTegrastats("RAM 3021/7772MB")
	assert.Error(t, err)
}
