/*
PURPOSE:
  Takes one instantaneous snapshot of host resources: CPU load and
  frequency, memory, disk IO, GPU utilization, temperatures and power.

REQUIREMENTS:
  User-specified:
  - Must complete well inside the monitor interval (tens of ms).
  - A missing sensor leaves its field nil. Sample never fails.

  Implementation-discovered:
  - GPU tools are exec-based and slow; sub-readings run concurrently.
  - CPU percent is a delta against the previous call (gopsutil keeps the state).
  - Jetson boards expose GPU load only through tegrastats and power through INA3221 rails.

ARCHITECTURE INTEGRATION:
  - Called by: internal/monitor.Monitor, internal/cli (sensors command)
  - Uses: gopsutil (cpu, mem, disk, sensors), go-nvml, nvidia-smi, tegrastats, sysfs

ERROR HANDLING:
  - Every sub-reading error is swallowed and logged at debug level.
  - A panic in a sub-reading or a GPU source is recovered on its own goroutine.

IMPLEMENTATION RULES:
  - Do not coerce missing values to zero.
  - Keep each exec call bounded by ExecTimeout.

USAGE:
  s := monitor.NewHostSampler()
  sample := s.Sample(ctx)

SELF-HEALING INSTRUCTIONS:
  - If a new board exposes power elsewhere, change PowerGlob.
  - If GPU readings vanish, check DefaultGPUSources order and binaries on PATH.

RELATED FILES:
  - internal/monitor/gpu.go
  - internal/monitor/thermal.go
  - internal/monitor/power.go

MAINTENANCE:
  - Update when adding new sensor sources.
*/

package monitor

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"
	"golang.org/x/sync/errgroup"

	"github.com/daryltucker/ollama-sweep/internal/model"
	"github.com/daryltucker/ollama-sweep/internal/output"
)

const (
	gib = 1024 * 1024 * 1024
	mib = 1024 * 1024

	defaultCPUFreqPath = "/sys/devices/system/cpu/cpu0/cpufreq/scaling_cur_freq"
)

// Sampler takes one resource snapshot.
type Sampler interface {
	Sample(ctx context.Context) model.ResourceSample
}

// HostSampler reads the local host.
type HostSampler struct {
	GPUSources  []GPUSource
	ThermalRoot string
	PowerGlob   string
	CPUFreqPath string
	ExecTimeout time.Duration

	staticOnce sync.Once
	logical    int
	physical   int
	maxFreqMHz *float64
}

// NewHostSampler returns a sampler wired to the standard Linux locations.
func NewHostSampler() *HostSampler {
	return &HostSampler{
		GPUSources:  DefaultGPUSources(),
		ThermalRoot: defaultThermalRoot,
		PowerGlob:   defaultPowerGlob,
		CPUFreqPath: defaultCPUFreqPath,
		ExecTimeout: time.Second,
	}
}

// Close releases GPU library handles.
func (s *HostSampler) Close() {
	for _, src := range s.GPUSources {
		if n, ok := src.(*NVMLSource); ok {
			n.Close()
		}
	}
}

func (s *HostSampler) Sample(ctx context.Context) model.ResourceSample {
	sample := model.ResourceSample{Timestamp: time.Now()}

	var (
		gpu      GPUReading
		cpuTemp  *float64
		gpuTemp  *float64
		powerW   *float64
		diskRead *float64
		diskWrit *float64
	)

	var g errgroup.Group
	g.Go(guarded("cpu", func() {
		s.readCPU(ctx, &sample)
	}))
	g.Go(guarded("memory", func() {
		s.readMemory(ctx, &sample)
		diskRead, diskWrit = readDisk(ctx)
	}))
	g.Go(guarded("gpu", func() {
		gpu = s.readGPU(ctx)
	}))
	g.Go(guarded("temperature", func() {
		cpuTemp, gpuTemp = s.readTemperatures(ctx)
	}))
	g.Go(guarded("power", func() {
		if w, ok := readPowerRails(s.PowerGlob); ok {
			powerW = lo.ToPtr(w)
		}
	}))
	_ = g.Wait()

	sample.GPUUsagePercent = gpu.UsagePercent
	sample.GPUMemUsedMB = gpu.MemUsedMB
	sample.GPUMemTotalMB = gpu.MemTotalMB
	sample.CPUTempC = cpuTemp
	sample.GPUTempC = lo.Ternary(gpuTemp != nil, gpuTemp, gpu.TempC)
	sample.PowerWatts = lo.Ternary(powerW != nil, powerW, gpu.PowerW)
	sample.DiskReadMB = diskRead
	sample.DiskWriteMB = diskWrit
	return sample
}

func (s *HostSampler) loadStatic(ctx context.Context) {
	s.staticOnce.Do(func() {
		if n, err := cpu.CountsWithContext(ctx, true); err == nil {
			s.logical = n
		}
		if n, err := cpu.CountsWithContext(ctx, false); err == nil {
			s.physical = n
		}
		if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 && infos[0].Mhz > 0 {
			s.maxFreqMHz = lo.ToPtr(infos[0].Mhz)
		}
	})
}

func (s *HostSampler) readCPU(ctx context.Context, sample *model.ResourceSample) {
	s.loadStatic(ctx)
	sample.CPUCountLogical = s.logical
	sample.CPUCountPhysical = s.physical
	sample.CPUFreqMaxMHz = s.maxFreqMHz

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		sample.CPUPercent = pct[0]
	} else if err != nil {
		output.Logger.Debug("cpu percent unavailable", "error", err)
	}

	sample.CPUFreqCurrentMHz = readKHzFile(s.CPUFreqPath)
	if sample.CPUFreqCurrentMHz == nil {
		sample.CPUFreqCurrentMHz = s.maxFreqMHz
	}
}

func (s *HostSampler) readMemory(ctx context.Context, sample *model.ResourceSample) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		output.Logger.Debug("memory stats unavailable", "error", err)
		return
	}
	sample.RAMTotalGB = float64(vm.Total) / gib
	sample.RAMUsedGB = float64(vm.Used) / gib
	sample.RAMAvailableGB = float64(vm.Available) / gib
	sample.RAMPercent = vm.UsedPercent
}

func readDisk(ctx context.Context) (readMB, writeMB *float64) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil || len(counters) == 0 {
		return nil, nil
	}
	var r, w uint64
	for _, c := range counters {
		r += c.ReadBytes
		w += c.WriteBytes
	}
	return lo.ToPtr(float64(r) / mib), lo.ToPtr(float64(w) / mib)
}

// readGPU walks the source chain and returns the first reading with data.
func (s *HostSampler) readGPU(ctx context.Context) GPUReading {
	for _, src := range s.GPUSources {
		r, err := s.readSource(ctx, src)
		if err == nil {
			return r
		}
		output.Logger.Debug("gpu source failed", "source", src.Name(), "error", err)
	}
	return GPUReading{}
}

// readSource turns a panicking source into an error so the chain moves on.
func (s *HostSampler) readSource(ctx context.Context, src GPUSource) (r GPUReading, err error) {
	rctx, cancel := context.WithTimeout(ctx, s.ExecTimeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			r, err = GPUReading{}, fmt.Errorf("panic: %v", p)
		}
	}()
	return src.Read(rctx)
}

// readTemperatures prefers named hwmon sensors and falls back to raw
// thermal zones: first zone is the CPU, second the GPU.
func (s *HostSampler) readTemperatures(ctx context.Context) (cpuC, gpuC *float64) {
	stats, err := sensors.TemperaturesWithContext(ctx)
	if len(stats) > 0 {
		cpuC, gpuC = pickSensorTemps(stats)
	} else if err != nil {
		output.Logger.Debug("hwmon sensors unavailable", "error", err)
	}
	if cpuC != nil || gpuC != nil {
		return cpuC, gpuC
	}

	zones := readThermalZones(s.ThermalRoot)
	if len(zones) > 0 {
		cpuC = lo.ToPtr(zones[0])
	}
	if len(zones) > 1 {
		gpuC = lo.ToPtr(zones[1])
	}
	return cpuC, gpuC
}

// guarded runs one sub-reading on an errgroup goroutine. A panic leaves that
// reading's fields unset.
func guarded(source string, fn func()) func() error {
	return func() error {
		defer func() {
			if p := recover(); p != nil {
				output.Logger.Debug("sensor read panicked", "source", source, "panic", p)
			}
		}()
		fn()
		return nil
	}
}

func readKHzFile(path string) *float64 {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	khz, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil || khz <= 0 {
		return nil
	}
	return lo.ToPtr(khz / 1000)
}
