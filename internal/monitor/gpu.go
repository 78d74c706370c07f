/*
PURPOSE:
  GPU readings for the host sampler: utilization, memory, temperature
  and power from whichever vendor interface the host has.

REQUIREMENTS:
  User-specified:
  - Support discrete NVIDIA GPUs and Jetson boards.

  Implementation-discovered:
  - NVML is fastest but absent in many containers; nvidia-smi still works there.
  - Jetson has no NVML; tegrastats is the only source of GR3D load.

ARCHITECTURE INTEGRATION:
  - Called by: internal/monitor.HostSampler (readGPU)
  - Uses: go-nvml, nvidia-smi, tegrastats

ERROR HANDLING:
  - Sources return errGPUUnavailable-wrapped errors; the sampler tries the next one.
  - NVML init failure is remembered and not retried.

IMPLEMENTATION RULES:
  - Exec calls honour the context deadline set by the sampler.
  - Unparseable fields stay nil.

USAGE:
  r, err := (&SMISource{}).Read(ctx)

SELF-HEALING INSTRUCTIONS:
  - If tegrastats output changes, adjust the regexes in parseTegrastats.

RELATED FILES:
  - internal/monitor/sampler.go

MAINTENANCE:
  - Add new vendors as GPUSource implementations.
*/

package monitor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/samber/lo"
)

var errGPUUnavailable = errors.New("gpu source unavailable")

// GPUReading is what a GPU source could read. Any field may be nil.
type GPUReading struct {
	UsagePercent *float64
	MemUsedMB    *float64
	MemTotalMB   *float64
	TempC        *float64
	PowerW       *float64
}

func (r GPUReading) empty() bool {
	return r.UsagePercent == nil && r.MemUsedMB == nil && r.MemTotalMB == nil && r.TempC == nil && r.PowerW == nil
}

// GPUSource reads GPU utilization from one vendor interface.
type GPUSource interface {
	Name() string
	Read(ctx context.Context) (GPUReading, error)
}

// DefaultGPUSources returns the probe chain: NVML, nvidia-smi, tegrastats.
func DefaultGPUSources() []GPUSource {
	return []GPUSource{&NVMLSource{}, &SMISource{}, &TegrastatsSource{}}
}

// NVMLSource reads device 0 through the NVML library.
type NVMLSource struct {
	once   sync.Once
	device nvml.Device
	err    error
}

func (n *NVMLSource) Name() string { return "nvml" }

func (n *NVMLSource) init() {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		n.err = fmt.Errorf("%w: nvml init: %s", errGPUUnavailable, nvml.ErrorString(ret))
		return
	}
	device, ret := nvml.DeviceGetHandleByIndex(0)
	if ret != nvml.SUCCESS {
		nvml.Shutdown()
		n.err = fmt.Errorf("%w: nvml device 0: %s", errGPUUnavailable, nvml.ErrorString(ret))
		return
	}
	n.device = device
}

func (n *NVMLSource) Read(_ context.Context) (GPUReading, error) {
	n.once.Do(n.init)
	if n.err != nil {
		return GPUReading{}, n.err
	}

	var r GPUReading
	if util, ret := n.device.GetUtilizationRates(); ret == nvml.SUCCESS {
		r.UsagePercent = lo.ToPtr(float64(util.Gpu))
	}
	if mem, ret := n.device.GetMemoryInfo(); ret == nvml.SUCCESS {
		r.MemUsedMB = lo.ToPtr(float64(mem.Used) / 1024 / 1024)
		r.MemTotalMB = lo.ToPtr(float64(mem.Total) / 1024 / 1024)
	}
	if temp, ret := n.device.GetTemperature(nvml.TEMPERATURE_GPU); ret == nvml.SUCCESS {
		r.TempC = lo.ToPtr(float64(temp))
	}
	if mw, ret := n.device.GetPowerUsage(); ret == nvml.SUCCESS {
		r.PowerW = lo.ToPtr(float64(mw) / 1000)
	}
	if r.empty() {
		return r, errors.New("nvml returned no readings")
	}
	return r, nil
}

// Close releases NVML if it was initialized.
func (n *NVMLSource) Close() {
	if n.device != nil {
		nvml.Shutdown()
	}
}

// SMISource shells out to nvidia-smi.
type SMISource struct {
	Binary string
}

func (s *SMISource) Name() string { return "nvidia-smi" }

func (s *SMISource) Read(ctx context.Context) (GPUReading, error) {
	bin := lo.Ternary(s.Binary != "", s.Binary, "nvidia-smi")
	path, err := exec.LookPath(bin)
	if err != nil {
		return GPUReading{}, fmt.Errorf("%w: %v", errGPUUnavailable, err)
	}
	out, err := exec.CommandContext(ctx, path,
		"--query-gpu=utilization.gpu,memory.used,memory.total,temperature.gpu,power.draw",
		"--format=csv,noheader,nounits",
	).Output()
	if err != nil {
		return GPUReading{}, fmt.Errorf("nvidia-smi: %w", err)
	}
	return parseSMI(string(out))
}

// parseSMI reads the first GPU line of a --query-gpu csv.
func parseSMI(out string) (GPUReading, error) {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	if line == "" {
		return GPUReading{}, errors.New("nvidia-smi: empty output")
	}
	fields := strings.Split(line, ",")
	at := func(i int) *float64 {
		if i >= len(fields) {
			return nil
		}
		return parseFloatFlexible(fields[i])
	}
	r := GPUReading{
		UsagePercent: at(0),
		MemUsedMB:    at(1),
		MemTotalMB:   at(2),
		TempC:        at(3),
		PowerW:       at(4),
	}
	if r.empty() {
		return r, fmt.Errorf("nvidia-smi: unparseable line %q", line)
	}
	return r, nil
}

func parseFloatFlexible(s string) *float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSuffix(s, " W")
	s = strings.TrimSuffix(s, " MiB")
	if s == "" || strings.Contains(s, "N/A") || strings.Contains(s, "Not Supported") {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &v
}

// TegrastatsSource reads one line from Jetson's tegrastats.
type TegrastatsSource struct {
	Binary string
}

func (t *TegrastatsSource) Name() string { return "tegrastats" }

func (t *TegrastatsSource) Read(ctx context.Context) (GPUReading, error) {
	bin := lo.Ternary(t.Binary != "", t.Binary, "tegrastats")
	path, err := exec.LookPath(bin)
	if err != nil {
		return GPUReading{}, fmt.Errorf("%w: %v", errGPUUnavailable, err)
	}

	cmd := exec.CommandContext(ctx, path, "--interval", "100")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return GPUReading{}, err
	}
	if err := cmd.Start(); err != nil {
		return GPUReading{}, fmt.Errorf("tegrastats: %w", err)
	}
	line, readErr := bufio.NewReader(stdout).ReadString('\n')
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
	if readErr != nil && line == "" {
		return GPUReading{}, fmt.Errorf("tegrastats: %w", readErr)
	}
	return parseTegrastats(line)
}

var (
	gr3dRe     = regexp.MustCompile(`GR3D_FREQ (\d+)%`)
	tegraGPURe = regexp.MustCompile(`(?i)\bGPU@(-?[\d.]+)C`)
)

func parseTegrastats(line string) (GPUReading, error) {
	var r GPUReading
	if m := gr3dRe.FindStringSubmatch(line); m != nil {
		r.UsagePercent = parseFloatFlexible(m[1])
	}
	if m := tegraGPURe.FindStringSubmatch(line); m != nil {
		r.TempC = parseFloatFlexible(m[1])
	}
	if r.empty() {
		return r, errors.New("tegrastats: no GR3D_FREQ in output")
	}
	return r, nil
}
