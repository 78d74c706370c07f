package monitor

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/sensors"
)

const defaultThermalRoot = "/sys/class/thermal"

var (
	cpuSensorHints = []string{"coretemp", "k10temp", "tctl", "package", "cpu", "soc"}
	gpuSensorHints = []string{"gpu", "amdgpu", "nouveau"}
)

// pickSensorTemps assigns hwmon sensors to CPU and GPU by key name.
// The first matching key wins for each.
func pickSensorTemps(stats []sensors.TemperatureStat) (cpu, gpu *float64) {
	for _, hint := range cpuSensorHints {
		for _, st := range stats {
			if cpu == nil && validTemp(st.Temperature) && strings.Contains(strings.ToLower(st.SensorKey), hint) &&
				!containsAny(strings.ToLower(st.SensorKey), gpuSensorHints) {
				v := st.Temperature
				cpu = &v
			}
		}
	}
	for _, st := range stats {
		if gpu == nil && validTemp(st.Temperature) && containsAny(strings.ToLower(st.SensorKey), gpuSensorHints) {
			v := st.Temperature
			gpu = &v
		}
	}
	return cpu, gpu
}

// readThermalZones returns zone temperatures in zone-number order, in
// degrees Celsius. Zones that cannot be read are skipped.
func readThermalZones(root string) []float64 {
	paths, err := filepath.Glob(filepath.Join(root, "thermal_zone*", "temp"))
	if err != nil || len(paths) == 0 {
		return nil
	}
	sort.Slice(paths, func(i, j int) bool { return zoneIndex(paths[i]) < zoneIndex(paths[j]) })

	var temps []float64
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		milli, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
		if err != nil {
			continue
		}
		if c := milli / 1000; validTemp(c) {
			temps = append(temps, c)
		}
	}
	return temps
}

func zoneIndex(path string) int {
	dir := filepath.Base(filepath.Dir(path))
	n, err := strconv.Atoi(strings.TrimPrefix(dir, "thermal_zone"))
	if err != nil {
		return 1 << 30
	}
	return n
}

func validTemp(c float64) bool {
	return c > -40 && c < 150
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
