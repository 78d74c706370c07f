package monitor

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Jetson INA3221 power monitor rails, reported in milliwatts.
const defaultPowerGlob = "/sys/bus/i2c/drivers/ina3221x/*/iio_device/in_power*_input"

// readPowerRails sums every rail matched by glob and returns watts.
// ok is false when no rail could be read.
func readPowerRails(glob string) (watts float64, ok bool) {
	paths, err := filepath.Glob(glob)
	if err != nil {
		return 0, false
	}
	var totalMW float64
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		mw, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
		if err != nil {
			continue
		}
		totalMW += mw
		ok = true
	}
	return totalMW / 1000, ok
}
