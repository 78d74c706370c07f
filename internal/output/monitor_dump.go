/*
PURPOSE:
  Writes the raw resource samples of every job to a JSONL file.

REQUIREMENTS:
  User-specified:
  - Optional; enabled by output.monitor_file.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine.Sweep after each successful job.

ERROR HANDLING:
  - Returns write errors; the sweep logs them and continues.
*/

package output

import (
	"sync"

	"github.com/daryltucker/ollama-sweep/internal/model"
)

// MonitorDumpEntry is the raw sample list of one job.
type MonitorDumpEntry struct {
	RunID   string                 `json:"run_id"`
	Cycle   int                    `json:"cycle"`
	Run     int                    `json:"run"`
	Key     string                 `json:"key"`
	Samples []model.ResourceSample `json:"samples"`
}

// MonitorDump appends one JSON line of raw samples per job.
type MonitorDump struct {
	path     string
	mu       sync.Mutex
	disabled bool
}

func NewMonitorDump(path string) *MonitorDump {
	return &MonitorDump{path: path}
}

// Write appends e. After the first failure the dump is disabled and
// later writes are dropped.
func (d *MonitorDump) Write(e MonitorDumpEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disabled {
		return nil
	}
	if err := appendJSONLine("monitor-dump", d.path, e); err != nil {
		d.disabled = true
		Logger.Error("Monitor sample dump disabled", "path", d.path, "error", err)
		return err
	}
	return nil
}
