//go:build unix

package engine

import (
	"golang.org/x/sys/unix"

	"github.com/daryltucker/ollama-sweep/internal/config"
	"github.com/daryltucker/ollama-sweep/internal/output"
)

// logHostInfo records where the sweep ran.
func logHostInfo(runID string, cfg *config.Config) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		output.Logger.Debug("uname failed", "error", err)
		output.Logger.Info("Run header", "run_id", runID, "host", cfg.Host, "model", cfg.Model)
		return
	}
	output.Logger.Info("Run header",
		"run_id", runID,
		"host", cfg.Host,
		"model", cfg.Model,
		"node", unix.ByteSliceToString(u.Nodename[:]),
		"kernel", unix.ByteSliceToString(u.Release[:]),
		"arch", unix.ByteSliceToString(u.Machine[:]),
	)
}
