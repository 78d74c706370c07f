//go:build !unix

package engine

import (
	"github.com/daryltucker/ollama-sweep/internal/config"
	"github.com/daryltucker/ollama-sweep/internal/output"
)

func logHostInfo(runID string, cfg *config.Config) {
	output.Logger.Info("Run header", "run_id", runID, "host", cfg.Host, "model", cfg.Model)
}
