/*
PURPOSE:
  Appends benchmark records to a JSON Lines file (NDJSON).
  One self-contained object per job.

REQUIREMENTS:
  User-specified:
  - JSONL output, one record per line, stable field set within a run.
  - No file handle held open across jobs.

  Implementation-discovered:
  - Appending to an existing file lets several sweeps share one log.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (through output.Sinks)
  - Consumes: internal/model.BenchmarkRecord

ERROR HANDLING:
  - Returns *model.PersistenceError on open, encode or close failure.

IMPLEMENTATION RULES:
  - Open with O_APPEND, encode, close, per record.
  - Thread-safe.

USAGE:
  w := output.NewJSONWriter("results.jsonl")
  err := w.Write(record)

SELF-HEALING INSTRUCTIONS:
  - None specific.

RELATED FILES:
  - internal/model/types.go
  - internal/output/sink.go

MAINTENANCE:
  - None.
*/

package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/daryltucker/ollama-sweep/internal/model"
)

// JSONWriter appends records to a JSON Lines file.
type JSONWriter struct {
	path string
	mu   sync.Mutex
}

// NewJSONWriter creates a JSONWriter. The file is created on first write.
func NewJSONWriter(path string) *JSONWriter {
	return &JSONWriter{path: path}
}

func (jw *JSONWriter) Name() string { return "jsonl" }
func (jw *JSONWriter) Path() string { return jw.path }

// Write appends a single record as a JSON line.
func (jw *JSONWriter) Write(r model.BenchmarkRecord) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return appendJSONLine(jw.Name(), jw.path, r)
}

// Close is a no-op; every write closes its own handle.
func (jw *JSONWriter) Close() error { return nil }

func appendJSONLine(sink, path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &model.PersistenceError{Sink: sink, Path: path, Err: err}
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return &model.PersistenceError{Sink: sink, Path: path, Err: err}
	}
	if err := json.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		return &model.PersistenceError{Sink: sink, Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &model.PersistenceError{Sink: sink, Path: path, Err: err}
	}
	return nil
}
