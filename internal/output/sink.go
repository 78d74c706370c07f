/*
PURPOSE:
  Fans benchmark records out to every configured result file.

REQUIREMENTS:
  User-specified:
  - A record is persisted as soon as its job finishes.

  Implementation-discovered:
  - One broken output must not stop the sweep or the other outputs.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine.Sweep
  - Wraps: JSONWriter, CSVWriter, ParquetWriter

ERROR HANDLING:
  - A sink that fails once is disabled and logged; later records skip it.

IMPLEMENTATION RULES:
  - Sinks are keyed by Name(); names must be unique.

USAGE:
  sinks := output.NewSinks(output.NewJSONWriter("results.jsonl"))
  errs := sinks.Write(rec)

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/output/json.go
  - internal/output/csv.go
  - internal/output/parquet.go

MAINTENANCE:
  - Register new formats in engine.openSinks.
*/

package output

import (
	"errors"

	"github.com/daryltucker/ollama-sweep/internal/model"
)

// RecordSink persists benchmark records.
type RecordSink interface {
	Name() string
	Path() string
	Write(model.BenchmarkRecord) error
	Close() error
}

// Sinks fans a record out to every configured sink. A sink that fails is
// disabled for the rest of the sweep; the others keep writing.
type Sinks struct {
	sinks    []RecordSink
	disabled map[string]bool
}

// NewSinks wraps the given sinks. Nil entries are ignored.
func NewSinks(sinks ...RecordSink) *Sinks {
	s := &Sinks{disabled: make(map[string]bool)}
	for _, sink := range sinks {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
	return s
}

// Write writes r to every active sink and returns the failures.
func (s *Sinks) Write(r model.BenchmarkRecord) []error {
	var errs []error
	for _, sink := range s.sinks {
		if s.disabled[sink.Name()] {
			continue
		}
		if err := sink.Write(r); err != nil {
			s.disable(sink, err)
			errs = append(errs, err)
		}
	}
	return errs
}

// Active returns the names of sinks still writing.
func (s *Sinks) Active() []string {
	var names []string
	for _, sink := range s.sinks {
		if !s.disabled[sink.Name()] {
			names = append(names, sink.Name())
		}
	}
	return names
}

// Close closes every sink that is still active.
func (s *Sinks) Close() error {
	var errs []error
	for _, sink := range s.sinks {
		if s.disabled[sink.Name()] {
			continue
		}
		if err := sink.Close(); err != nil {
			s.disable(sink, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Sinks) disable(sink RecordSink, err error) {
	s.disabled[sink.Name()] = true
	Logger.Error("Output sink disabled; results will no longer be written there",
		"sink", sink.Name(), "path", sink.Path(), "error", err)
}
