package model

import "fmt"

// ConfigurationError reports an invalid or empty sweep axis or setting.
// It is fatal and raised before any job runs.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error (%s): %s", e.Field, e.Reason)
}

// ConnectivityError reports an endpoint that stayed unreachable after retries.
type ConnectivityError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("Ollama endpoint %s unreachable after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// JobError wraps the failure of a single cycle/run/combination.
type JobError struct {
	Cycle int
	Run   int
	Key   string
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job failed (cycle %d, run %d, %s): %v", e.Cycle, e.Run, e.Key, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// PersistenceError reports a sink that could not write its output path.
type PersistenceError struct {
	Sink string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s sink cannot write %s: %v", e.Sink, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
