/*
PURPOSE:
  Background resource monitor armed for the duration of one job.
  Samples at a fixed interval between Start and Stop and summarizes
  the collected samples.

REQUIREMENTS:
  User-specified:
  - Start must not block; sampling runs concurrently with inference.
  - Stop waits a bounded time for the loop and returns a copy of the buffer.
  - Start while running discards the previous buffer (reset-on-restart).

  Implementation-discovered:
  - A stopped-but-slow loop may still finish one Sample after Stop
    returned; it appends to its own session, which nobody reads again.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine.Executor
  - Uses: monitor.Sampler, monitor.Summarize

ERROR HANDLING:
  - Panics inside one iteration are recovered and logged; the loop continues.
  - A join timeout is logged and Stop returns what was buffered.

IMPLEMENTATION RULES:
  - The sample buffer belongs to one session; only copies leave it.
  - Exactly one sampling goroutine per session.

USAGE:
  m := monitor.New(sampler, 500*time.Millisecond)
  m.Start(ctx)
  ...
  samples := m.Stop()
  summary := m.Summary()

SELF-HEALING INSTRUCTIONS:
  - If Stop keeps timing out, a Sampler source is hanging; check ExecTimeout.

RELATED FILES:
  - internal/monitor/sampler.go
  - internal/monitor/summary.go

MAINTENANCE:
  - None.
*/

package monitor

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/daryltucker/ollama-sweep/internal/model"
	"github.com/daryltucker/ollama-sweep/internal/output"
)

const (
	DefaultInterval    = 500 * time.Millisecond
	DefaultJoinTimeout = 2 * time.Second
)

// Monitor runs one sampling loop at a time.
type Monitor struct {
	Sampler     Sampler
	Interval    time.Duration
	JoinTimeout time.Duration

	mu       sync.Mutex
	session  *session
	last     []model.ResourceSample
	captured bool
}

type session struct {
	stop chan struct{}
	done chan struct{}

	mu  sync.Mutex
	buf []model.ResourceSample
}

func (s *session) snapshot() []model.ResourceSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.buf)
}

// New returns an idle monitor.
func New(sampler Sampler, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		Sampler:     sampler,
		Interval:    interval,
		JoinTimeout: DefaultJoinTimeout,
	}
}

// Start clears the buffer and spawns the sampling loop. If a loop is
// already running it is signalled to exit and its samples are discarded.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		output.Logger.Debug("resource monitor restarted; discarding previous buffer")
		close(m.session.stop)
	}

	s := &session{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	m.session = s
	m.last = nil
	m.captured = false

	go m.loop(ctx, s)
}

// running reports whether a sampling loop is active.
func (m *Monitor) running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// Stop signals the loop, waits up to JoinTimeout, and returns a copy of
// the samples collected since the most recent Start. Stop on an idle
// monitor returns nil.
func (m *Monitor) Stop() []model.ResourceSample {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()

	if s == nil {
		return nil
	}

	close(s.stop)
	timeout := m.JoinTimeout
	if timeout <= 0 {
		timeout = DefaultJoinTimeout
	}
	timer := time.NewTimer(timeout)
	select {
	case <-s.done:
		timer.Stop()
	case <-timer.C:
		output.Logger.Warn("resource monitor did not stop in time; using buffered samples", "timeout", timeout)
	}

	snap := s.snapshot()

	m.mu.Lock()
	m.last = snap
	m.captured = true
	m.mu.Unlock()

	return slices.Clone(snap)
}

// Summary summarizes the last stopped buffer, or the live buffer when the
// monitor has not been stopped since Start.
func (m *Monitor) Summary() model.ResourceSummary {
	m.mu.Lock()
	var samples []model.ResourceSample
	switch {
	case m.captured:
		samples = m.last
	case m.session != nil:
		samples = m.session.snapshot()
	}
	m.mu.Unlock()
	return Summarize(samples)
}

func (m *Monitor) loop(ctx context.Context, s *session) {
	defer close(s.done)

	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		m.sampleOnce(ctx, s)

		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) sampleOnce(ctx context.Context, s *session) {
	defer func() {
		if r := recover(); r != nil {
			output.Logger.Warn("resource sample failed", "error", r)
		}
	}()

	// Skip the read entirely when Stop already fired.
	select {
	case <-s.stop:
		return
	default:
	}

	sample := m.Sampler.Sample(ctx)

	s.mu.Lock()
	s.buf = append(s.buf, sample)
	s.mu.Unlock()
}
