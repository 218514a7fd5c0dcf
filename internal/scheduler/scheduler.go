// Package scheduler drives the network publish path: a fixed-rate ticker
// that snapshots the live state, asks the gate whether the snapshot is worth
// sending, and submits at most one frame per tick without ever letting
// publish latency disturb the tick cadence.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/tripwire-data/telematics.report/internal/gate"
	"github.com/tripwire-data/telematics.report/internal/monitoring"
	"github.com/tripwire-data/telematics.report/internal/telemetry"
	"github.com/tripwire-data/telematics.report/internal/timeutil"
	"github.com/tripwire-data/telematics.report/internal/transport"
)

// DefaultInterval is the publish tick period: 10 Hz regardless of sensor
// rates or network conditions.
const DefaultInterval = 100 * time.Millisecond

// submitDepth bounds the frames awaiting asynchronous publish. A slow
// transport sheds frames here rather than stretching ticks or growing an
// unbounded queue.
const submitDepth = 16

// Sink receives frames that passed the gate. transport implementations
// satisfy it; the session may wrap several sinks into one.
type Sink interface {
	Publish(f telemetry.Frame)
}

// Scheduler owns the gate state (the last published snapshot) for one
// session. Interval and Clock may be overridden before Run; zero values get
// the production defaults.
type Scheduler struct {
	Interval time.Duration
	Clock    timeutil.Clock

	state     *telemetry.LiveState
	sink      Sink
	sessionID string
	label     func() int

	shed transport.DropCounter

	mu        sync.Mutex
	last      telemetry.Snapshot
	baselined bool
}

// New creates a scheduler for one session. label is read at frame-build time
// so label changes take effect on the next frame.
func New(state *telemetry.LiveState, sink Sink, sessionID string, label func() int) *Scheduler {
	return &Scheduler{
		Interval:  DefaultInterval,
		Clock:     timeutil.RealClock{},
		state:     state,
		sink:      sink,
		sessionID: sessionID,
		label:     label,
	}
}

// Run ticks until the context ends. After Run returns no further frame is
// submitted to the sink.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clock := s.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	// Frames are handed to the transport from a separate goroutine so a
	// publish that blocks cannot delay the next tick.
	frames := make(chan telemetry.Frame, submitDepth)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case f := <-frames:
				s.sink.Publish(f)
			}
		}
	}()

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			s.tick(frames, clock.Now())
		}
	}
}

// tick takes one consistent snapshot, consults the gate, and submits at most
// one frame. The first tick of a session always publishes: the baseline
// starts zeroed, and shipping the initial frame unconditionally is the
// documented contract that gives the collector a starting point.
func (s *Scheduler) tick(frames chan<- telemetry.Frame, now time.Time) {
	snap := s.state.Snapshot()

	s.mu.Lock()
	if s.baselined && !gate.ShouldPublish(snap, s.last) {
		s.mu.Unlock()
		return
	}
	s.last = snap
	s.baselined = true
	s.mu.Unlock()

	f := telemetry.BuildFrame(snap, s.sessionID, s.label(), now)
	select {
	case frames <- f:
	default:
		// Submission buffer full: the transport is badly behind. Shed this
		// frame; the next gate pass will carry fresher data anyway.
		s.shed.Add()
		monitoring.Logf("scheduler: submit buffer full, frame shed (total %d)", s.shed.Count())
	}
}

// LastPublished returns the snapshot behind the most recent gate pass, and
// whether any frame has been published yet this session.
func (s *Scheduler) LastPublished() (telemetry.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.baselined
}

// Shed returns the number of frames dropped because the submission buffer
// was full.
func (s *Scheduler) Shed() int64 { return s.shed.Count() }
