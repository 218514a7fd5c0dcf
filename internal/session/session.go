// Package session implements the collection lifecycle: Idle → Connecting →
// Collecting → Idle. A session owns one live state, one transport connection,
// its ingest sources and its publish scheduler; stop tears all of it down
// synchronously.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tripwire-data/telematics.report/internal/broadcast"
	"github.com/tripwire-data/telematics.report/internal/ingest"
	"github.com/tripwire-data/telematics.report/internal/monitoring"
	"github.com/tripwire-data/telematics.report/internal/scheduler"
	"github.com/tripwire-data/telematics.report/internal/telemetry"
	"github.com/tripwire-data/telematics.report/internal/timeutil"
	"github.com/tripwire-data/telematics.report/internal/transport"
)

// State is the lifecycle state of the service. There is no explicit
// "stopping" state: teardown completes before Stop returns.
type State int

const (
	Idle State = iota
	Connecting
	Collecting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Collecting:
		return "collecting"
	}
	return "unknown"
}

// ErrAlreadyStarted is returned by Start when a session is connecting or
// collecting.
var ErrAlreadyStarted = errors.New("session already started")

// Status is a point-in-time report of the service for observers.
type Status struct {
	State             string `json:"state"`
	Running           bool   `json:"running"`
	SessionID         string `json:"sessionId,omitempty"`
	Label             int    `json:"label"`
	FramesDropped     int64  `json:"framesDropped"`
	FramesShed        int64  `json:"framesShed"`
	ReadingsAccepted  int64  `json:"readingsAccepted"`
	ReadingsDiscarded int64  `json:"readingsDiscarded"`
	// SecondsSinceReading is the device-liveness signal: the age of the
	// most recently accepted reading, or -1 when none has arrived yet.
	SecondsSinceReading float64 `json:"secondsSinceReading"`
}

// Service runs at most one collection session at a time. The transport and
// broadcaster outlive individual sessions; live state, serializer, scheduler
// and sources are created per session and torn down on stop.
type Service struct {
	// Interval overrides the scheduler tick period; zero uses the default.
	Interval time.Duration
	// Clock overrides timing for tests; nil uses the real clock.
	Clock timeutil.Clock

	tr         transport.Transport
	bus        *broadcast.Broadcaster
	newSources func() []ingest.Source
	extraSinks []scheduler.Sink

	label atomic.Int64

	mu         sync.Mutex
	state      State
	sessionID  string
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	serializer *ingest.Serializer
	sched      *scheduler.Scheduler
}

// NewService wires a service from its collaborators. extraSinks (such as a
// local frame archive) receive every frame the scheduler submits, alongside
// the transport.
func NewService(tr transport.Transport, bus *broadcast.Broadcaster, newSources func() []ingest.Source, extraSinks ...scheduler.Sink) *Service {
	return &Service{
		tr:         tr,
		bus:        bus,
		newSources: newSources,
		extraSinks: extraSinks,
	}
}

// multiSink fans a frame out to the transport and any extra sinks.
type multiSink []scheduler.Sink

func (m multiSink) Publish(f telemetry.Frame) {
	for _, s := range m {
		s.Publish(f)
	}
}

// Start connects the transport and, once it is ready, brings up the ingest
// serializer, sources and scheduler. Nothing collects before the transport is
// ready, which keeps "collecting" and "connected" coupled by construction.
// On connect failure the service returns to Idle and the failure is the
// caller's to retry.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = Connecting
	connectCtx, connectCancel := context.WithCancel(ctx)
	s.cancel = connectCancel
	s.mu.Unlock()

	err := s.tr.Connect(connectCtx)
	if err != nil {
		connectCancel()
		s.mu.Lock()
		s.state = Idle
		s.cancel = nil
		s.mu.Unlock()
		s.bus.EmitStatus(false)
		return fmt.Errorf("failed to start session: %w", err)
	}

	s.mu.Lock()
	if connectCtx.Err() != nil {
		// Stop raced the connect handshake; treat as a canceled start.
		err := connectCtx.Err()
		s.state = Idle
		s.cancel = nil
		s.mu.Unlock()
		s.tr.Disconnect()
		s.bus.EmitStatus(false)
		return fmt.Errorf("failed to start session: %w", err)
	}
	connectCancel()
	s.sessionID = uuid.NewString()
	state := telemetry.NewLiveState()
	s.serializer = ingest.NewSerializer(state, s.bus)

	sinks := append(multiSink{s.tr}, s.extraSinks...)
	s.sched = scheduler.New(state, sinks, s.sessionID, func() int {
		return int(s.label.Load())
	})
	if s.Interval > 0 {
		s.sched.Interval = s.Interval
	}
	if s.Clock != nil {
		s.sched.Clock = s.Clock
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	serializer := s.serializer
	sched := s.sched
	sources := s.newSources()

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		serializer.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		sched.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		ingest.RunSources(runCtx, serializer, sources)
	}()

	s.state = Collecting
	id := s.sessionID
	s.mu.Unlock()

	monitoring.Logf("session %s collecting (%d sources)", id, len(sources))
	s.bus.EmitStatus(true)
	return nil
}

// Stop ends the current session. When it returns, no further ingestor write
// is acted upon and no further frame is submitted to the transport; frames
// already handed to the broker may still complete. Stop in Idle is a no-op,
// and stopping twice is safe.
func (s *Service) Stop() {
	s.mu.Lock()
	switch s.state {
	case Idle:
		s.mu.Unlock()
		return
	case Connecting:
		// Cancel the in-flight connect; Start's failure path finishes the
		// transition back to Idle.
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.cancel = nil
	id := s.sessionID
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.tr.Disconnect()

	s.mu.Lock()
	s.state = Idle
	s.serializer = nil
	s.sched = nil
	s.mu.Unlock()

	monitoring.Logf("session %s stopped", id)
	s.bus.EmitStatus(false)
}

// ChangeLabel updates the mutable activity label. Accepted in any state; it
// takes effect on the next frame built.
func (s *Service) ChangeLabel(label int) {
	s.label.Store(int64(label))
}

// Label returns the current activity label.
func (s *Service) Label() int {
	return int(s.label.Load())
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether a session is collecting.
func (s *Service) Running() bool {
	return s.State() == Collecting
}

// Status assembles the current observable state of the service.
func (s *Service) Status() Status {
	s.mu.Lock()
	st := Status{
		State:     s.state.String(),
		Running:   s.state == Collecting,
		SessionID: s.sessionID,
		Label:     int(s.label.Load()),
	}
	serializer := s.serializer
	sched := s.sched
	s.mu.Unlock()

	st.FramesDropped = s.tr.Dropped()
	st.SecondsSinceReading = -1
	if serializer != nil {
		st.ReadingsAccepted = serializer.Accepted()
		st.ReadingsDiscarded = serializer.Discarded()
		if milli := serializer.LastAcceptedMilli(); milli > 0 {
			st.SecondsSinceReading = time.Since(time.UnixMilli(milli)).Seconds()
		}
	}
	if sched != nil {
		st.FramesShed = sched.Shed()
	}
	return st
}
