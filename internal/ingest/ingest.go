// Package ingest moves raw sensor readings from their hardware delivery
// contexts into the live state. Producers push onto a bounded channel and a
// single serializer goroutine performs every mutation, so writes from
// independent channels are ordered without locking scattered across callback
// sites.
package ingest

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/tripwire-data/telematics.report/internal/broadcast"
	"github.com/tripwire-data/telematics.report/internal/monitoring"
	"github.com/tripwire-data/telematics.report/internal/telemetry"
)

// Channel identifies the hardware channel a reading belongs to.
type Channel int

const (
	Accelerometer Channel = iota
	Gyroscope
	RotationVector
	Location
)

func (c Channel) String() string {
	switch c {
	case Accelerometer:
		return "accelerometer"
	case Gyroscope:
		return "gyroscope"
	case RotationVector:
		return "rotation-vector"
	case Location:
		return "location"
	}
	return "unknown"
}

// components is the exact value count each channel delivers. Anything else is
// a malformed reading and is discarded before it can touch the state.
func (c Channel) components() int {
	switch c {
	case Accelerometer, Gyroscope:
		return 3
	case RotationVector:
		return 4 // x, y, z, w
	case Location:
		return 4 // lat, lon, speed, altitude
	}
	return -1
}

// Reading is one raw delivery from a hardware source.
type Reading struct {
	Channel Channel
	Values  []float64
}

// Serializer owns all writes to a LiveState. Sources call Offer from their
// own goroutines; a single Run loop validates and applies readings in arrival
// order and emits the post-mutation snapshot to the broadcaster.
type Serializer struct {
	state    *telemetry.LiveState
	bus      *broadcast.Broadcaster
	readings chan Reading

	accepted  atomic.Int64
	discarded atomic.Int64
	lastMilli atomic.Int64
}

// queueDepth bounds how far producers can run ahead of the serializer. At
// native sensor rates (a few hundred Hz across all channels) the apply loop
// drains far faster than this fills; the bound exists so a stalled serializer
// sheds readings instead of blocking hardware callbacks.
const queueDepth = 256

// NewSerializer creates a serializer writing into state and emitting to bus.
func NewSerializer(state *telemetry.LiveState, bus *broadcast.Broadcaster) *Serializer {
	return &Serializer{
		state:    state,
		bus:      bus,
		readings: make(chan Reading, queueDepth),
	}
}

// Offer queues a reading for application. It never blocks: if the queue is
// full the reading is dropped and counted, since stalling a sensor delivery
// context is worse than losing one sample of a continuous stream.
func (s *Serializer) Offer(r Reading) {
	select {
	case s.readings <- r:
	default:
		s.discarded.Add(1)
	}
}

// Run applies queued readings until the context ends. After Run returns no
// further reading is acted upon, which is what makes session stop total
// rather than best-effort.
func (s *Serializer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-s.readings:
			s.apply(r)
		}
	}
}

func (s *Serializer) apply(r Reading) {
	if len(r.Values) != r.Channel.components() {
		// Malformed or partial reading: discard without touching the state.
		s.discarded.Add(1)
		return
	}
	for _, v := range r.Values {
		// NaN or infinity would poison the state: NaN compares unequal to
		// itself, so one bad latitude defeats the change gate on every tick.
		if math.IsNaN(v) || math.IsInf(v, 0) {
			s.discarded.Add(1)
			return
		}
	}

	var snap telemetry.Snapshot
	switch r.Channel {
	case Accelerometer:
		snap = s.state.SetAccel(r.Values[0], r.Values[1], r.Values[2])
	case Gyroscope:
		snap = s.state.SetGyro(r.Values[0], r.Values[1], r.Values[2])
	case RotationVector:
		snap = s.state.SetRotVec(r.Values[0], r.Values[1], r.Values[2], r.Values[3])
	case Location:
		snap = s.state.SetLocation(r.Values[0], r.Values[1], r.Values[2], r.Values[3])
	default:
		s.discarded.Add(1)
		return
	}

	s.accepted.Add(1)
	s.lastMilli.Store(time.Now().UnixMilli())
	s.bus.EmitState(snap)
}

// Accepted returns the number of readings applied to the state.
func (s *Serializer) Accepted() int64 { return s.accepted.Load() }

// Discarded returns the number of readings dropped as malformed or shed
// under backpressure.
func (s *Serializer) Discarded() int64 { return s.discarded.Load() }

// LastAcceptedMilli returns the device-clock millisecond timestamp of the
// most recently applied reading, or zero if none has been applied.
func (s *Serializer) LastAcceptedMilli() int64 { return s.lastMilli.Load() }

// A Source produces readings for one or more hardware channels and offers
// them to the serializer until the context ends.
type Source interface {
	Name() string
	Run(ctx context.Context, sink *Serializer) error
}

// RunSources runs each source in its own goroutine and blocks until all have
// stopped. Source errors are logged, not propagated: loss of one hardware
// source just means that channel stops updating.
func RunSources(ctx context.Context, sink *Serializer, sources []Source) {
	done := make(chan struct{}, len(sources))
	for _, src := range sources {
		go func(src Source) {
			defer func() { done <- struct{}{} }()
			if err := src.Run(ctx, sink); err != nil && err != context.Canceled {
				monitoring.Logf("ingest: source %s stopped: %v", src.Name(), err)
			}
		}(src)
	}
	for range sources {
		<-done
	}
}
