package scheduler

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/tripwire-data/telematics.report/internal/telemetry"
	"github.com/tripwire-data/telematics.report/internal/timeutil"
	"github.com/tripwire-data/telematics.report/internal/transport"
)

// harness runs a scheduler against a mock clock and transport. Tests drive
// time with tick() and observe published frames on the mock.
type harness struct {
	t     *testing.T
	clk   *timeutil.MockClock
	state *telemetry.LiveState
	tr    *transport.Mock
	sched *Scheduler
	stop  func()
}

func newHarness(t *testing.T, label func() int) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		clk:   timeutil.NewMockClock(time.UnixMilli(1756500000000)),
		state: telemetry.NewLiveState(),
		tr:    &transport.Mock{},
	}
	if err := h.tr.Connect(context.Background()); err != nil {
		t.Fatalf("mock connect: %v", err)
	}
	if label == nil {
		label = func() int { return 0 }
	}
	h.sched = New(h.state, h.tr, "session-1", label)
	h.sched.Clock = h.clk

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.sched.Run(ctx)
	}()
	h.stop = func() {
		cancel()
		<-done
	}
	return h
}

// advance moves the mock clock one interval and gives the run loop time to
// process the tick.
func (h *harness) advance() {
	h.clk.Advance(h.sched.Interval)
	time.Sleep(5 * time.Millisecond)
}

// advanceUntil ticks until the frame count reaches want or the test times
// out. Useful right after start when the run loop may not yet have created
// its ticker.
func (h *harness) advanceUntil(want int) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(h.tr.Frames()) >= want {
			return
		}
		h.advance()
	}
	h.t.Fatalf("never reached %d published frames (have %d)", want, len(h.tr.Frames()))
}

func TestFirstTickPublishesBaseline(t *testing.T) {
	h := newHarness(t, nil)
	defer h.stop()

	h.advanceUntil(1)

	frames := h.tr.Frames()
	f := frames[0]
	if f.AccX != 0 || f.AccY != 0 || f.AccZ != 0 {
		t.Errorf("baseline frame motion = (%v,%v,%v), want zeros", f.AccX, f.AccY, f.AccZ)
	}
	if f.RotVecW != 1 {
		t.Errorf("baseline RotVecW = %v, want 1 before any rotation reading", f.RotVecW)
	}
	if f.SessionID != "session-1" {
		t.Errorf("SessionID = %q", f.SessionID)
	}

	if _, ok := h.sched.LastPublished(); !ok {
		t.Error("LastPublished not set after baseline")
	}
}

func TestSubThresholdChangesDoNotPublish(t *testing.T) {
	h := newHarness(t, nil)
	defer h.stop()
	h.advanceUntil(1)

	// Two readings whose per-axis deltas stay within every threshold.
	h.state.SetAccel(0, 0, 0.4)
	h.advance()
	h.state.SetAccel(0.3, 0.2, 0.3)
	h.advance()
	h.advance()

	if got := len(h.tr.Frames()); got != 1 {
		t.Errorf("published %d frames, want only the baseline", got)
	}
}

func TestSingleAxisCrossingPublishesExactlyOneFrame(t *testing.T) {
	h := newHarness(t, nil)
	defer h.stop()
	h.advanceUntil(1)

	h.state.SetAccel(0, 0, 10.4) // Δz vs baseline 0 is > 0.5
	h.advanceUntil(2)
	h.advance()
	h.advance()

	frames := h.tr.Frames()
	if len(frames) != 2 {
		t.Fatalf("published %d frames, want baseline + one", len(frames))
	}
	f := frames[1]
	if f.AccZ != 10.4 {
		t.Errorf("AccZ = %v, want 10.4", f.AccZ)
	}
	if want := math.Sqrt(10.4 * 10.4); math.Abs(f.AccMag-want) > 1e-6 {
		t.Errorf("AccMag = %v, want %v", f.AccMag, want)
	}

	last, _ := h.sched.LastPublished()
	if last.AccZ != 10.4 {
		t.Errorf("LastPublished.AccZ = %v, want the published snapshot", last.AccZ)
	}
}

func TestAnyLocationChangePublishes(t *testing.T) {
	h := newHarness(t, nil)
	defer h.stop()
	h.advanceUntil(1)

	h.state.SetLocation(3.139, 101.687, 0, 0)
	h.advanceUntil(2)

	f := h.tr.Frames()[1]
	if f.Latitude != 3.139 || f.Longitude != 101.687 {
		t.Errorf("frame position = (%v,%v)", f.Latitude, f.Longitude)
	}
}

func TestDisconnectedTransportDropsButKeepsRunning(t *testing.T) {
	h := newHarness(t, nil)
	defer h.stop()
	h.advanceUntil(1)

	h.tr.SetConnected(false)
	h.state.SetGyro(0, 0, 1) // over threshold
	deadline := time.Now().Add(2 * time.Second)
	for h.tr.Dropped() == 0 && time.Now().Before(deadline) {
		h.advance()
	}
	if h.tr.Dropped() == 0 {
		t.Fatal("no drop recorded while disconnected")
	}
	if got := len(h.tr.Frames()); got != 1 {
		t.Errorf("transmitted %d frames, want 1 (outage drops, no queue)", got)
	}

	// Link back up: a new change publishes again. The scheduler never
	// stopped ticking through the outage.
	h.tr.SetConnected(true)
	h.state.SetGyro(0, 0, 2)
	h.advanceUntil(2)
}

func TestLabelChangeTakesEffectNextFrame(t *testing.T) {
	label := 1
	h := newHarness(t, func() int { return label })
	defer h.stop()
	h.advanceUntil(1)
	if got := h.tr.Frames()[0].Label; got != 1 {
		t.Fatalf("baseline label = %d, want 1", got)
	}

	label = 4
	h.state.SetAccel(0, 0, 9.8)
	h.advanceUntil(2)
	if got := h.tr.Frames()[1].Label; got != 4 {
		t.Errorf("label = %d, want 4 on the next frame", got)
	}
}

func TestNoFramesAfterStop(t *testing.T) {
	h := newHarness(t, nil)
	h.advanceUntil(1)
	h.stop()

	h.state.SetAccel(50, 50, 50)
	h.clk.Advance(h.sched.Interval)
	h.clk.Advance(h.sched.Interval)
	time.Sleep(20 * time.Millisecond)

	if got := len(h.tr.Frames()); got != 1 {
		t.Errorf("published %d frames, want none after stop", got)
	}
}

func TestFrameTimestampComesFromClock(t *testing.T) {
	h := newHarness(t, nil)
	defer h.stop()
	h.advanceUntil(1)

	f := h.tr.Frames()[0]
	if f.Timestamp <= 1756500000000 {
		t.Errorf("Timestamp = %d, want advanced past the mock clock start", f.Timestamp)
	}
}
