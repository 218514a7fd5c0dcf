package broadcast

import (
	"testing"
	"time"

	"github.com/tripwire-data/telematics.report/internal/telemetry"
)

func TestSubscribeReceivesEmission(t *testing.T) {
	b := New()
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	want := telemetry.Snapshot{AccZ: 9.8, RotVecW: 1}
	b.EmitState(want)

	select {
	case got := <-ch:
		if got != want {
			t.Errorf("received %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emission")
	}
}

func TestSlowSubscriberSeesLatestValue(t *testing.T) {
	b := New()
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	// Emit several states without the subscriber reading any of them. The
	// emitter must never block, and the subscriber's next read must be the
	// newest value, not the oldest.
	for i := 1; i <= 50; i++ {
		b.EmitState(telemetry.Snapshot{AccX: float64(i)})
	}

	got := <-ch
	if got.AccX != 50 {
		t.Errorf("slow subscriber read AccX=%v, want 50 (latest value wins)", got.AccX)
	}
}

func TestLateSubscriberIsPrimed(t *testing.T) {
	b := New()
	b.EmitState(telemetry.Snapshot{GyroZ: 0.7})

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	select {
	case got := <-ch:
		if got.GyroZ != 0.7 {
			t.Errorf("primed value GyroZ=%v, want 0.7", got.GyroZ)
		}
	default:
		t.Error("late subscriber was not primed with the latest state")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	id, ch := b.Subscribe()
	b.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}
	// A second unsubscribe of the same ID is a no-op.
	b.Unsubscribe(id)
}

func TestStatusSubscription(t *testing.T) {
	b := New()
	id, ch := b.SubscribeStatus()
	defer b.UnsubscribeStatus(id)

	// Primed with the current (not running) value.
	if running := <-ch; running {
		t.Error("primed status = true, want false before any session")
	}

	b.EmitStatus(true)
	if running := <-ch; !running {
		t.Error("status = false after EmitStatus(true)")
	}
	if !b.Running() {
		t.Error("Running() = false after EmitStatus(true)")
	}
}

func TestEmitWithNoSubscribersDoesNotBlock(t *testing.T) {
	b := New()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.EmitState(telemetry.Snapshot{})
			b.EmitStatus(i%2 == 0)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("emission blocked with no subscribers")
	}
}
