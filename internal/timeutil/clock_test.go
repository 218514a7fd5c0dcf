package timeutil

import (
	"testing"
	"time"
)

func TestRealClockNow(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	got := c.Now()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestRealClockTicker(t *testing.T) {
	c := RealClock{}
	ticker := c.NewTicker(time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire")
	}
}

func TestMockClockNowAndSet(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	if got := c.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	later := start.Add(time.Hour)
	c.Set(later)
	if got := c.Now(); !got.Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", got, later)
	}
}

func TestMockClockAdvanceFiresTicker(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	ticker := c.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	// Not yet due.
	c.Advance(50 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired before its interval elapsed")
	default:
	}

	c.Advance(50 * time.Millisecond)
	select {
	case now := <-ticker.C():
		want := time.Unix(0, 0).Add(100 * time.Millisecond)
		if !now.Equal(want) {
			t.Errorf("tick time = %v, want %v", now, want)
		}
	default:
		t.Fatal("ticker did not fire at its interval")
	}
}

func TestMockTickerStop(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	ticker := c.NewTicker(10 * time.Millisecond)
	ticker.Stop()

	c.Advance(time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockTickerDoesNotBlockWhenUnread(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	ticker := c.NewTicker(time.Millisecond)
	defer ticker.Stop()

	// Many intervals with nobody reading must not deadlock Advance.
	for i := 0; i < 10; i++ {
		c.Advance(time.Millisecond)
	}
	select {
	case <-ticker.C():
	default:
		t.Fatal("expected at least one buffered tick")
	}
}
