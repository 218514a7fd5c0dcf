package transport

import (
	"context"
	"sync"

	"github.com/tripwire-data/telematics.report/internal/telemetry"
)

// Mock is an in-memory Transport for tests: it records published frames and
// can be driven through connect failures and mid-session outages.
type Mock struct {
	// ConnectErr, when set, makes Connect fail with this error.
	ConnectErr error

	drops DropCounter

	mu        sync.Mutex
	connected bool
	frames    []telemetry.Frame
	connects  int
}

// Connect succeeds unless ConnectErr is set. Repeat calls while connected
// are no-ops, matching the production contract.
func (m *Mock) Connect(ctx context.Context) error {
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		return nil
	}
	m.connected = true
	m.connects++
	return nil
}

func (m *Mock) Publish(f telemetry.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		m.drops.Add()
		return
	}
	m.frames = append(m.frames, f)
}

func (m *Mock) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *Mock) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Mock) Dropped() int64 { return m.drops.Count() }

// SetConnected force-toggles the link, simulating a transient outage.
func (m *Mock) SetConnected(up bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = up
}

// Frames returns a copy of every frame published while connected.
func (m *Mock) Frames() []telemetry.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]telemetry.Frame, len(m.frames))
	copy(out, m.frames)
	return out
}

// Connects returns how many distinct successful connects occurred.
func (m *Mock) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}
