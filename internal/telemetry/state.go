// Package telemetry holds the live motion/position state for one collection
// session and the immutable frames built from it for publishing.
package telemetry

import "sync"

// Snapshot is a plain-value copy of every channel of the live state taken at
// one instant. Copying the whole struct under the lock is what keeps a motion
// field from one instant from being compared against a position field from
// another.
type Snapshot struct {
	AccX float64
	AccY float64
	AccZ float64

	GyroX float64
	GyroY float64
	GyroZ float64

	RotVecX float64
	RotVecY float64
	RotVecZ float64
	RotVecW float64

	Latitude  float64
	Longitude float64
	Speed     float64
	Altitude  float64
}

// LiveState is the single source of truth for what the device is doing right
// now. Each writer overwrites only the fields of its own channel; readers take
// whole-struct snapshots. All access goes through the one mutex so a snapshot
// can never observe a half-applied reading.
type LiveState struct {
	mu sync.Mutex
	s  Snapshot
}

// NewLiveState returns a LiveState with every channel zeroed except the
// rotation-vector w component, which starts at 1 (the identity quaternion)
// until a rotation reading arrives.
func NewLiveState() *LiveState {
	return &LiveState{s: Snapshot{RotVecW: 1}}
}

// Snapshot returns a consistent copy of the current state.
func (l *LiveState) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s
}

// SetAccel overwrites the accelerometer channel and returns the post-mutation
// snapshot.
func (l *LiveState) SetAccel(x, y, z float64) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.s.AccX, l.s.AccY, l.s.AccZ = x, y, z
	return l.s
}

// SetGyro overwrites the gyroscope channel and returns the post-mutation
// snapshot.
func (l *LiveState) SetGyro(x, y, z float64) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.s.GyroX, l.s.GyroY, l.s.GyroZ = x, y, z
	return l.s
}

// SetRotVec overwrites the rotation-vector channel and returns the
// post-mutation snapshot.
func (l *LiveState) SetRotVec(x, y, z, w float64) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.s.RotVecX, l.s.RotVecY, l.s.RotVecZ, l.s.RotVecW = x, y, z, w
	return l.s
}

// SetLocation overwrites the position channel and returns the post-mutation
// snapshot.
func (l *LiveState) SetLocation(lat, lon, speed, alt float64) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.s.Latitude, l.s.Longitude, l.s.Speed, l.s.Altitude = lat, lon, speed, alt
	return l.s
}
