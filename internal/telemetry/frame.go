package telemetry

import (
	"math"
	"time"
)

// Frame is one fully populated telemetry record built from a snapshot. The
// JSON field names match the collector's dataset schema. A Frame is never
// mutated after construction: it is either transmitted or dropped.
type Frame struct {
	Timestamp int64  `json:"timestamp"` // device clock, milliseconds
	SessionID string `json:"sessionId"`
	Label     int    `json:"label"`

	AccX   float64 `json:"accX"`
	AccY   float64 `json:"accY"`
	AccZ   float64 `json:"accZ"`
	AccMag float64 `json:"accMag"`

	GyroX   float64 `json:"gyroX"`
	GyroY   float64 `json:"gyroY"`
	GyroZ   float64 `json:"gyroZ"`
	GyroMag float64 `json:"gyroMag"`

	RotVecX float64 `json:"rotVecX"`
	RotVecY float64 `json:"rotVecY"`
	RotVecZ float64 `json:"rotVecZ"`
	RotVecW float64 `json:"rotVecW"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Altitude  float64 `json:"altitude"`
}

// BuildFrame constructs a Frame from a snapshot. The acceleration and
// gyroscope magnitudes are computed here, from the raw components of this
// snapshot, and are never stored on the live state itself so they cannot go
// stale.
func BuildFrame(s Snapshot, sessionID string, label int, now time.Time) Frame {
	return Frame{
		Timestamp: now.UnixMilli(),
		SessionID: sessionID,
		Label:     label,

		AccX:   s.AccX,
		AccY:   s.AccY,
		AccZ:   s.AccZ,
		AccMag: magnitude(s.AccX, s.AccY, s.AccZ),

		GyroX:   s.GyroX,
		GyroY:   s.GyroY,
		GyroZ:   s.GyroZ,
		GyroMag: magnitude(s.GyroX, s.GyroY, s.GyroZ),

		RotVecX: s.RotVecX,
		RotVecY: s.RotVecY,
		RotVecZ: s.RotVecZ,
		RotVecW: s.RotVecW,

		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Speed:     s.Speed,
		Altitude:  s.Altitude,
	}
}

// magnitude returns the Euclidean norm of a three-component reading.
func magnitude(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}
