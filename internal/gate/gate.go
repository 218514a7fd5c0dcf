// Package gate decides whether the current live state differs enough from the
// last transmitted snapshot to be worth sending. The decision is a pure
// function of the two snapshots so it can be tested exhaustively.
package gate

import (
	"math"

	"github.com/tripwire-data/telematics.report/internal/telemetry"
)

// Per-axis change thresholds. These are deliberately compile-time constants
// rather than runtime configuration so gating decisions stay deterministic in
// tests and across deployments.
const (
	AccelThreshold  = 0.5
	GyroThreshold   = 0.3
	RotVecThreshold = 0.05
)

// ShouldPublish reports whether current has moved far enough from last to
// warrant a transmit. The predicates are independent and OR'd together:
// exceeding any one axis threshold is sufficient. Position is never
// threshold-filtered; any nonzero latitude or longitude delta publishes,
// since any map movement is significant to the collector.
//
// A session's baseline snapshot is all-zero, so the first comparison after
// start publishes whenever anything at all has been read. That first-tick
// publish is a documented contract (it establishes the baseline frame), not
// an accident to be tuned away.
func ShouldPublish(current, last telemetry.Snapshot) bool {
	if exceeds(current.AccX, last.AccX, AccelThreshold) ||
		exceeds(current.AccY, last.AccY, AccelThreshold) ||
		exceeds(current.AccZ, last.AccZ, AccelThreshold) {
		return true
	}
	if exceeds(current.GyroX, last.GyroX, GyroThreshold) ||
		exceeds(current.GyroY, last.GyroY, GyroThreshold) ||
		exceeds(current.GyroZ, last.GyroZ, GyroThreshold) {
		return true
	}
	if exceeds(current.RotVecX, last.RotVecX, RotVecThreshold) ||
		exceeds(current.RotVecY, last.RotVecY, RotVecThreshold) ||
		exceeds(current.RotVecZ, last.RotVecZ, RotVecThreshold) {
		return true
	}
	if current.Latitude != last.Latitude || current.Longitude != last.Longitude {
		return true
	}
	return false
}

func exceeds(a, b, threshold float64) bool {
	return math.Abs(a-b) > threshold
}
