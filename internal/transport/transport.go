// Package transport owns the managed connection to the remote collector and
// the best-effort publish path. There is deliberately no local queue or retry
// buffer: a frame published while the link is down is dropped and counted, a
// latency/simplicity tradeoff the pipeline is built around.
package transport

import (
	"context"
	"sync/atomic"

	"github.com/tripwire-data/telematics.report/internal/telemetry"
)

// Transport is a managed connection to one broker endpoint.
type Transport interface {
	// Connect establishes the connection, returning nil exactly once it is
	// ready or an error exactly once it has failed. Calling Connect while
	// already connected is a no-op that returns nil immediately. The caller
	// owns any retry policy; after an initial success the implementation may
	// reconnect on its own after transient losses.
	Connect(ctx context.Context) error

	// Publish submits a frame for at-least-once delivery without waiting for
	// the broker acknowledgment. If the connection is down the frame is
	// dropped and counted.
	Publish(f telemetry.Frame)

	// Disconnect releases the connection. Idempotent.
	Disconnect()

	// Connected reports whether the link is currently usable.
	Connected() bool

	// Dropped returns the number of frames discarded because the link was
	// down or the payload could not be built.
	Dropped() int64
}

// DropCounter tracks frames that never made it onto the wire. It is shared
// between the transport and anything that reports on delivery health.
type DropCounter struct {
	n atomic.Int64
}

// Add records one dropped frame.
func (c *DropCounter) Add() { c.n.Add(1) }

// Count returns the number of recorded drops.
func (c *DropCounter) Count() int64 { return c.n.Load() }
