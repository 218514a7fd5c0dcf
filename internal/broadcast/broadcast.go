// Package broadcast fans live state updates out to local observers (the
// presentation layer), independent of the network publish path. Every
// accepted sensor mutation is emitted at native sensor rate; a slow
// subscriber never applies backpressure to the producers.
package broadcast

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/tripwire-data/telematics.report/internal/telemetry"
)

// Broadcaster delivers state snapshots and running-status changes to any
// number of subscribers. Delivery is latest-value-wins: each subscriber
// channel holds one pending value, and a fresh emission replaces an unread
// one rather than blocking the emitter.
type Broadcaster struct {
	mu          sync.Mutex
	stateSubs   map[string]chan telemetry.Snapshot
	statusSubs  map[string]chan bool
	lastState   telemetry.Snapshot
	hasState    bool
	lastRunning bool
}

// New returns an empty Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		stateSubs:  make(map[string]chan telemetry.Snapshot),
		statusSubs: make(map[string]chan bool),
	}
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a state observer. The returned ID identifies the
// subscription for Unsubscribe. If a state has already been emitted the
// channel is primed with the latest value so new observers render
// immediately instead of waiting for the next sensor reading.
func (b *Broadcaster) Subscribe() (string, <-chan telemetry.Snapshot) {
	id := randomID()
	ch := make(chan telemetry.Snapshot, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hasState {
		ch <- b.lastState
	}
	b.stateSubs[id] = ch
	return id, ch
}

// Unsubscribe removes a state observer and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.stateSubs[id]; ok {
		close(ch)
		delete(b.stateSubs, id)
	}
}

// SubscribeStatus registers a running/not-running observer. The channel is
// primed with the current value.
func (b *Broadcaster) SubscribeStatus() (string, <-chan bool) {
	id := randomID()
	ch := make(chan bool, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	ch <- b.lastRunning
	b.statusSubs[id] = ch
	return id, ch
}

// UnsubscribeStatus removes a status observer and closes its channel.
func (b *Broadcaster) UnsubscribeStatus(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.statusSubs[id]; ok {
		close(ch)
		delete(b.statusSubs, id)
	}
}

// EmitState delivers a post-mutation snapshot to every state subscriber.
func (b *Broadcaster) EmitState(s telemetry.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastState = s
	b.hasState = true
	for _, ch := range b.stateSubs {
		sendLatest(ch, s)
	}
}

// EmitStatus delivers a running-state change to every status subscriber.
func (b *Broadcaster) EmitStatus(running bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastRunning = running
	for _, ch := range b.statusSubs {
		sendLatest(ch, running)
	}
}

// Running reports the last emitted running state.
func (b *Broadcaster) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRunning
}

// LastState returns the most recently emitted snapshot, if any.
func (b *Broadcaster) LastState() (telemetry.Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastState, b.hasState
}

// sendLatest replaces an unread pending value with v rather than blocking.
// The channels have capacity one, so draining at most one element always
// frees a slot; if another reader races us for it, dropping v is fine since
// the subscriber just consumed something newer than what it had.
func sendLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
