// Package event implements the Event Hub and Event Writer (spec §4.2,
// §4.3): the process-wide fan-out of persisted events to live
// subscribers, and the single serialized path by which events are
// assigned an (id, seq) and become visible.
package event

import (
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/agentcore/server/pkg/types"
)

// Envelope is what the Bus fans out: a persisted event, or one of the
// pseudo-events (connected, heartbeat) that never get an id/seq.
type Envelope struct {
	Kind      string // "event" | "connected" | "heartbeat"
	Event     *types.Event
	ServerSec float64 // populated for "connected"
	LatestID  int64   // populated for "connected"
}

// subscriberEntry wraps a subscriber with an id so it can be removed.
type subscriberEntry struct {
	id uint64
	fn func(Envelope)
}

// Bus is the low-level in-process pub/sub layer. It preserves the
// teacher's direct-dispatch design — subscribers are plain Go closures —
// while running watermill's gochannel underneath so the infrastructure
// can grow middleware or a distributed backend later without changing
// this API.
type Bus struct {
	mu     sync.RWMutex
	pubsub *gochannel.GoChannel

	bySession map[string][]subscriberEntry
	global    []subscriberEntry

	nextID uint64
	closed bool
}

// NewBus constructs a Bus with its own watermill gochannel instance.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256, Persistent: false},
			watermill.NopLogger{},
		),
		bySession: make(map[string][]subscriberEntry),
	}
}

func (b *Bus) newID() uint64 { return atomic.AddUint64(&b.nextID, 1) }

// Subscribe registers fn for envelopes belonging to one session.
func (b *Bus) Subscribe(sessionID string, fn func(Envelope)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := b.newID()
	b.bySession[sessionID] = append(b.bySession[sessionID], subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribe(sessionID, id) }
}

// SubscribeAll registers fn for every envelope, regardless of session.
func (b *Bus) SubscribeAll(fn func(Envelope)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribeGlobal(id) }
}

func (b *Bus) unsubscribe(sessionID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.bySession[sessionID]
	for i, e := range subs {
		if e.id == id {
			b.bySession[sessionID] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.global {
		if e.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			return
		}
	}
}

// Publish delivers env synchronously to every matching subscriber. The
// Hub is the only caller; subscribers (per-SSE-connection writers) must
// not block, since a slow one would otherwise stall this call for every
// other subscriber of the same session.
func (b *Bus) Publish(sessionID string, env Envelope) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]func(Envelope), 0, len(b.bySession[sessionID])+len(b.global))
	for _, e := range b.bySession[sessionID] {
		subs = append(subs, e.fn)
	}
	for _, e := range b.global {
		subs = append(subs, e.fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(env)
	}
}

// Close shuts the bus down; further Publish calls are no-ops.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.bySession = make(map[string][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()
	return b.pubsub.Close()
}

// PubSub exposes the underlying watermill GoChannel for advanced use
// (tests, future distributed backend).
func (b *Bus) PubSub() *gochannel.GoChannel { return b.pubsub }
