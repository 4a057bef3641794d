package event

import (
	"context"
	"sync"
	"time"

	"github.com/agentcore/server/internal/store"
	"github.com/agentcore/server/pkg/types"
)

// DefaultQueueSize bounds a subscriber's live-delivery channel (spec §4.2,
// §5: "a slow subscriber cannot block other subscribers").
const DefaultQueueSize = 256

// DefaultHeartbeatInterval is within the spec's 10-20s window.
const DefaultHeartbeatInterval = 15 * time.Second

// Hub fans out persisted events to live subscribers and replays missed
// history on (re)connect (spec §4.2).
type Hub struct {
	store             *store.Store
	bus               *Bus
	queueSize         int
	heartbeatInterval time.Duration
	now               func() float64
}

// NewHub constructs a Hub backed by st for replay and bus for live fan-out.
func NewHub(st *store.Store, bus *Bus, now func() float64) *Hub {
	return &Hub{
		store:             st,
		bus:               bus,
		queueSize:         DefaultQueueSize,
		heartbeatInterval: DefaultHeartbeatInterval,
		now:               now,
	}
}

// Subscription is a live handle a connection holds. C delivers envelopes
// in id order; Stale closes if the subscriber fell behind and was
// disconnected (the client should reconnect with Last-Event-ID).
type Subscription struct {
	C     <-chan Envelope
	Stale <-chan struct{}
	Close func()
}

// Subscribe emits a connected envelope, replays every event with
// id > sinceID for sessionID, then switches to live delivery. When ctx is
// done or Close is called, live delivery and heartbeats stop but C is not
// closed; C is closed (together with Stale) only when the replay itself
// overflows the subscriber's queue.
func (h *Hub) Subscribe(ctx context.Context, sessionID string, sinceID int64) (*Subscription, error) {
	latestID, err := h.store.LatestEventID(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Envelope, h.queueSize)
	stale := make(chan struct{})

	send := func(env Envelope) bool {
		select {
		case out <- env:
			return true
		default:
			return false
		}
	}

	send(Envelope{Kind: "connected", ServerSec: h.now(), LatestID: latestID})

	backlog, err := h.store.EventsSince(ctx, sessionID, sinceID)
	if err != nil {
		close(out)
		return nil, err
	}
	for _, ev := range backlog {
		if !send(Envelope{Kind: "event", Event: ev}) {
			// Subscriber's queue overflowed before it even finished
			// replay; treat as stale immediately.
			close(stale)
			close(out)
			return &Subscription{C: out, Stale: stale, Close: func() {}}, nil
		}
	}

	var unsubscribe func()
	markedStale := false
	unsubscribe = h.bus.Subscribe(sessionID, func(env Envelope) {
		if markedStale {
			return
		}
		// IDs are strictly monotonic, so any event the Bus delivers from
		// here on necessarily has id > latestID and was not part of the
		// replay above.
		if !send(env) {
			markedStale = true
			close(stale)
		}
	})

	heartbeat := time.NewTicker(h.heartbeatInterval)
	done := make(chan struct{})
	go func() {
		defer heartbeat.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-heartbeat.C:
				if markedStale {
					return
				}
				send(Envelope{Kind: "heartbeat"})
			}
		}
	}()

	var once sync.Once
	closeOnce := func() {
		once.Do(func() {
			unsubscribe()
			close(done)
		})
	}

	go func() {
		<-ctx.Done()
		closeOnce()
	}()

	return &Subscription{C: out, Stale: stale, Close: closeOnce}, nil
}

// deliver publishes a freshly-stamped event to the Bus. Only Writer calls
// this.
func (h *Hub) deliver(ev *types.Event) {
	h.bus.Publish(ev.SessionID, Envelope{Kind: "event", Event: ev})
}
