package event

import (
	"context"
	"encoding/json"

	"github.com/agentcore/server/internal/store"
	"github.com/agentcore/server/pkg/types"
)

// Writer is the only component that appends events (spec §4.3). It
// serializes each append through the Store's per-session lock, persists
// the row (which assigns id and seq), and only then hands it to the Hub
// for live delivery — so anything a subscriber sees live is already
// replayable.
type Writer struct {
	store *store.Store
	hub   *Hub
	now   func() float64
}

// NewWriter constructs a Writer over a Store and the Hub it publishes to.
func NewWriter(st *store.Store, hub *Hub, now func() float64) *Writer {
	return &Writer{store: st, hub: hub, now: now}
}

// Draft is an unstamped event ready to be appended.
type Draft struct {
	SessionID string
	TurnID    *string
	StepID    *string
	Type      types.EventType
	Payload   any
}

// Write persists and publishes one event, returning the stamped row.
func (w *Writer) Write(ctx context.Context, d Draft) (*types.Event, error) {
	payload, err := json.Marshal(d.Payload)
	if err != nil {
		return nil, err
	}

	lock := w.store.LockSession(d.SessionID)
	lock.Lock()
	defer lock.Unlock()

	ev := &types.Event{
		SessionID: d.SessionID,
		TurnID:    d.TurnID,
		StepID:    d.StepID,
		Ts:        w.now(),
		Type:      d.Type,
		Payload:   payload,
	}
	stamped, err := w.store.AppendEvent(ctx, ev)
	if err != nil {
		return nil, err
	}

	w.hub.deliver(stamped)
	return stamped, nil
}
