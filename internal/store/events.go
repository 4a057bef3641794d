package store

import (
	"context"
	"database/sql"

	"github.com/agentcore/server/pkg/types"
)

// AppendEvent allocates the next per-session seq, inserts the row (whose
// id becomes the global monotonic id via AUTOINCREMENT), and returns the
// stamped event. Callers (the Event Writer only) must hold
// Store.LockSession(event.SessionID) for the duration of this call —
// that lock is what makes "seq = max(seq)+1" race-free across the
// process, satisfying spec §3 invariant 1 and §4.3's algorithm.
func (s *Store) AppendEvent(ctx context.Context, ev *types.Event) (*types.Event, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var maxSeq sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			`SELECT MAX(seq) FROM events WHERE session_id = ?`, ev.SessionID).Scan(&maxSeq); err != nil {
			return err
		}
		ev.Seq = maxSeq.Int64 + 1

		res, err := tx.ExecContext(ctx, `
			INSERT INTO events (seq, session_id, turn_id, step_id, ts, type, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ev.Seq, ev.SessionID, ev.TurnID, ev.StepID, ev.Ts, ev.Type, string(ev.Payload))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		ev.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// EventsSince returns every event for a session with id > sinceID, in id
// order — the exact semantics the Event Hub's replay and the
// `/sessions/{id}/events?since=` route both need (spec §4.2, §6).
func (s *Store) EventsSince(ctx context.Context, sessionID string, sinceID int64) ([]*types.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, session_id, turn_id, step_id, ts, type, payload
		FROM events WHERE session_id = ? AND id > ? ORDER BY id ASC`, sessionID, sinceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsSinceSeq returns every event for a session with seq > sinceSeq.
func (s *Store) EventsSinceSeq(ctx context.Context, sessionID string, sinceSeq int64) ([]*types.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, session_id, turn_id, step_id, ts, type, payload
		FROM events WHERE session_id = ? AND seq > ? ORDER BY seq ASC`, sessionID, sinceSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsForTurn returns every event belonging to a turn, in id order — the
// Context Builder (§4.7) uses this to reconstruct a prior turn's assistant
// and tool messages from its event history rather than a separate
// message/part table.
func (s *Store) EventsForTurn(ctx context.Context, turnID string) ([]*types.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, session_id, turn_id, step_id, ts, type, payload
		FROM events WHERE turn_id = ? ORDER BY id ASC`, turnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// LatestEventID returns the highest global id assigned so far (0 if none),
// used for the Event Hub's `connected` event.
func (s *Store) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func scanEvents(rows *sql.Rows) ([]*types.Event, error) {
	var out []*types.Event
	for rows.Next() {
		var ev types.Event
		var payload string
		if err := rows.Scan(&ev.ID, &ev.Seq, &ev.SessionID, &ev.TurnID, &ev.StepID, &ev.Ts, &ev.Type, &payload); err != nil {
			return nil, err
		}
		ev.Payload = []byte(payload)
		out = append(out, &ev)
	}
	return out, rows.Err()
}
