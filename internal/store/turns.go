package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/agentcore/server/pkg/types"
)

// CreateTurn inserts a Turn row, rejecting with ErrSessionBusy if the
// session already has a turn with an in-progress step (spec §3
// invariant 8: no two concurrent turns per session). Callers must hold
// Store.LockSession(sessionID) across this call and the runner's
// subsequent first Step insert so the busy-check is race-free.
func (s *Store) CreateTurn(ctx context.Context, turn *types.Turn) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var running int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(1) FROM steps s
			JOIN turns t ON t.id = s.turn_id
			WHERE t.session_id = ? AND s.status = 'running'`, turn.SessionID).Scan(&running)
		if err != nil {
			return err
		}
		if running > 0 {
			return ErrSessionBusy
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO turns (id, session_id, user_text, created_at) VALUES (?, ?, ?, ?)`,
			turn.ID, turn.SessionID, turn.UserText, turn.CreatedAt)
		return err
	})
}

// GetTurn loads a Turn by id.
func (s *Store) GetTurn(ctx context.Context, id string) (*types.Turn, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, user_text, created_at FROM turns WHERE id = ?`, id)
	var t types.Turn
	if err := row.Scan(&t.ID, &t.SessionID, &t.UserText, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ListTurns returns every turn for a session in creation order.
func (s *Store) ListTurns(ctx context.Context, sessionID string) ([]*types.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, user_text, created_at FROM turns WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Turn
	for rows.Next() {
		var t types.Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.UserText, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// CreateStep inserts a Step row (spec §3 invariant 3: must happen before
// any event referencing its step_id is published).
func (s *Store) CreateStep(ctx context.Context, step *types.Step) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO steps (id, turn_id, idx, status, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?)`,
		step.ID, step.TurnID, step.Idx, step.Status, step.StartedAt, step.FinishedAt)
	return err
}

// UpdateStepStatus transitions a Step and optionally stamps finished_at.
func (s *Store) UpdateStepStatus(ctx context.Context, id string, status types.StepStatus, finishedAt *int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE steps SET status = ?, finished_at = ? WHERE id = ?`, status, finishedAt, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// ListSteps returns every step of a turn in idx order.
func (s *Store) ListSteps(ctx context.Context, turnID string) ([]*types.Step, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, turn_id, idx, status, started_at, finished_at FROM steps WHERE turn_id = ? ORDER BY idx ASC`, turnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Step
	for rows.Next() {
		var st types.Step
		if err := rows.Scan(&st.ID, &st.TurnID, &st.Idx, &st.Status, &st.StartedAt, &st.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}
