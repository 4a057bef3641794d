package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/agentcore/server/pkg/types"
)

// CreateSession inserts a new Session row.
func (s *Store) CreateSession(ctx context.Context, sess *types.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.Status, sess.CreatedAt, sess.UpdatedAt,
	)
	return err
}

// GetSession loads a Session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, status, created_at, updated_at FROM sessions WHERE id = ?`, id)
	var sess types.Session
	if err := row.Scan(&sess.ID, &sess.Title, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns every session, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, status, created_at, updated_at FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Session
	for rows.Next() {
		var sess types.Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// UpdateSessionTitle renames a session.
func (s *Store) UpdateSessionTitle(ctx context.Context, id, title string, updatedAt int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`, title, updatedAt, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// UpdateSessionStatus transitions a session's status.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status types.SessionStatus, updatedAt int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// DeleteSession removes a session and, via ON DELETE CASCADE, every row it
// owns (turns, steps, events, versions, changes, permission requests,
// context items).
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// GetSessionSettings loads the override row for a session, if any.
func (s *Store) GetSessionSettings(ctx context.Context, sessionID string) (*types.SessionSettings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, override_model FROM session_settings WHERE session_id = ?`, sessionID)
	var settings types.SessionSettings
	if err := row.Scan(&settings.SessionID, &settings.OverrideModel); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &types.SessionSettings{SessionID: sessionID}, nil
		}
		return nil, err
	}
	return &settings, nil
}

// UpsertSessionSettings writes (or clears) a session's model override.
func (s *Store) UpsertSessionSettings(ctx context.Context, settings *types.SessionSettings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_settings (session_id, override_model) VALUES (?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET override_model = excluded.override_model`,
		settings.SessionID, settings.OverrideModel,
	)
	return err
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
