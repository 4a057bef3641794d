package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/agentcore/server/pkg/types"
)

// NextFileVersionIdx returns the next dense idx for (sessionID, path),
// starting at 1. Callers must hold Store.LockPath(sessionID, path) across
// this call and the subsequent CreateFileVersion insert.
func (s *Store) NextFileVersionIdx(ctx context.Context, sessionID, path string) (int, error) {
	var maxIdx sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(idx) FROM file_versions WHERE session_id = ? AND path = ?`, sessionID, path).Scan(&maxIdx)
	if err != nil {
		return 0, err
	}
	return int(maxIdx.Int64) + 1, nil
}

// CreateFileVersion inserts a pre-image snapshot.
func (s *Store) CreateFileVersion(ctx context.Context, v *types.FileVersion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_versions (id, session_id, path, idx, content, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.SessionID, v.Path, v.Idx, v.Content, v.Note, v.CreatedAt)
	return err
}

// ListFileVersions returns every version of a path, oldest first.
func (s *Store) ListFileVersions(ctx context.Context, sessionID, path string) ([]*types.FileVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, path, idx, note, created_at
		FROM file_versions WHERE session_id = ? AND path = ? ORDER BY idx ASC`, sessionID, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.FileVersion
	for rows.Next() {
		var v types.FileVersion
		if err := rows.Scan(&v.ID, &v.SessionID, &v.Path, &v.Idx, &v.Note, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

// GetFileVersion loads a version's full content by id.
func (s *Store) GetFileVersion(ctx context.Context, id string) (*types.FileVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, path, idx, content, note, created_at
		FROM file_versions WHERE id = ?`, id)
	var v types.FileVersion
	if err := row.Scan(&v.ID, &v.SessionID, &v.Path, &v.Idx, &v.Content, &v.Note, &v.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// CreateFileChange appends a FileChange row.
func (s *Store) CreateFileChange(ctx context.Context, c *types.FileChange) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_changes (id, session_id, turn_id, step_id, path, diff, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SessionID, c.TurnID, c.StepID, c.Path, c.Diff, c.CreatedAt)
	return err
}

// ListFileChanges returns every change recorded for a path, oldest first.
func (s *Store) ListFileChanges(ctx context.Context, sessionID, path string) ([]*types.FileChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, turn_id, step_id, path, diff, created_at
		FROM file_changes WHERE session_id = ? AND path = ? ORDER BY created_at ASC`, sessionID, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.FileChange
	for rows.Next() {
		var c types.FileChange
		if err := rows.Scan(&c.ID, &c.SessionID, &c.TurnID, &c.StepID, &c.Path, &c.Diff, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
