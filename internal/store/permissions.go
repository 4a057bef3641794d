package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/agentcore/server/pkg/types"
)

// GetPermissionMode reads the global PermissionMode singleton.
func (s *Store) GetPermissionMode(ctx context.Context) (types.Mode, error) {
	var mode string
	err := s.db.QueryRowContext(ctx, `SELECT mode FROM permission_mode WHERE id = 1`).Scan(&mode)
	if err != nil {
		return "", err
	}
	return types.Mode(mode), nil
}

// SetPermissionMode overwrites the global PermissionMode singleton.
func (s *Store) SetPermissionMode(ctx context.Context, mode types.Mode) error {
	_, err := s.db.ExecContext(ctx, `UPDATE permission_mode SET mode = ? WHERE id = 1`, mode)
	return err
}

// GetToolPolicy returns the stored policy for a tool, or ("", ErrNotFound)
// if no override has been written (caller should fall back to the
// registry's default policy).
func (s *Store) GetToolPolicy(ctx context.Context, toolName string) (types.Policy, error) {
	var policy string
	err := s.db.QueryRowContext(ctx, `SELECT policy FROM tool_policies WHERE tool_name = ?`, toolName).Scan(&policy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return types.Policy(policy), nil
}

// ListToolPolicies returns every stored policy override.
func (s *Store) ListToolPolicies(ctx context.Context) ([]*types.ToolPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tool_name, policy FROM tool_policies ORDER BY tool_name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.ToolPolicy
	for rows.Next() {
		var tp types.ToolPolicy
		if err := rows.Scan(&tp.ToolName, &tp.Policy); err != nil {
			return nil, err
		}
		out = append(out, &tp)
	}
	return out, rows.Err()
}

// SetToolPolicy upserts the policy override for a tool (scope=always, or
// an explicit admin PUT per spec §6).
func (s *Store) SetToolPolicy(ctx context.Context, toolName string, policy types.Policy) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_policies (tool_name, policy) VALUES (?, ?)
		ON CONFLICT(tool_name) DO UPDATE SET policy = excluded.policy`,
		toolName, policy)
	return err
}

// CreatePermissionRequest inserts a pending PermissionRequest.
func (s *Store) CreatePermissionRequest(ctx context.Context, req *types.PermissionRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permission_requests (id, session_id, turn_id, step_id, tool_name, input, status, scope, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.SessionID, req.TurnID, req.StepID, req.ToolName, string(req.Input), req.Status, req.Scope, req.CreatedAt, req.ResolvedAt)
	return err
}

// GetPermissionRequest loads a PermissionRequest by id.
func (s *Store) GetPermissionRequest(ctx context.Context, id string) (*types.PermissionRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, turn_id, step_id, tool_name, input, status, scope, created_at, resolved_at
		FROM permission_requests WHERE id = ?`, id)
	return scanPermissionRequest(row)
}

// ListPendingPermissionRequests returns every pending request for a session.
func (s *Store) ListPendingPermissionRequests(ctx context.Context, sessionID string) ([]*types.PermissionRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, turn_id, step_id, tool_name, input, status, scope, created_at, resolved_at
		FROM permission_requests WHERE session_id = ? AND status = 'pending' ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.PermissionRequest
	for rows.Next() {
		req, err := scanPermissionRequestRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// ResolvePermissionRequest transitions a pending request to approved/denied
// exactly once (spec §3 invariant 5); a second resolution attempt returns
// ErrConflict.
func (s *Store) ResolvePermissionRequest(ctx context.Context, id string, status types.RequestStatus, resolvedAt int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		if err := tx.QueryRowContext(ctx, `SELECT status FROM permission_requests WHERE id = ?`, id).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if current != string(types.RequestPending) {
			return ErrConflict
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE permission_requests SET status = ?, resolved_at = ? WHERE id = ?`, status, resolvedAt, id)
		if err != nil {
			return err
		}
		return checkAffected(res)
	})
}

// ExpirePendingForTurn marks every pending request of a turn as expired
// (used on cancel, per spec §5).
func (s *Store) ExpirePendingForTurn(ctx context.Context, turnID string, resolvedAt int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE permission_requests SET status = 'expired', resolved_at = ?
		WHERE turn_id = ? AND status = 'pending'`, resolvedAt, turnID)
	return err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPermissionRequest(row *sql.Row) (*types.PermissionRequest, error) {
	req, err := scanPermissionRequestScannable(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return req, err
}

func scanPermissionRequestRows(rows *sql.Rows) (*types.PermissionRequest, error) {
	return scanPermissionRequestScannable(rows)
}

func scanPermissionRequestScannable(s scannable) (*types.PermissionRequest, error) {
	var req types.PermissionRequest
	var input string
	if err := s.Scan(&req.ID, &req.SessionID, &req.TurnID, &req.StepID, &req.ToolName, &input,
		&req.Status, &req.Scope, &req.CreatedAt, &req.ResolvedAt); err != nil {
		return nil, err
	}
	req.Input = []byte(input)
	return &req, nil
}
