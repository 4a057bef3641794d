package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/agentcore/server/pkg/types"
)

// CreateContextItem inserts a ContextItem.
func (s *Store) CreateContextItem(ctx context.Context, item *types.ContextItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO context_items (id, session_id, kind, title, content_ref, pinned, summary, summary_sha256, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.SessionID, item.Kind, item.Title, item.ContentRef, item.Pinned, item.Summary, item.SummarySHA256, item.CreatedAt)
	return err
}

// ListContextItems returns every context item for a session.
func (s *Store) ListContextItems(ctx context.Context, sessionID string) ([]*types.ContextItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, kind, title, content_ref, pinned, summary, summary_sha256, created_at
		FROM context_items WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContextItems(rows)
}

// ListPinnedContextItems returns only the pinned context items for a
// session, the set the Context Builder injects into every prompt.
func (s *Store) ListPinnedContextItems(ctx context.Context, sessionID string) ([]*types.ContextItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, kind, title, content_ref, pinned, summary, summary_sha256, created_at
		FROM context_items WHERE session_id = ? AND pinned = 1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContextItems(rows)
}

// SetContextItemPinned flips the pinned flag.
func (s *Store) SetContextItemPinned(ctx context.Context, id string, pinned bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE context_items SET pinned = ? WHERE id = ?`, pinned, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// SetContextItemSummary caches a synthesized summary for a large item.
func (s *Store) SetContextItemSummary(ctx context.Context, id, summary, summarySHA256 string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE context_items SET summary = ?, summary_sha256 = ? WHERE id = ?`, summary, summarySHA256, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// GetContextItem loads one context item by id.
func (s *Store) GetContextItem(ctx context.Context, id string) (*types.ContextItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, kind, title, content_ref, pinned, summary, summary_sha256, created_at
		FROM context_items WHERE id = ?`, id)
	var item types.ContextItem
	if err := row.Scan(&item.ID, &item.SessionID, &item.Kind, &item.Title, &item.ContentRef,
		&item.Pinned, &item.Summary, &item.SummarySHA256, &item.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func scanContextItems(rows *sql.Rows) ([]*types.ContextItem, error) {
	var out []*types.ContextItem
	for rows.Next() {
		var item types.ContextItem
		if err := rows.Scan(&item.ID, &item.SessionID, &item.Kind, &item.Title, &item.ContentRef,
			&item.Pinned, &item.Summary, &item.SummarySHA256, &item.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &item)
	}
	return out, rows.Err()
}
