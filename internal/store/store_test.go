package store

import (
	"context"
	"testing"

	"github.com/agentcore/server/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &types.Session{ID: "s1", Title: "hello", Status: types.SessionIdle, CreatedAt: 1, UpdatedAt: 1}
	require.NoError(t, s.CreateSession(ctx, sess))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "hello", got.Title)

	require.NoError(t, s.UpdateSessionTitle(ctx, "s1", "renamed", 2))
	got, err = s.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "renamed", got.Title)

	require.NoError(t, s.DeleteSession(ctx, "s1"))
	_, err = s.GetSession(ctx, "s1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAppendEventAssignsGaplessSeqAndMonotonicID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, &types.Session{ID: "s1", Title: "t", Status: types.SessionIdle, CreatedAt: 1, UpdatedAt: 1}))

	var lastID int64
	for i := 0; i < 5; i++ {
		ev, err := s.AppendEvent(ctx, &types.Event{SessionID: "s1", Ts: float64(i), Type: types.EventFinal, Payload: []byte(`{}`)})
		require.NoError(t, err)
		require.Equal(t, int64(i+1), ev.Seq)
		require.Greater(t, ev.ID, lastID)
		lastID = ev.ID
	}

	events, err := s.EventsSince(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, ev := range events {
		require.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestCreateTurnRejectsWhenSessionBusy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, &types.Session{ID: "s1", Title: "t", Status: types.SessionIdle, CreatedAt: 1, UpdatedAt: 1}))
	require.NoError(t, s.CreateTurn(ctx, &types.Turn{ID: "t1", SessionID: "s1", UserText: "hi", CreatedAt: 1}))
	require.NoError(t, s.CreateStep(ctx, &types.Step{ID: "st1", TurnID: "t1", Idx: 0, Status: types.StepRunning, StartedAt: 1}))

	err := s.CreateTurn(ctx, &types.Turn{ID: "t2", SessionID: "s1", UserText: "again", CreatedAt: 2})
	require.ErrorIs(t, err, ErrSessionBusy)
}

func TestFileVersionIdxIsDense(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, &types.Session{ID: "s1", Title: "t", Status: types.SessionIdle, CreatedAt: 1, UpdatedAt: 1}))

	for i := 0; i < 3; i++ {
		idx, err := s.NextFileVersionIdx(ctx, "s1", "a.txt")
		require.NoError(t, err)
		require.Equal(t, i+1, idx)
		require.NoError(t, s.CreateFileVersion(ctx, &types.FileVersion{ID: "v" + string(rune('1'+i)), SessionID: "s1", Path: "a.txt", Idx: idx, Content: []byte("x"), CreatedAt: int64(i)}))
	}
}

func TestResolvePermissionRequestOnlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, &types.Session{ID: "s1", Title: "t", Status: types.SessionIdle, CreatedAt: 1, UpdatedAt: 1}))
	req := &types.PermissionRequest{ID: "p1", SessionID: "s1", TurnID: "t1", StepID: "st1", ToolName: "write_file", Input: []byte(`{}`), Status: types.RequestPending, Scope: types.ScopeOnce, CreatedAt: 1}
	require.NoError(t, s.CreatePermissionRequest(ctx, req))

	require.NoError(t, s.ResolvePermissionRequest(ctx, "p1", types.RequestApproved, 2))
	err := s.ResolvePermissionRequest(ctx, "p1", types.RequestDenied, 3)
	require.ErrorIs(t, err, ErrConflict)
}
