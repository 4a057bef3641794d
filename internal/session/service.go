// Package session implements the Agent Runner, Context Builder, and
// Session/Turn orchestration (spec §4.1, §4.7): the pieces that turn an
// HTTP "send message" call into a running agentic loop over the Event
// Writer, Permission Gate, Sandbox FS, and Tool Registry.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentcore/server/internal/event"
	"github.com/agentcore/server/internal/permission"
	"github.com/agentcore/server/internal/provider"
	"github.com/agentcore/server/internal/sandbox"
	"github.com/agentcore/server/internal/store"
	"github.com/agentcore/server/internal/tool"
	"github.com/agentcore/server/internal/workspace"
	"github.com/agentcore/server/pkg/types"
)

// Service orchestrates Session/Turn lifecycle for the HTTP surface: it
// creates/lists/deletes sessions, starts a Runner for each new turn in
// the background, and tracks a cancel function per in-flight turn so
// POST /sessions/{id}/cancel (spec §6) can tear one down.
type Service struct {
	store     *store.Store
	writer    *event.Writer
	gate      *permission.Gate
	tools     *tool.Registry
	providers *provider.Registry
	fs        *sandbox.FS
	workDir   string
	workspace *workspace.Info

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // sessionID -> cancel of its active Run
}

// NewService wires a Service over the fully-constructed component set a
// process builds once at startup (store, event pipeline, permission
// gate, tool registry, provider registry, sandbox FS).
func NewService(
	st *store.Store,
	w *event.Writer,
	gate *permission.Gate,
	tools *tool.Registry,
	providers *provider.Registry,
	fs *sandbox.FS,
	workDir string,
) *Service {
	return &Service{
		store:     st,
		writer:    w,
		gate:      gate,
		tools:     tools,
		providers: providers,
		fs:        fs,
		workDir:   workDir,
		workspace: workspace.Detect(workDir),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// CreateSession inserts a new, idle Session.
func (s *Service) CreateSession(ctx context.Context, title string) (*types.Session, error) {
	if title == "" {
		title = defaultSessionTitle
	}
	now := nowMillis()
	sess := &types.Session{
		ID:        ulid.Make().String(),
		Title:     title,
		Status:    types.SessionIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// GetSession loads a session by id.
func (s *Service) GetSession(ctx context.Context, id string) (*types.Session, error) {
	return s.store.GetSession(ctx, id)
}

// ListSessions returns every session, most recently updated first.
func (s *Service) ListSessions(ctx context.Context) ([]*types.Session, error) {
	return s.store.ListSessions(ctx)
}

// DeleteSession cancels any in-flight turn and removes the session and
// everything it owns.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	s.Cancel(id)
	s.gate.ClearSession(id)
	return s.store.DeleteSession(ctx, id)
}

// SetModelOverride pins a session to a specific provider/model string
// ("anthropic/claude-sonnet-4-20250514"), or clears the override if
// model is empty.
func (s *Service) SetModelOverride(ctx context.Context, sessionID, model string) error {
	var override *string
	if model != "" {
		override = &model
	}
	return s.store.UpsertSessionSettings(ctx, &types.SessionSettings{SessionID: sessionID, OverrideModel: override})
}

// SendMessage creates a new Turn and starts the Agent Runner for it in
// the background (spec §3 invariant 8: the Store's CreateTurn rejects a
// second turn while one is already running). It returns as soon as the
// turn is durably recorded; callers observe progress over SSE.
func (s *Service) SendMessage(ctx context.Context, sessionID, text string) (*types.Turn, error) {
	lock := s.store.LockSession(sessionID)
	lock.Lock()
	turn := &types.Turn{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		UserText:  text,
		CreatedAt: nowMillis(),
	}
	err := s.store.CreateTurn(context.Background(), turn)
	lock.Unlock()
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateSessionStatus(context.Background(), sessionID, types.SessionRunning, nowMillis()); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[sessionID] = cancel
	s.mu.Unlock()

	builder := NewBuilder(s.store, s.fs)
	builder.SetWorkspace(s.workspace)
	runner := NewRunner(s.store, s.writer, s.gate, s.tools, s.providers, builder, s.workDir, nowMillis)

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.cancels, sessionID)
			s.mu.Unlock()
			cancel()
		}()

		_ = runner.Run(runCtx, sessionID, turn.ID, "")
		GenerateTitle(context.Background(), s.store, s.providers, sessionID, text)
	}()

	return turn, nil
}

// Cancel tears down a session's in-flight turn, if any. A no-op if the
// session is idle.
func (s *Service) Cancel(sessionID string) {
	s.mu.Lock()
	cancel, ok := s.cancels[sessionID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// ListTurns returns every turn of a session in creation order.
func (s *Service) ListTurns(ctx context.Context, sessionID string) ([]*types.Turn, error) {
	return s.store.ListTurns(ctx, sessionID)
}

// ListSteps returns every step of a turn in idx order.
func (s *Service) ListSteps(ctx context.Context, turnID string) ([]*types.Step, error) {
	return s.store.ListSteps(ctx, turnID)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
