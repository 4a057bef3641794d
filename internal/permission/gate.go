package permission

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentcore/server/internal/event"
	"github.com/agentcore/server/internal/store"
	"github.com/agentcore/server/pkg/types"
)

// DefaultTimeout is how long a pending PermissionRequest waits for an
// external resolution before it expires (spec §4.4).
const DefaultTimeout = 5 * time.Minute

// Gate is the Permission Gate (spec §4.4). It consults PermissionMode and
// ToolPolicy, and for "ask" opens a PermissionRequest, publishes the
// permission_required tool_call transition, and blocks the caller until
// Resolve is called or the request times out.
type Gate struct {
	store   *store.Store
	writer  *event.Writer
	now     func() int64
	timeout time.Duration

	mu sync.Mutex
	// pending maps a PermissionRequest id to the channel its Evaluate
	// call is waiting on; Resolve delivers the outcome here.
	pending map[string]*pendingAsk
	// sessionPolicies holds scope=session overrides, kept in memory for
	// the runner's lifetime only (spec §4.4: "persisted optionally").
	// sessionID -> policyKey(toolName, pattern) -> policy.
	sessionPolicies map[string]map[string]types.Policy

	doomLoop *DoomLoopDetector
}

// pendingAsk is one in-flight ask() call's wait state.
type pendingAsk struct {
	ch     chan types.RequestStatus
	turnID string
}

// NewGate constructs a Gate over the Store (for PermissionMode/ToolPolicy/
// PermissionRequest persistence) and the Event Writer (to publish the
// permission_required transition).
func NewGate(st *store.Store, w *event.Writer, now func() int64) *Gate {
	return &Gate{
		store:           st,
		writer:          w,
		now:             now,
		timeout:         DefaultTimeout,
		pending:         make(map[string]*pendingAsk),
		sessionPolicies: make(map[string]map[string]types.Policy),
		doomLoop:        NewDoomLoopDetector(),
	}
}

// WithTimeout overrides the default ask timeout; returns the Gate for
// chaining at construction time.
func (g *Gate) WithTimeout(d time.Duration) *Gate {
	g.timeout = d
	return g
}

// CheckDoomLoop reports whether this (tool, input) repeats the prior
// DoomLoopThreshold-1 calls in the session, in which case the caller
// should set Request.ForceAsk on the next Evaluate call regardless of any
// standing "allow" policy.
func (g *Gate) CheckDoomLoop(sessionID, toolName string, input any) bool {
	return g.doomLoop.Check(sessionID, toolName, input)
}

// Evaluate runs the resolution order in spec §4.4 and blocks on "ask"
// until the request is resolved or expires. A nil error means approved;
// a *RejectedError means denied or expired.
func (g *Gate) Evaluate(ctx context.Context, req Request) (Decision, error) {
	if !req.ForceAsk {
		mode, err := g.store.GetPermissionMode(ctx)
		if err != nil {
			return Decision{}, err
		}
		if mode == types.ModeAllow {
			return Decision{Status: types.RequestApproved}, nil
		}

		policy, ok := g.effectivePolicy(ctx, req.SessionID, req.ToolName, req.Target)
		if ok {
			switch policy {
			case types.PolicyAllow:
				return Decision{Status: types.RequestApproved}, nil
			case types.PolicyDeny:
				return Decision{Status: types.RequestDenied}, &RejectedError{
					SessionID:  req.SessionID,
					ToolName:   req.ToolName,
					ToolCallID: req.ToolCallID,
					Status:     types.RequestDenied,
				}
			}
		}
	}

	return g.ask(ctx, req)
}

// effectivePolicy consults the session-scoped override map first, then
// persisted ToolPolicy rows, applying pattern precedence from wildcard.go.
func (g *Gate) effectivePolicy(ctx context.Context, sessionID, toolName, target string) (types.Policy, bool) {
	g.mu.Lock()
	session := g.sessionPolicies[sessionID]
	g.mu.Unlock()

	if session != nil {
		entries := make([]*types.ToolPolicy, 0, len(session))
		for key, p := range session {
			entries = append(entries, &types.ToolPolicy{ToolName: key, Policy: p})
		}
		if policy, ok := matchPolicies(entries, toolName, target); ok {
			return policy, true
		}
	}

	policies, err := g.store.ListToolPolicies(ctx)
	if err != nil {
		return "", false
	}
	return matchPolicies(policies, toolName, target)
}

// ask creates a pending PermissionRequest, publishes the
// permission_required tool_call transition, and blocks for resolution.
func (g *Gate) ask(ctx context.Context, req Request) (Decision, error) {
	id := ulid.Make().String()
	pr := &types.PermissionRequest{
		ID:        id,
		SessionID: req.SessionID,
		TurnID:    req.TurnID,
		StepID:    req.StepID,
		ToolName:  req.ToolName,
		Input:     req.Input,
		Status:    types.RequestPending,
		Scope:     types.ScopeOnce,
		CreatedAt: g.now(),
	}
	if err := g.store.CreatePermissionRequest(ctx, pr); err != nil {
		return Decision{}, err
	}

	ch := make(chan types.RequestStatus, 1)
	g.mu.Lock()
	g.pending[id] = &pendingAsk{ch: ch, turnID: req.TurnID}
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.pending, id)
		g.mu.Unlock()
	}()

	turnID, stepID := req.TurnID, req.StepID
	requestID := id
	if _, err := g.writer.Write(ctx, event.Draft{
		SessionID: req.SessionID,
		TurnID:    &turnID,
		StepID:    &stepID,
		Type:      types.EventToolCall,
		Payload: types.ToolCallPayload{
			ToolCallID:          req.ToolCallID,
			ToolName:            req.ToolName,
			Input:               req.Input,
			Status:              types.ToolCallPermissionRequired,
			PermissionRequestID: &requestID,
		},
	}); err != nil {
		return Decision{}, err
	}

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	case <-timer.C:
		_ = g.store.ResolvePermissionRequest(ctx, id, types.RequestExpired, g.now())
		return Decision{Status: types.RequestExpired, RequestID: id}, &RejectedError{
			SessionID:  req.SessionID,
			ToolName:   req.ToolName,
			ToolCallID: req.ToolCallID,
			Status:     types.RequestExpired,
		}
	case status := <-ch:
		if status != types.RequestApproved {
			return Decision{Status: status, RequestID: id}, &RejectedError{
				SessionID:  req.SessionID,
				ToolName:   req.ToolName,
				ToolCallID: req.ToolCallID,
				Status:     status,
			}
		}
		return Decision{Status: status, RequestID: id}, nil
	}
}

// Resolve applies an external decision to a pending PermissionRequest
// (spec §4.4): the request transitions at most once out of pending, and
// scope controls how long the decision is remembered.
//
//   - once    — applies only to this call; no policy is written.
//   - session — upserts an in-memory, session-scoped ToolPolicy override
//     for the remainder of the runner's lifetime.
//   - always  — upserts a persisted ToolPolicy override.
func (g *Gate) Resolve(ctx context.Context, requestID string, approved bool, scope types.Scope) error {
	status := types.RequestDenied
	if approved {
		status = types.RequestApproved
	}

	req, err := g.store.GetPermissionRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if err := g.store.ResolvePermissionRequest(ctx, requestID, status, g.now()); err != nil {
		return err
	}

	if scope != types.ScopeOnce {
		policy := types.PolicyDeny
		if approved {
			policy = types.PolicyAllow
		}
		pattern := "" // request-level resolution has no pattern target recorded
		key := policyKey(req.ToolName, pattern)

		switch scope {
		case types.ScopeSession:
			g.mu.Lock()
			if g.sessionPolicies[req.SessionID] == nil {
				g.sessionPolicies[req.SessionID] = make(map[string]types.Policy)
			}
			g.sessionPolicies[req.SessionID][key] = policy
			g.mu.Unlock()
		case types.ScopeAlways:
			if err := g.store.SetToolPolicy(ctx, key, policy); err != nil {
				return err
			}
		}
	}

	g.mu.Lock()
	p, ok := g.pending[requestID]
	g.mu.Unlock()
	if ok {
		p.ch <- status
	}
	return nil
}

// ExpireTurn marks every still-pending PermissionRequest of a turn as
// expired and unblocks any Evaluate call waiting on one, so a cancelled
// turn (spec §4.1) doesn't leave the runner blocked until the ask
// timeout. Treated as denied by the waiting Evaluate call.
func (g *Gate) ExpireTurn(ctx context.Context, turnID string) error {
	if err := g.store.ExpirePendingForTurn(ctx, turnID, g.now()); err != nil {
		return err
	}

	g.mu.Lock()
	var matched []*pendingAsk
	for _, p := range g.pending {
		if p.turnID == turnID {
			matched = append(matched, p)
		}
	}
	g.mu.Unlock()

	for _, p := range matched {
		select {
		case p.ch <- types.RequestExpired:
		default:
		}
	}
	return nil
}

// ClearSession drops in-memory session-scoped policy overrides, e.g. when
// a session ends.
func (g *Gate) ClearSession(sessionID string) {
	g.mu.Lock()
	delete(g.sessionPolicies, sessionID)
	g.mu.Unlock()
	g.doomLoop.Clear(sessionID)
}
