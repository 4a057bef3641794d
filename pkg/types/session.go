// Package types holds the persisted data model shared by the store,
// runner, and HTTP surface: sessions, turns, steps, events, and the
// supporting tables that back the permission gate and sandbox FS.
package types

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	SessionIdle    SessionStatus = "idle"
	SessionRunning SessionStatus = "running"
	SessionError   SessionStatus = "error"
)

// Session is a single conversation with the agent.
type Session struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Status    SessionStatus `json:"status"`
	CreatedAt int64         `json:"createdAt"`
	UpdatedAt int64         `json:"updatedAt"`
}

// SessionSettings carries per-session overrides of process-wide defaults.
type SessionSettings struct {
	SessionID     string  `json:"sessionId"`
	OverrideModel *string `json:"overrideModel,omitempty"`
}

// Turn is one user message and everything the runner does in response to it.
type Turn struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	UserText  string `json:"userText"`
	CreatedAt int64  `json:"createdAt"`
}

// StepStatus is the lifecycle state of a Step.
type StepStatus string

const (
	StepRunning   StepStatus = "running"
	StepDone      StepStatus = "done"
	StepCancelled StepStatus = "cancelled"
	StepError     StepStatus = "error"
)

// Step is one agent-runner iteration within a turn: one model call plus the
// tool calls it produced.
type Step struct {
	ID         string     `json:"id"`
	TurnID     string     `json:"turnId"`
	Idx        int        `json:"idx"`
	Status     StepStatus `json:"status"`
	StartedAt  int64      `json:"startedAt"`
	FinishedAt *int64     `json:"finishedAt,omitempty"`
}
