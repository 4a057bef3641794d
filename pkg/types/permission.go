package types

import "encoding/json"

// Policy is the per-tool default or override stored in ToolPolicy.
type Policy string

const (
	PolicyDeny  Policy = "deny"
	PolicyAsk   Policy = "ask"
	PolicyAllow Policy = "allow"
)

// Mode is the value of the PermissionMode singleton.
type Mode string

const (
	ModeAsk   Mode = "ask"
	ModeAllow Mode = "allow"
)

// ToolPolicy is the effective, possibly scoped, policy for one tool name.
type ToolPolicy struct {
	ToolName string `json:"toolName"`
	Policy   Policy `json:"policy"`
}

// Scope controls how long a permission resolution is remembered.
type Scope string

const (
	ScopeOnce    Scope = "once"
	ScopeSession Scope = "session"
	ScopeAlways  Scope = "always"
)

// RequestStatus is the lifecycle state of a PermissionRequest.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestDenied   RequestStatus = "denied"
	RequestExpired  RequestStatus = "expired"
)

// PermissionRequest is created by the gate on an "ask" policy and resolved
// exactly once by an external API call.
type PermissionRequest struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"sessionId"`
	TurnID     string          `json:"turnId"`
	StepID     string          `json:"stepId"`
	ToolName   string          `json:"toolName"`
	Input      json.RawMessage `json:"input"`
	Status     RequestStatus   `json:"status"`
	Scope      Scope           `json:"scope"`
	CreatedAt  int64           `json:"createdAt"`
	ResolvedAt *int64          `json:"resolvedAt,omitempty"`
}
