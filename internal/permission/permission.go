// Package permission implements the Permission Gate (spec §4.4): given
// (session, turn, step, tool_name, input), it consults the global
// PermissionMode and the effective ToolPolicy, and for "ask" opens a
// PermissionRequest and blocks the caller until an external API call
// resolves it or it times out.
package permission

import (
	"encoding/json"

	"github.com/agentcore/server/pkg/types"
)

// Request is one permission check raised by the Agent Runner before it
// executes a buffered tool call.
type Request struct {
	SessionID  string
	TurnID     string
	StepID     string
	ToolCallID string
	ToolName   string
	Input      json.RawMessage

	// Target is the path or domain the call would touch, used to match
	// pattern-scoped policies (e.g. "src/**/*.go", "*.example.com").
	// Empty if the tool has no natural target to pattern-match on.
	Target string

	// ForceAsk routes the request straight to "ask" regardless of the
	// global mode or any stored policy. Set by the caller when the doom
	// loop detector has flagged this call as a repeat.
	ForceAsk bool
}

// Decision is the outcome of a Gate.Evaluate call.
type Decision struct {
	Status    types.RequestStatus // approved | denied | expired
	RequestID string              // set only when an ask round-trip happened
}

// Approved reports whether the decision allows the tool call to run.
func (d Decision) Approved() bool {
	return d.Status == types.RequestApproved
}

// RejectedError is returned by Evaluate when a request is denied or
// expires, so callers can attribute the "denied" tool_result to the
// specific reason.
type RejectedError struct {
	SessionID  string
	ToolName   string
	ToolCallID string
	Status     types.RequestStatus
}

func (e *RejectedError) Error() string {
	return string(e.Status)
}

// IsRejectedError reports whether err is a permission rejection.
func IsRejectedError(err error) bool {
	_, ok := err.(*RejectedError)
	return ok
}
