// Package permission implements the Permission Gate (spec §4.4).
//
// # Overview
//
// Every buffered tool call the Agent Runner is about to execute passes
// through Gate.Evaluate first. The resolution order is:
//
//  1. Global PermissionMode: "allow" approves immediately.
//  2. The effective ToolPolicy for the tool (and, when the call has a
//     natural target such as a path or domain, the most specific
//     pattern-scoped override): "deny" or "allow" short-circuits.
//  3. "ask" creates a pending PermissionRequest, publishes the
//     permission_required transition of the call's tool_call event, and
//     blocks until an external Resolve call or a timeout.
//
// # Scopes
//
// A Resolve call carries a scope that controls how long the decision is
// remembered:
//
//   - once    — applies only to the call that triggered the ask.
//   - session — kept in memory for the lifetime of the Gate (i.e. the
//     runner process); not persisted.
//   - always  — upserted into the store's ToolPolicy table.
//
// # Pattern matching
//
// Pattern-scoped policies are stored as a composite key ("write_file
// src/**/*.go") and matched with doublestar glob matching, most specific
// first: exact pattern match, then a bare tool-level entry, then a
// global "*" entry. See wildcard.go.
//
// # Doom loop detection
//
// DoomLoopDetector tracks the hash of the last several (tool, input)
// pairs per session. When a call repeats the same tool and input
// DoomLoopThreshold times in a row, the caller should set
// Request.ForceAsk so Evaluate re-confirms with the user even under a
// standing "allow" policy or global allow mode.
//
// # Timeouts and cancellation
//
// A pending ask expires after Gate's configured timeout and is treated
// as denied. ExpireTurn lets the runner unblock every pending ask for a
// cancelled turn immediately, rather than waiting out the full timeout.
package permission
