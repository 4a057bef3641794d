// Package session implements the Agent Runner (spec §4.1) and the
// Context Builder (spec §4.7), plus the Session/Turn orchestration the
// HTTP surface drives them through.
//
// # Agent Runner
//
// A Runner drives one turn to completion: one Step per model
// round-trip, consuming a provider.EventReader and publishing every
// text/thinking/tool_call/diff/tool_result/final/error transition
// through event.Writer. Every buffered tool call is checked against the
// Permission Gate before it runs. Cancellation expires any pending
// permission ask, marks the in-progress Step cancelled, and leaves the
// session idle without a final event.
//
// # Context Builder
//
// Since there is no persisted Message/Part table, the Builder
// reconstructs a turn's assistant/tool messages on demand from its Step
// and Event history. Pinned ContextItems larger than a size threshold and
// turns older than MaxKeptTurns are folded into cached summaries instead
// of replayed verbatim, keeping prompt size bounded without a live token
// counter.
//
// # Service
//
// Service owns Session/Turn CRUD and starts a Runner in the background
// for each new turn, tracking its cancel func so a session can be
// aborted mid-turn.
package session
