package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/agentcore/server/internal/sandbox"
	"github.com/agentcore/server/internal/store"
	"github.com/agentcore/server/internal/workspace"
	"github.com/agentcore/server/pkg/types"
)

// MaxKeptTurns is the number of most-recent turns the Context Builder
// includes verbatim (spec §9, fixed by SPEC_FULL.md §4.7). Older turns
// are folded into a single cached summary item per turn.
const MaxKeptTurns = 20

// contextItemSizeThreshold is the byte size above which a pinned context
// item is replaced by its cached summary rather than embedded raw (spec
// §4.7).
const contextItemSizeThreshold = 4000

const basePrompt = `You are the agent running inside a self-hosted agent server. You have tools to read, search, write, and patch files under a sandboxed project root, fetch URLs, and spawn a sub-agent for a focused sub-task.

Rules:
- Read a file before editing it.
- Make minimal, targeted changes; preserve existing style.
- Explain destructive or irreversible actions before taking them.
- Prefer the narrowest tool for the job: search before reading everything, read before writing.`

// Builder is the Context Builder (spec §4.7): it assembles the message
// array for the next model call from the base prompt, pinned context
// items, and prior turn history.
type Builder struct {
	store     *store.Store
	fs        *sandbox.FS
	workspace *workspace.Info
}

// NewBuilder constructs a Context Builder over the Store (turns, events,
// context items) and the Sandbox FS (to resolve kind=file content refs).
func NewBuilder(st *store.Store, fs *sandbox.FS) *Builder {
	return &Builder{store: st, fs: fs}
}

// SetWorkspace attaches the Sandbox FS root's git identity, so Build can
// append an environment header after the base prompt. A nil or
// never-called workspace omits the header entirely.
func (b *Builder) SetWorkspace(info *workspace.Info) {
	b.workspace = info
}

// Build returns the full message history for the next model call: base
// prompt, pinned/summary context item blocks, then the last MaxKeptTurns
// turns reconstructed from their event history — including the turn
// currently in progress, since its Turn row and any Steps/events it has
// produced so far are already persisted by the time the runner calls
// Build.
func (b *Builder) Build(ctx context.Context, sessionID string) ([]*schema.Message, error) {
	messages := []*schema.Message{
		{Role: schema.System, Content: basePrompt},
	}
	if b.workspace != nil {
		messages = append(messages, &schema.Message{Role: schema.System, Content: renderEnvironment(b.workspace)})
	}

	if err := b.ensureOlderTurnSummaries(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("summarize older turns: %w", err)
	}

	items, err := b.store.ListContextItems(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list context items: %w", err)
	}
	for _, item := range items {
		if !item.Pinned && item.Kind != types.ContextSummary {
			continue
		}
		block, err := b.renderItem(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("render context item %s: %w", item.ID, err)
		}
		messages = append(messages, &schema.Message{Role: schema.System, Content: block})
	}

	turns, err := b.store.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}

	kept := turns
	if len(kept) > MaxKeptTurns {
		kept = kept[len(kept)-MaxKeptTurns:]
	}

	for _, turn := range kept {
		turnMsgs, err := b.reconstructTurn(ctx, turn)
		if err != nil {
			return nil, fmt.Errorf("reconstruct turn %s: %w", turn.ID, err)
		}
		messages = append(messages, turnMsgs...)
	}

	return messages, nil
}

// reconstructTurn rebuilds a turn's messages from its persisted event
// log: the user text, then one assistant message per Step (its
// accumulated text plus any tool calls it made) followed by a tool-role
// message for each call's result, mirroring the runner's own publish
// order.
func (b *Builder) reconstructTurn(ctx context.Context, turn *types.Turn) ([]*schema.Message, error) {
	messages := []*schema.Message{
		{Role: schema.User, Content: turn.UserText},
	}

	events, err := b.store.EventsForTurn(ctx, turn.ID)
	if err != nil {
		return nil, err
	}

	type stepRecon struct {
		text        strings.Builder
		toolCalls   []schema.ToolCall
		toolResults map[string]*types.ToolResultPayload
	}

	var stepOrder []string
	steps := make(map[string]*stepRecon)

	hasToolCall := func(sr *stepRecon, id string) bool {
		for _, tc := range sr.toolCalls {
			if tc.ID == id {
				return true
			}
		}
		return false
	}

	for _, ev := range events {
		if ev.StepID == nil {
			continue // administrative/sub-agent events carry no reconstructable message
		}
		sid := *ev.StepID
		sr, ok := steps[sid]
		if !ok {
			sr = &stepRecon{toolResults: make(map[string]*types.ToolResultPayload)}
			steps[sid] = sr
			stepOrder = append(stepOrder, sid)
		}

		switch ev.Type {
		case types.EventMessageDelta:
			var p types.MessageDeltaPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return nil, err
			}
			sr.text.WriteString(p.Delta)

		case types.EventToolCall:
			var p types.ToolCallPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return nil, err
			}
			if !hasToolCall(sr, p.ToolCallID) {
				sr.toolCalls = append(sr.toolCalls, schema.ToolCall{
					ID: p.ToolCallID,
					Function: schema.FunctionCall{
						Name:      p.ToolName,
						Arguments: string(p.Input),
					},
				})
			}

		case types.EventToolResult:
			var p types.ToolResultPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return nil, err
			}
			sr.toolResults[p.ToolCallID] = &p

		case types.EventFinal:
			var p types.FinalPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return nil, err
			}
			sr.text.Reset()
			sr.text.WriteString(p.Text)
		}
	}

	for _, sid := range stepOrder {
		sr := steps[sid]
		assistant := &schema.Message{
			Role:      schema.Assistant,
			Content:   sr.text.String(),
			ToolCalls: sr.toolCalls,
		}
		messages = append(messages, assistant)

		for _, tc := range sr.toolCalls {
			content := ""
			if result, ok := sr.toolResults[tc.ID]; ok {
				if result.OK {
					content = result.Output
				} else {
					content = "Error: " + result.Error
				}
			}
			messages = append(messages, &schema.Message{
				Role:       schema.Tool,
				ToolCallID: tc.ID,
				Content:    content,
			})
		}
	}

	return messages, nil
}

// ensureOlderTurnSummaries creates a kind=summary ContextItem for every
// turn older than the MaxKeptTurns window that doesn't already have one,
// keyed by sha256(turn_id) per spec §4.7/§9.
func (b *Builder) ensureOlderTurnSummaries(ctx context.Context, sessionID string) error {
	turns, err := b.store.ListTurns(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(turns) <= MaxKeptTurns {
		return nil
	}
	older := turns[:len(turns)-MaxKeptTurns]

	existing, err := b.store.ListContextItems(ctx, sessionID)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, item := range existing {
		if item.Kind == types.ContextSummary {
			have[item.SummarySHA256] = true
		}
	}

	for _, turn := range older {
		key := sha256Hex(turn.ID)
		if have[key] {
			continue
		}

		turnMsgs, err := b.reconstructTurn(ctx, turn)
		if err != nil {
			return err
		}
		summary := truncateSummary(renderTurnText(turnMsgs), contextItemSizeThreshold)

		item := &types.ContextItem{
			ID:            ulid.Make().String(),
			SessionID:     sessionID,
			Kind:          types.ContextSummary,
			Title:         fmt.Sprintf("Summary of turn %s", turn.ID),
			ContentRef:    "turn:" + turn.ID,
			Pinned:        false,
			Summary:       summary,
			SummarySHA256: key,
			CreatedAt:     turn.CreatedAt,
		}
		if err := b.store.CreateContextItem(ctx, item); err != nil {
			return err
		}
	}

	return nil
}

// renderItem turns a context item into a titled system-message block,
// synthesizing and caching a deterministic summary the first time a
// large, not-yet-summarized item is encountered (spec §4.7).
func (b *Builder) renderItem(ctx context.Context, item *types.ContextItem) (string, error) {
	if item.Summary != "" {
		return formatBlock(item.Title, item.Summary), nil
	}

	content, err := b.loadItemContent(ctx, item)
	if err != nil {
		return "", err
	}

	if len(content) <= contextItemSizeThreshold {
		return formatBlock(item.Title, content), nil
	}

	summary := truncateSummary(content, contextItemSizeThreshold)
	sha := sha256Hex(item.ContentRef + content)
	if err := b.store.SetContextItemSummary(ctx, item.ID, summary, sha); err != nil {
		return "", err
	}
	return formatBlock(item.Title, summary), nil
}

// loadItemContent resolves a context item's content_ref. kind=file is
// read through Sandbox FS; kind=web/memory have no registered external
// reader in this build (Non-goals scope out external integrations), so
// their content_ref is treated as the literal inline text.
func (b *Builder) loadItemContent(ctx context.Context, item *types.ContextItem) (string, error) {
	if item.Kind == types.ContextFile {
		res, err := b.fs.ReadFile(ctx, item.ContentRef, 0)
		if err != nil {
			return "", err
		}
		return string(res.Content), nil
	}
	return item.ContentRef, nil
}

// renderEnvironment formats the env-header block: sandbox root and, when
// detected, the VCS and current branch.
func renderEnvironment(ws *workspace.Info) string {
	var b strings.Builder
	b.WriteString("# Environment\n\n")
	fmt.Fprintf(&b, "Working directory: %s\n", ws.Root)
	if ws.VCS != "" {
		fmt.Fprintf(&b, "VCS: %s (branch: %s)\n", ws.VCS, ws.Branch)
	}
	return b.String()
}

func formatBlock(title, body string) string {
	return fmt.Sprintf("# %s\n\n%s", title, body)
}

func truncateSummary(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n… (truncated)"
}

func renderTurnText(msgs []*schema.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case schema.User:
			b.WriteString("User: ")
		case schema.Assistant:
			b.WriteString("Assistant: ")
		case schema.Tool:
			b.WriteString("Tool result: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
