package tool

import (
	"context"
	"encoding/json"
	"fmt"

	einotool "github.com/cloudwego/eino/components/tool"
)

const spawnSubagentDescription = `Spawns a sub-agent to carry out a focused task and report back.

Usage:
- label is a short (3-5 word) description shown in the event stream
- task is the detailed instruction given to the sub-agent
- agent optionally names a preset tool view ("general", "explore", ...); defaults to "general"
- tools_allowlist, if given, overrides the named preset's tool view entirely
- sub-agents cannot spawn further sub-agents or resolve permissions themselves — those stay
  with the parent session; the presets give no write tools, so a sub-agent writes files only
  when tools_allowlist names write_file or apply_patch`

// SpawnSubagentTool implements the spawn_subagent tool.
type SpawnSubagentTool struct {
	executor SubagentExecutor
}

// SubagentExecutor runs a sub-agent task to completion and returns its
// final answer. Implemented by internal/executor.
type SubagentExecutor interface {
	Spawn(ctx context.Context, toolCtx *Context, label, task, agentName string, toolsAllowlist []string) (*SubagentResult, error)
}

// SubagentResult is a completed sub-agent run.
type SubagentResult struct {
	SubagentID string
	Output     string
	Err        string
}

// SpawnSubagentInput represents the input for the spawn_subagent tool.
type SpawnSubagentInput struct {
	Label          string   `json:"label"`
	Task           string   `json:"task"`
	Agent          string   `json:"agent,omitempty"`
	ToolsAllowlist []string `json:"tools_allowlist,omitempty"`
}

// NewSpawnSubagentTool creates a new spawn_subagent tool.
func NewSpawnSubagentTool(executor SubagentExecutor) *SpawnSubagentTool {
	return &SpawnSubagentTool{executor: executor}
}

func (t *SpawnSubagentTool) ID() string          { return "spawn_subagent" }
func (t *SpawnSubagentTool) Description() string { return spawnSubagentDescription }

func (t *SpawnSubagentTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"label": {
				"type": "string",
				"description": "A short description of the sub-agent's task"
			},
			"task": {
				"type": "string",
				"description": "The detailed task for the sub-agent to perform"
			},
			"agent": {
				"type": "string",
				"description": "Named tool-view preset to run under (default: \"general\")"
			},
			"tools_allowlist": {
				"type": "array",
				"items": {"type": "string"},
				"description": "Optional restriction on which tools the sub-agent may call"
			}
		},
		"required": ["label", "task"]
	}`)
}

func (t *SpawnSubagentTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params SpawnSubagentInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Label == "" || params.Task == "" {
		return nil, fmt.Errorf("label and task are required")
	}
	if t.executor == nil {
		return nil, fmt.Errorf("spawn_subagent: no executor configured")
	}

	result, err := t.executor.Spawn(ctx, toolCtx, params.Label, params.Task, params.Agent, params.ToolsAllowlist)
	if err != nil {
		return nil, fmt.Errorf("sub-agent failed: %w", err)
	}
	if result.Err != "" {
		return &Result{
			Title:  fmt.Sprintf("Sub-agent failed: %s", params.Label),
			Output: result.Err,
			Metadata: map[string]any{
				"subagentId": result.SubagentID,
				"status":     "error",
			},
		}, nil
	}

	return &Result{
		Title:  fmt.Sprintf("Sub-agent completed: %s", params.Label),
		Output: result.Output,
		Metadata: map[string]any{
			"subagentId": result.SubagentID,
			"status":     "completed",
		},
	}, nil
}

func (t *SpawnSubagentTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
