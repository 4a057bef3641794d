package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/agentcore/server/internal/sandbox"
)

const writeDescription = `Writes content to a file, creating it if it doesn't exist or overwriting it if it does.

Usage:
- path is relative to the session's sandbox root (an absolute path is also accepted
  as long as it resolves inside the sandbox)
- the previous content, if any, is snapshotted as a file version before being overwritten
- prefer apply_patch for targeted edits to an existing file; write_file replaces the whole file`

// WriteFileTool implements the write_file tool over the Sandbox FS.
type WriteFileTool struct {
	fs *sandbox.FS
}

// WriteFileInput represents the input for the write_file tool.
type WriteFileInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// NewWriteFileTool creates a new write_file tool.
func NewWriteFileTool(fs *sandbox.FS) *WriteFileTool {
	return &WriteFileTool{fs: fs}
}

func (t *WriteFileTool) ID() string          { return "write_file" }
func (t *WriteFileTool) Description() string { return writeDescription }

func (t *WriteFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "Path to the file, relative to the sandbox root"
			},
			"content": {
				"type": "string",
				"description": "The full content to write"
			}
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteFileTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params WriteFileInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	diff, err := t.fs.WriteFile(ctx, mutationFromContext(toolCtx), params.Path, []byte(params.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &Result{
		Title:  fmt.Sprintf("Wrote %s", filepath.Base(params.Path)),
		Output: fmt.Sprintf("Wrote %d bytes to %s", len(params.Content), params.Path),
		Metadata: map[string]any{
			"path": params.Path,
			"diff": diff,
		},
	}, nil
}

func (t *WriteFileTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}

// mutationFromContext builds a sandbox.Mutation attributing a change to
// the turn/step a tool call is running under.
func mutationFromContext(toolCtx *Context) sandbox.Mutation {
	if toolCtx == nil {
		return sandbox.Mutation{}
	}
	return sandbox.Mutation{
		SessionID: toolCtx.SessionID,
		TurnID:    toolCtx.TurnID,
		StepID:    toolCtx.StepID,
	}
}
