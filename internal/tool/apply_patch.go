package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/agentcore/server/internal/sandbox"
)

const applyPatchDescription = `Applies a unified diff to an existing file.

Usage:
- path is relative to the session's sandbox root
- patch must be a unified diff (the same format write_file and apply_patch diffs are expressed in)
- if a hunk's surrounding context has drifted slightly since the patch was generated, the
  sandbox retries it against the most similar block of the current file before failing`

// ApplyPatchTool implements the apply_patch tool over the Sandbox FS.
type ApplyPatchTool struct {
	fs *sandbox.FS
}

// ApplyPatchInput represents the input for the apply_patch tool.
type ApplyPatchInput struct {
	Path  string `json:"path"`
	Patch string `json:"patch"`
}

// NewApplyPatchTool creates a new apply_patch tool.
func NewApplyPatchTool(fs *sandbox.FS) *ApplyPatchTool {
	return &ApplyPatchTool{fs: fs}
}

func (t *ApplyPatchTool) ID() string          { return "apply_patch" }
func (t *ApplyPatchTool) Description() string { return applyPatchDescription }

func (t *ApplyPatchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "Path to the file, relative to the sandbox root"
			},
			"patch": {
				"type": "string",
				"description": "A unified diff to apply"
			}
		},
		"required": ["path", "patch"]
	}`)
}

func (t *ApplyPatchTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params ApplyPatchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	diff, err := t.fs.ApplyPatch(ctx, mutationFromContext(toolCtx), params.Path, params.Patch)
	if err != nil {
		return nil, fmt.Errorf("failed to apply patch: %w", err)
	}

	return &Result{
		Title:  fmt.Sprintf("Patched %s", filepath.Base(params.Path)),
		Output: "Patch applied",
		Metadata: map[string]any{
			"path": params.Path,
			"diff": diff,
		},
	}, nil
}

func (t *ApplyPatchTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
