package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/agentcore/server/internal/sandbox"
)

const listTreeDescription = `Lists the sandbox's file tree.

Usage:
- path is relative to the sandbox root; omit it to list the whole tree
- performs a bounded breadth-first walk; common build/dependency directories
  (node_modules, .git, vendor, dist, ...) are skipped by default
- if the tree is larger than the configured cap, the response is marked truncated`

// ListTreeTool implements the list_tree tool over the Sandbox FS.
type ListTreeTool struct {
	fs *sandbox.FS
}

// ListTreeInput represents the input for the list_tree tool.
type ListTreeInput struct {
	Path string `json:"path,omitempty"`
}

// NewListTreeTool creates a new list_tree tool.
func NewListTreeTool(fs *sandbox.FS) *ListTreeTool {
	return &ListTreeTool{fs: fs}
}

func (t *ListTreeTool) ID() string          { return "list_tree" }
func (t *ListTreeTool) Description() string { return listTreeDescription }

func (t *ListTreeTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "Subdirectory to list, relative to the sandbox root (default: the whole tree)"
			}
		}
	}`)
}

func (t *ListTreeTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params ListTreeInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
	}

	entries, truncated, err := t.fs.ListTree(ctx, params.Path, sandbox.DefaultMaxTreeEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to list tree: %w", err)
	}

	var sb strings.Builder
	for _, e := range entries {
		kind := "file"
		if e.IsDir {
			kind = "dir "
		}
		fmt.Fprintf(&sb, "[%s] %s", kind, e.Path)
		if !e.IsDir {
			fmt.Fprintf(&sb, " (%d bytes)", e.Size)
		}
		sb.WriteString("\n")
	}
	if truncated {
		sb.WriteString("(truncated: tree exceeds the listing cap)\n")
	}

	return &Result{
		Title:  fmt.Sprintf("Listed %d entries", len(entries)),
		Output: sb.String(),
		Metadata: map[string]any{
			"count":     len(entries),
			"truncated": truncated,
		},
	}, nil
}

func (t *ListTreeTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
