package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/agentcore/server/internal/sandbox"
)

const globDescription = `Fast file pattern matching across the sandbox.

Usage:
- pattern supports ** (e.g. "**/*.go", "src/**/*.ts")
- path optionally scopes the search to a subdirectory of the sandbox root
- returns matching paths, capped at a fixed count with a truncated flag`

const globMaxResults = 100

// GlobTool implements the glob_files tool over the Sandbox FS.
type GlobTool struct {
	fs *sandbox.FS
}

// GlobInput represents the input for the glob_files tool.
type GlobInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// NewGlobTool creates a new glob_files tool.
func NewGlobTool(fs *sandbox.FS) *GlobTool {
	return &GlobTool{fs: fs}
}

func (t *GlobTool) ID() string          { return "glob_files" }
func (t *GlobTool) Description() string { return globDescription }

func (t *GlobTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The glob pattern to match files against, e.g. \"**/*.go\""
			},
			"path": {
				"type": "string",
				"description": "Subdirectory to search in, relative to the sandbox root"
			}
		},
		"required": ["pattern"]
	}`)
}

func (t *GlobTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params GlobInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if !doublestar.ValidatePattern(params.Pattern) {
		return nil, fmt.Errorf("invalid glob pattern: %s", params.Pattern)
	}

	entries, _, err := t.fs.ListTree(ctx, params.Path, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to walk sandbox: %w", err)
	}

	var matches []string
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		if ok, _ := doublestar.Match(params.Pattern, e.Path); ok {
			matches = append(matches, e.Path)
		}
	}
	sort.Strings(matches)

	truncated := false
	if len(matches) > globMaxResults {
		matches = matches[:globMaxResults]
		truncated = true
	}

	output := strings.Join(matches, "\n")
	if truncated {
		output += fmt.Sprintf("\n\n(showing first %d matches)", globMaxResults)
	}
	if len(matches) == 0 {
		output = "No files matched the pattern"
	}

	return &Result{
		Title:  fmt.Sprintf("Found %d files", len(matches)),
		Output: output,
		Metadata: map[string]any{
			"pattern":   params.Pattern,
			"count":     len(matches),
			"truncated": truncated,
		},
	}, nil
}

func (t *GlobTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
