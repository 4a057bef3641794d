package tool

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/agentcore/server/internal/sandbox"
)

const grepDescription = `Searches file contents across the sandbox by regular expression.

Usage:
- pattern is a Go regular expression (RE2 syntax)
- include optionally restricts the search to files matching a glob (e.g. "**/*.go")
- path optionally scopes the search to a subdirectory of the sandbox root
- returns matching lines with file paths and line numbers`

const grepMaxMatches = 100

// GrepTool implements the grep_search tool over the Sandbox FS.
type GrepTool struct {
	fs *sandbox.FS
}

// GrepInput represents the input for the grep_search tool.
type GrepInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
	Include string `json:"include,omitempty"`
}

// GrepMatch represents a search match.
type GrepMatch struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// NewGrepTool creates a new grep_search tool.
func NewGrepTool(fs *sandbox.FS) *GrepTool {
	return &GrepTool{fs: fs}
}

func (t *GrepTool) ID() string          { return "grep_search" }
func (t *GrepTool) Description() string { return grepDescription }

func (t *GrepTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The regular expression to search for in file contents"
			},
			"path": {
				"type": "string",
				"description": "Subdirectory to search in, relative to the sandbox root"
			},
			"include": {
				"type": "string",
				"description": "Glob restricting which files are searched (e.g. \"**/*.go\")"
			}
		},
		"required": ["pattern"]
	}`)
}

func (t *GrepTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params GrepInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	entries, _, err := t.fs.ListTree(ctx, params.Path, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to walk sandbox: %w", err)
	}

	var matches []GrepMatch
outer:
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		if params.Include != "" {
			if ok, _ := doublestar.Match(params.Include, e.Path); !ok {
				continue
			}
		}

		res, err := t.fs.ReadFile(ctx, e.Path, 0)
		if err != nil || isBinaryContent(res.Content) {
			continue
		}

		lineNum := 0
		scanner := bufio.NewScanner(bytes.NewReader(res.Content))
		scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
		for scanner.Scan() {
			lineNum++
			line := scanner.Text()
			if re.MatchString(line) {
				matches = append(matches, GrepMatch{File: e.Path, Line: lineNum, Content: line})
				if len(matches) >= grepMaxMatches {
					break outer
				}
			}
		}
	}

	truncated := len(matches) >= grepMaxMatches

	var sb strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&sb, "%s:%d: %s\n", m.File, m.Line, m.Content)
	}
	if truncated {
		sb.WriteString(fmt.Sprintf("\n(showing first %d matches)", grepMaxMatches))
	}
	if len(matches) == 0 {
		sb.WriteString("No matches found")
	}

	return &Result{
		Title:  fmt.Sprintf("Found %d matches", len(matches)),
		Output: sb.String(),
		Metadata: map[string]any{
			"pattern":   params.Pattern,
			"count":     len(matches),
			"truncated": truncated,
		},
	}, nil
}

func (t *GrepTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
