package tool

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/agentcore/server/internal/sandbox"
)

const readFileDescription = `Reads a file from the sandbox.

Usage:
- path is relative to the session's sandbox root
- by default reads up to 2000 lines from the beginning; use offset/limit to paginate
- can read image files and returns them as a base64 data URL
- max_bytes caps how much of the file is read before it's reported truncated`

// ReadFileTool implements the read_file tool over the Sandbox FS.
type ReadFileTool struct {
	fs *sandbox.FS
}

// ReadFileInput represents the input for the read_file tool.
type ReadFileInput struct {
	Path     string `json:"path"`
	Offset   int    `json:"offset,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	MaxBytes int    `json:"max_bytes,omitempty"`
}

// NewReadFileTool creates a new read_file tool.
func NewReadFileTool(fs *sandbox.FS) *ReadFileTool {
	return &ReadFileTool{fs: fs}
}

func (t *ReadFileTool) ID() string          { return "read_file" }
func (t *ReadFileTool) Description() string { return readFileDescription }

func (t *ReadFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "Path to the file, relative to the sandbox root"
			},
			"offset": {
				"type": "integer",
				"description": "Line number to start reading from"
			},
			"limit": {
				"type": "integer",
				"description": "Number of lines to read (default: 2000)"
			},
			"max_bytes": {
				"type": "integer",
				"description": "Maximum bytes to read before truncating"
			}
		},
		"required": ["path"]
	}`)
}

func (t *ReadFileTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params ReadFileInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Limit <= 0 {
		params.Limit = 2000
	}

	if shouldBlockEnvFile(params.Path) {
		return nil, fmt.Errorf("reading %s is blocked; it looks like a secrets file", params.Path)
	}

	res, err := t.fs.ReadFile(ctx, params.Path, params.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	rel, content, truncated := res.Rel, res.Content, res.Truncated

	if isImagePath(rel) {
		return t.renderImage(rel, content), nil
	}
	if isBinaryContent(content) {
		return nil, fmt.Errorf("file appears to be binary: %s", rel)
	}

	output, lines, totalLines, hasMore := formatNumberedLines(content, params.Offset, params.Limit)
	if hasMore {
		truncated = true
	}

	return &Result{
		Title:  fmt.Sprintf("Read %s", filepath.Base(rel)),
		Output: output,
		Metadata: map[string]any{
			"path":       rel,
			"size":       res.Size,
			"mtime":      res.ModTime.UnixMilli(),
			"lines":      lines,
			"totalLines": totalLines,
			"truncated":  truncated,
		},
	}, nil
}

func (t *ReadFileTool) renderImage(rel string, data []byte) *Result {
	mediaType := detectMediaType(rel)
	dataURL := fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data))
	return &Result{
		Title:  fmt.Sprintf("Read %s", filepath.Base(rel)),
		Output: "(image file)",
		Attachments: []Attachment{
			{Filename: filepath.Base(rel), MediaType: mediaType, URL: dataURL},
		},
	}
}

func (t *ReadFileTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}

func formatNumberedLines(content []byte, offset, limit int) (output string, kept, total int, hasMore bool) {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if offset > 0 && lineNum < offset {
			continue
		}
		if len(lines) >= limit {
			break
		}
		line := scanner.Text()
		if len(line) > 2000 {
			line = line[:2000] + "..."
		}
		lines = append(lines, fmt.Sprintf("%05d| %s", lineNum, line))
	}

	var sb strings.Builder
	sb.WriteString("<file>\n")
	sb.WriteString(strings.Join(lines, "\n"))

	lastReadLine := len(lines)
	if offset > 1 {
		lastReadLine = offset - 1 + len(lines)
	}
	hasMore = lineNum > lastReadLine
	if hasMore {
		sb.WriteString(fmt.Sprintf("\n\n(File has more lines. Use offset to read beyond line %d)", lastReadLine))
	} else {
		sb.WriteString(fmt.Sprintf("\n\n(End of file - total %d lines)", lineNum))
	}
	sb.WriteString("\n</file>")

	return sb.String(), len(lines), lineNum, hasMore
}

func isImagePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return true
	default:
		return false
	}
}

func isBinaryContent(content []byte) bool {
	n := len(content)
	if n > 8000 {
		n = 8000
	}
	if n == 0 {
		return false
	}
	buf := content[:n]

	if bytes.IndexByte(buf, 0) >= 0 {
		return true
	}

	nonPrintable := 0
	for _, b := range buf {
		if b < 32 && b != '\n' && b != '\r' && b != '\t' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(n) > 0.3
}

func detectMediaType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// shouldBlockEnvFile blocks reads of likely-secret .env files, allowing
// the common sample/example suffixes.
func shouldBlockEnvFile(path string) bool {
	for _, w := range []string{".env.sample", ".example"} {
		if strings.HasSuffix(path, w) {
			return false
		}
	}
	return strings.Contains(path, ".env")
}
