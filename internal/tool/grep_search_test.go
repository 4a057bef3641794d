package tool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGrepTool_FindsMatches(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "a.go"), []byte("func Foo() {}\nfunc Bar() {}\n"), 0644)

	tool := NewGrepTool(newTestSandboxFS(t, tmpDir))
	input, _ := json.Marshal(GrepInput{Pattern: `func Foo`})

	result, err := tool.Execute(context.Background(), input, testContext())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(result.Output, "a.go:1") {
		t.Errorf("expected match on line 1, got %q", result.Output)
	}
}

func TestGrepTool_IncludeFilter(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "a.go"), []byte("token\n"), 0644)
	os.WriteFile(filepath.Join(tmpDir, "a.txt"), []byte("token\n"), 0644)

	tool := NewGrepTool(newTestSandboxFS(t, tmpDir))
	input, _ := json.Marshal(GrepInput{Pattern: "token", Include: "**/*.go"})

	result, err := tool.Execute(context.Background(), input, testContext())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(result.Output, "a.go") || strings.Contains(result.Output, "a.txt") {
		t.Errorf("expected only a.go to match, got %q", result.Output)
	}
}

func TestGrepTool_InvalidRegex(t *testing.T) {
	tool := NewGrepTool(newTestSandboxFS(t, t.TempDir()))
	input, _ := json.Marshal(GrepInput{Pattern: "("})

	if _, err := tool.Execute(context.Background(), input, testContext()); err == nil {
		t.Fatal("expected error for invalid regex")
	}
}
