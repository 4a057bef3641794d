// Package workspace detects the git identity of the Sandbox FS root, so
// the Context Builder can stamp its environment header with something
// more useful than a bare path (spec SPEC_FULL.md §AMBIENT STACK).
package workspace

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Info describes the single configured Sandbox FS root this process
// serves. Unlike the teacher's multi-project registry, there is exactly
// one per process — the Sandbox FS has one root (spec §4.5).
type Info struct {
	Root   string
	VCS    string // "git" or ""
	Branch string
}

// Detect inspects root and its ancestors for a .git directory. It never
// fails: an undetected VCS just leaves VCS and Branch empty.
func Detect(root string) *Info {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	info := &Info{Root: abs}

	if !hasGitDir(abs) {
		return info
	}
	info.VCS = "git"
	info.Branch = currentBranch(abs)
	return info
}

// hasGitDir walks up from start looking for a .git entry (directory or,
// for worktrees/submodules, file) without resolving where it points —
// only its presence matters for env-header VCS detection.
func hasGitDir(start string) bool {
	current := start
	for {
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			return true
		}
		parent := filepath.Dir(current)
		if parent == current {
			return false
		}
		current = parent
	}
}

func currentBranch(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
