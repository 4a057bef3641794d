package sandbox

import (
	"context"
	"os"
	"path/filepath"

	"github.com/agentcore/server/pkg/types"
)

// DefaultMaxTreeEntries bounds list_tree so a pathological directory
// (node_modules left un-ignored, a build output tree) can't make a single
// tool call unbounded.
const DefaultMaxTreeEntries = 2000

// defaultIgnoreDirs mirrors the teacher's list tool ignore set — directories
// a tree walk should never descend into by default.
var defaultIgnoreDirs = map[string]bool{
	"node_modules": true, "__pycache__": true, ".git": true, "dist": true,
	"build": true, "target": true, "vendor": true, "bin": true, "obj": true,
	".idea": true, ".vscode": true, ".zig-cache": true, "zig-out": true,
	"coverage": true, "tmp": true, "temp": true, ".cache": true, "cache": true,
	"logs": true, ".venv": true, "venv": true, "env": true,
}

// ListTree performs a bounded breadth-first walk of path (or the sandbox
// root, if path is empty), returning entries in BFS order. If the walk hits
// maxEntries before exhausting the tree, truncated is true and the
// remainder is simply not visited — callers should surface that to the
// caller rather than claim a complete listing.
func (fs *FS) ListTree(ctx context.Context, path string, maxEntries int) (entries []types.TreeEntry, truncated bool, err error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxTreeEntries
	}

	startAbs := fs.root
	startRel := ""
	if path != "" {
		abs, rel, rerr := resolve(fs.root, path)
		if rerr != nil {
			return nil, false, rerr
		}
		startAbs, startRel = abs, rel
	}

	type queued struct{ abs, rel string }
	queue := []queued{{startAbs, startRel}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		dirEntries, derr := os.ReadDir(cur.abs)
		if derr != nil {
			if cur.abs == startAbs {
				return nil, false, derr
			}
			continue
		}

		for _, de := range dirEntries {
			if len(entries) >= maxEntries {
				return entries, true, nil
			}

			name := de.Name()
			if de.IsDir() && defaultIgnoreDirs[name] {
				continue
			}

			childAbs := filepath.Join(cur.abs, name)
			childRel := name
			if cur.rel != "" {
				childRel = cur.rel + "/" + name
			}

			var size int64
			if info, ierr := de.Info(); ierr == nil {
				size = info.Size()
			}

			entries = append(entries, types.TreeEntry{
				Path:  childRel,
				Size:  size,
				IsDir: de.IsDir(),
			})

			if de.IsDir() {
				queue = append(queue, queued{childAbs, childRel})
			}
		}
	}

	return entries, false, nil
}
