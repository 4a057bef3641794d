package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentcore/server/internal/store"
	"github.com/agentcore/server/pkg/types"
)

// FS mediates all filesystem access for a single configured root. It is
// safe for concurrent use.
type FS struct {
	root  string
	store *store.Store
	now   func() int64
}

// New constructs an FS rooted at root. root must already exist.
func New(root string, st *store.Store, now func() int64) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("sandbox root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox root %s is not a directory", abs)
	}
	return &FS{root: abs, store: st, now: now}, nil
}

// Root returns the confined absolute root directory.
func (fs *FS) Root() string { return fs.root }

// checkNoSymlinkEscape verifies that, for an existing path, resolving
// symlinks doesn't land outside root. Missing path components are fine
// (write targets need not exist yet); only an existing, escaping symlink
// is rejected.
func (fs *FS) checkNoSymlinkEscape(abs string) error {
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if resolved != fs.root && !withinRoot(resolved, fs.root) {
		return fmt.Errorf("%w: symlink escapes root", ErrOutsideRoot)
	}
	return nil
}

func withinRoot(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ReadFile returns the current content of path.
// ReadResult is the read_file contract (spec §4.5): `{content, size,
// mtime, truncated}`, plus the path resolved relative to the sandbox
// root for callers that only have a caller-supplied path.
type ReadResult struct {
	Content   []byte
	Rel       string
	Size      int64
	ModTime   time.Time
	Truncated bool
}

// ReadFile reads path and returns its content alongside the file's size
// and modification time. maxBytes, if > 0, caps how much of the file is
// read; Truncated reports whether the file was longer than that cap.
func (fs *FS) ReadFile(ctx context.Context, path string, maxBytes int) (*ReadResult, error) {
	abs, rel, err := resolve(fs.root, path)
	if err != nil {
		return nil, err
	}
	if err := fs.checkNoSymlinkEscape(abs); err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("sandbox: %s is a directory", rel)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	truncated := false
	if maxBytes > 0 && len(data) > maxBytes {
		data = data[:maxBytes]
		truncated = true
	}

	return &ReadResult{
		Content:   data,
		Rel:       rel,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		Truncated: truncated,
	}, nil
}

// Mutation carries the identifiers an event/version/change row is
// attributed to.
type Mutation struct {
	SessionID string
	TurnID    string
	StepID    string
	Note      string
}

// WriteFile overwrites (or creates) path with content, snapshotting the
// pre-image as a FileVersion and recording a FileChange with the unified
// diff. Writes are atomic: staged into a temp file beside the target and
// renamed into place.
func (fs *FS) WriteFile(ctx context.Context, m Mutation, path string, content []byte) (diff string, err error) {
	abs, rel, err := resolve(fs.root, path)
	if err != nil {
		return "", err
	}
	if err := fs.checkNoSymlinkEscape(abs); err != nil {
		return "", err
	}

	lock := fs.store.LockPath(m.SessionID, rel)
	lock.Lock()
	defer lock.Unlock()

	before, existed, err := readIfExists(abs)
	if err != nil {
		return "", err
	}

	if err := fs.snapshotAndWrite(ctx, m, rel, abs, before, existed, content); err != nil {
		return "", err
	}

	diffText, _, _ := buildUnifiedDiff(rel, string(before), string(content))
	if err := fs.store.CreateFileChange(ctx, &types.FileChange{
		ID:        ulid.Make().String(),
		SessionID: m.SessionID,
		TurnID:    m.TurnID,
		StepID:    m.StepID,
		Path:      rel,
		Diff:      diffText,
		CreatedAt: fs.now(),
	}); err != nil {
		return "", err
	}

	return diffText, nil
}

// ApplyPatch applies a unified diff (as produced by buildUnifiedDiff / the
// diff event payload) to path, with the same version/diff bookkeeping as
// WriteFile.
func (fs *FS) ApplyPatch(ctx context.Context, m Mutation, path string, patch string) (diff string, err error) {
	abs, rel, err := resolve(fs.root, path)
	if err != nil {
		return "", err
	}
	if err := fs.checkNoSymlinkEscape(abs); err != nil {
		return "", err
	}

	lock := fs.store.LockPath(m.SessionID, rel)
	lock.Lock()
	defer lock.Unlock()

	before, existed, err := readIfExists(abs)
	if err != nil {
		return "", err
	}

	after, err := applyUnifiedDiff(patch, string(before))
	if err != nil {
		return "", fmt.Errorf("sandbox: %s: %w", rel, err)
	}

	if err := fs.snapshotAndWrite(ctx, m, rel, abs, before, existed, []byte(after)); err != nil {
		return "", err
	}

	diffText, _, _ := buildUnifiedDiff(rel, string(before), after)
	if err := fs.store.CreateFileChange(ctx, &types.FileChange{
		ID:        ulid.Make().String(),
		SessionID: m.SessionID,
		TurnID:    m.TurnID,
		StepID:    m.StepID,
		Path:      rel,
		Diff:      diffText,
		CreatedAt: fs.now(),
	}); err != nil {
		return "", err
	}

	return diffText, nil
}

// snapshotAndWrite records a FileVersion of the pre-image (only when the
// file already existed — there's nothing to roll back to otherwise) and
// atomically writes the new content. Caller must hold the path lock.
func (fs *FS) snapshotAndWrite(ctx context.Context, m Mutation, rel, abs string, before []byte, existed bool, after []byte) error {
	if existed {
		idx, err := fs.store.NextFileVersionIdx(ctx, m.SessionID, rel)
		if err != nil {
			return err
		}
		if err := fs.store.CreateFileVersion(ctx, &types.FileVersion{
			ID:        ulid.Make().String(),
			SessionID: m.SessionID,
			Path:      rel,
			Idx:       idx,
			Content:   before,
			Note:      m.Note,
			CreatedAt: fs.now(),
		}); err != nil {
			return err
		}
	}
	return atomicWrite(abs, after)
}

// ListVersions returns every recorded version of path, oldest first.
func (fs *FS) ListVersions(ctx context.Context, sessionID, path string) ([]*types.FileVersion, error) {
	_, rel, err := resolve(fs.root, path)
	if err != nil {
		return nil, err
	}
	return fs.store.ListFileVersions(ctx, sessionID, rel)
}

// GetVersion loads a single version's full content by id.
func (fs *FS) GetVersion(ctx context.Context, versionID string) (*types.FileVersion, error) {
	return fs.store.GetFileVersion(ctx, versionID)
}

// Rollback restores path to the content of a previously recorded version,
// snapshotting the current content first (so rollback is itself
// reversible) and recording a FileChange.
func (fs *FS) Rollback(ctx context.Context, m Mutation, path, versionID string) (diff string, err error) {
	abs, rel, err := resolve(fs.root, path)
	if err != nil {
		return "", err
	}
	if err := fs.checkNoSymlinkEscape(abs); err != nil {
		return "", err
	}

	target, err := fs.store.GetFileVersion(ctx, versionID)
	if err != nil {
		return "", err
	}
	if target.SessionID != m.SessionID || target.Path != rel {
		return "", fmt.Errorf("sandbox: version %s does not belong to %s", versionID, rel)
	}

	lock := fs.store.LockPath(m.SessionID, rel)
	lock.Lock()
	defer lock.Unlock()

	before, existed, err := readIfExists(abs)
	if err != nil {
		return "", err
	}

	if m.Note == "" {
		m.Note = fmt.Sprintf("pre-rollback to version %d", target.Idx)
	}
	if err := fs.snapshotAndWrite(ctx, m, rel, abs, before, existed, target.Content); err != nil {
		return "", err
	}

	diffText, _, _ := buildUnifiedDiff(rel, string(before), string(target.Content))
	if err := fs.store.CreateFileChange(ctx, &types.FileChange{
		ID:        ulid.Make().String(),
		SessionID: m.SessionID,
		TurnID:    m.TurnID,
		StepID:    m.StepID,
		Path:      rel,
		Diff:      diffText,
		CreatedAt: fs.now(),
	}); err != nil {
		return "", err
	}

	return diffText, nil
}

func readIfExists(abs string) (content []byte, existed bool, err error) {
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// atomicWrite stages content in a temp file beside target and renames it
// into place, so a crash mid-write never leaves a half-written file.
func atomicWrite(target string, content []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".sandbox-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, target)
}
