package sandbox

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a requested path escapes the sandbox root.
var ErrOutsideRoot = errors.New("sandbox: path escapes root")

// resolve turns a caller-supplied path (absolute or relative) into an
// absolute path confined to root, and the root-relative form used as the
// FileVersion/FileChange key. It never follows symlinks itself — that is
// left to the caller's os calls — but it does reject any input that,
// after lexical cleaning, would land outside root, which is sufficient to
// stop ".." traversal and absolute-path escape attempts.
func resolve(root, reqPath string) (abs string, rel string, err error) {
	if reqPath == "" {
		return "", "", fmt.Errorf("sandbox: empty path")
	}

	var joined string
	if filepath.IsAbs(reqPath) {
		joined = filepath.Clean(reqPath)
	} else {
		joined = filepath.Join(root, reqPath)
	}

	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %s", ErrOutsideRoot, reqPath)
	}

	rel, err = filepath.Rel(root, joined)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", ErrOutsideRoot, reqPath)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %s", ErrOutsideRoot, reqPath)
	}

	return joined, filepath.ToSlash(rel), nil
}
