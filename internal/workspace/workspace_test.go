package workspace

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetect_NonGitDirectory(t *testing.T) {
	dir := t.TempDir()
	info := Detect(dir)

	require.Empty(t, info.VCS)
	require.Empty(t, info.Branch)
	require.NotEmpty(t, info.Root)
}

func TestDetect_GitDirectory(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run())
	}
	run("init", "-q", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0644))
	run("add", ".")
	run("commit", "-q", "-m", "init")

	info := Detect(dir)
	require.Equal(t, "git", info.VCS)
	require.Equal(t, "main", info.Branch)
}

func TestDetect_SubdirectoryOfGitRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	cmd := exec.Command("git", "init", "-q")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0755))

	info := Detect(sub)
	require.Equal(t, "git", info.VCS)
}
