package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/server/pkg/types"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, types.ModeAsk, cfg.PermissionMode)
	require.Equal(t, "anthropic/claude-sonnet-4-20250514", cfg.DefaultModel)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentcore.yaml")
	yamlContent := `
port: 9090
permissionMode: allow
defaultModel: openai/gpt-4o
providers:
  - id: anthropic
    kind: anthropic
    model: claude-sonnet-4-20250514
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, types.ModeAllow, cfg.PermissionMode)
	require.Equal(t, "openai/gpt-4o", cfg.DefaultModel)
	require.Len(t, cfg.Providers, 1)
	require.Equal(t, "anthropic", cfg.Providers[0].ID)
}

func TestLoad_EnvOverridesProviderAPIKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentcore.yaml")
	yamlContent := `
providers:
  - id: anthropic
    kind: anthropic
    model: claude-sonnet-4-20250514
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	t.Setenv("ANTHROPIC_API_KEY", "test-key-123")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "test-key-123", cfg.Providers[0].APIKey)
}

func TestLoad_DotEnvFileIsApplied(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ANTHROPIC_API_KEY=from-dotenv\n"), 0644))
	path := filepath.Join(dir, "agentcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
providers:
  - id: anthropic
    kind: anthropic
`), 0644))

	os.Unsetenv("ANTHROPIC_API_KEY")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", cfg.Providers[0].APIKey)
}

func TestProviderSpecs_ConvertsYAMLShape(t *testing.T) {
	cfg := Default()
	cfg.Providers = []ProviderSpec{
		{ID: "anthropic", Kind: "anthropic", APIKey: "k", Model: "claude-sonnet-4-20250514", MaxTokens: 8192},
	}
	specs := cfg.ProviderSpecs()
	require.Len(t, specs, 1)
	require.Equal(t, "anthropic", specs[0].ID)
	require.Equal(t, 8192, specs[0].MaxTokens)
}

func TestWatchConfig_ReloadsLogLevelAndPermissionMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("permissionMode: ask\nlog:\n  level: info\n"), 0644))

	w, err := WatchConfig(path)
	require.NoError(t, err)
	defer w.Close()
	require.Equal(t, types.ModeAsk, w.Current().PermissionMode)

	require.NoError(t, os.WriteFile(path, []byte("permissionMode: allow\nlog:\n  level: debug\n"), 0644))

	require.Eventually(t, func() bool {
		return w.Current().PermissionMode == types.ModeAllow
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "debug", w.Current().Log.Level)
}

func TestGetPaths_UsesXDGEnvWhenSet(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
	paths := GetPaths()
	require.Equal(t, "/tmp/xdg-config/agentcore", paths.Config)
}
