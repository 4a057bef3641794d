// Package config loads the process's YAML configuration file, applies a
// local .env override, and watches the file for live-reload while the
// process runs (spec SPEC_FULL.md §AMBIENT STACK).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/agentcore/server/internal/logging"
	"github.com/agentcore/server/internal/provider"
	"github.com/agentcore/server/pkg/types"
)

// ProviderSpec is provider.Spec's YAML-facing shape: a plain struct with
// yaml tags, kept separate from provider.Spec itself so this package
// remains the only one that knows about the on-disk file format.
type ProviderSpec struct {
	ID      string `yaml:"id"`
	Kind    string `yaml:"kind"`
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseUrl,omitempty"`
	Model   string `yaml:"model"`

	MaxTokens int `yaml:"maxTokens,omitempty"`

	UseAzure   bool   `yaml:"useAzure,omitempty"`
	APIVersion string `yaml:"apiVersion,omitempty"`

	UseBedrock bool   `yaml:"useBedrock,omitempty"`
	Region     string `yaml:"region,omitempty"`
	Profile    string `yaml:"profile,omitempty"`
}

// LogConfig configures internal/logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Config is the full on-disk shape of the server's configuration file.
type Config struct {
	Port        int    `yaml:"port"`
	BearerToken string `yaml:"bearerToken,omitempty"`

	DataDir     string `yaml:"dataDir"`
	SandboxRoot string `yaml:"sandboxRoot"`

	DefaultModel   string     `yaml:"defaultModel"`
	PermissionMode types.Mode `yaml:"permissionMode"`

	Providers []ProviderSpec `yaml:"providers"`
	Log       LogConfig      `yaml:"log"`
}

// Default returns the built-in settings used when no config file exists
// or a field is left unset. It reads no environment variables and
// configures no providers; Load applies the environment afterwards.
func Default() *Config {
	return &Config{
		Port:           8080,
		DataDir:        filepath.Join(GetPaths().Data, "agentcore.db"),
		SandboxRoot:    ".",
		DefaultModel:   "anthropic/claude-sonnet-4-20250514",
		PermissionMode: types.ModeAsk,
		Log:            LogConfig{Level: "info", Pretty: true},
	}
}

// Load reads path (if it exists), applying a .env file in the same
// directory first so a blank provider apiKey in the YAML can fall back
// to ANTHROPIC_API_KEY/OPENAI_API_KEY, then merges the parsed file over
// Default(). A missing config file is not an error — Default() plus
// environment variables is a valid configuration for local use.
func Load(path string) (*Config, error) {
	cfg := Default()

	dir := filepath.Dir(path)
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	mergeConfig(cfg, &fileCfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func mergeConfig(target, source *Config) {
	if source.Port != 0 {
		target.Port = source.Port
	}
	if source.BearerToken != "" {
		target.BearerToken = source.BearerToken
	}
	if source.DataDir != "" {
		target.DataDir = source.DataDir
	}
	if source.SandboxRoot != "" {
		target.SandboxRoot = source.SandboxRoot
	}
	if source.DefaultModel != "" {
		target.DefaultModel = source.DefaultModel
	}
	if source.PermissionMode != "" {
		target.PermissionMode = source.PermissionMode
	}
	if len(source.Providers) > 0 {
		target.Providers = source.Providers
	}
	if source.Log.Level != "" {
		target.Log.Level = source.Log.Level
	}
	if source.Log.Pretty {
		target.Log.Pretty = source.Log.Pretty
	}
}

// applyEnvOverrides lets the well-known provider API key variables fill
// in a provider's apiKey without it needing to appear in the YAML file
// at all, mirroring the teacher's config/env precedence.
func applyEnvOverrides(cfg *Config) {
	if model := os.Getenv("AGENTCORE_MODEL"); model != "" {
		cfg.DefaultModel = model
	}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.APIKey != "" {
			continue
		}
		switch p.Kind {
		case "anthropic":
			p.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai", "openai-compatible":
			p.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// ProviderSpecs converts the YAML-facing provider list into
// internal/provider's own Spec type.
func (c *Config) ProviderSpecs() []provider.Spec {
	specs := make([]provider.Spec, 0, len(c.Providers))
	for _, p := range c.Providers {
		specs = append(specs, provider.Spec{
			ID:         p.ID,
			Kind:       provider.Kind(p.Kind),
			APIKey:     p.APIKey,
			BaseURL:    p.BaseURL,
			Model:      p.Model,
			MaxTokens:  p.MaxTokens,
			UseAzure:   p.UseAzure,
			APIVersion: p.APIVersion,
			UseBedrock: p.UseBedrock,
			Region:     p.Region,
			Profile:    p.Profile,
		})
	}
	return specs
}

// Watcher live-reloads a Config from disk, matching the teacher's
// file-watching approach to picking up edited settings without a
// restart. Only Log and PermissionMode are safe to hot-swap — Port,
// DataDir, SandboxRoot, and Providers are read once at startup and
// require a restart, since swapping them would mean tearing down and
// rebuilding the Store/Sandbox FS/Provider registry underneath
// in-flight turns.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu  sync.RWMutex
	cfg *Config
}

// WatchConfig starts watching path for writes and returns a Watcher
// seeded with the config as of this call. Call Close when done.
func WatchConfig(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}

	w := &Watcher{path: path, watcher: fw, cfg: cfg}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			fresh, err := Load(w.path)
			if err != nil {
				logging.Logger.Warn().Err(err).Msg("config reload failed, keeping previous config")
				continue
			}
			w.mu.Lock()
			w.cfg.Log = fresh.Log
			w.cfg.PermissionMode = fresh.PermissionMode
			w.mu.Unlock()
			logging.Logger.Info().Msg("config reloaded")

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}

// Current returns the live Config snapshot.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	cp := *w.cfg
	return &cp
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
