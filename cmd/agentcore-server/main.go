// Package main is the process entrypoint: cobra subcommands wiring the
// Store, Event Bus/Hub/Writer, Sandbox FS, Tool Registry, Permission
// Gate, Provider registry, Sub-agent Executor, and Session Service into
// the HTTP/SSE Surface (spec SPEC_FULL.md §4, §6).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentcore/server/internal/agent"
	"github.com/agentcore/server/internal/config"
	"github.com/agentcore/server/internal/event"
	"github.com/agentcore/server/internal/executor"
	"github.com/agentcore/server/internal/logging"
	"github.com/agentcore/server/internal/permission"
	"github.com/agentcore/server/internal/provider"
	"github.com/agentcore/server/internal/sandbox"
	"github.com/agentcore/server/internal/server"
	"github.com/agentcore/server/internal/session"
	"github.com/agentcore/server/internal/store"
	"github.com/agentcore/server/internal/tool"
)

const version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "agentcore-server",
		Short: "Self-hosted AI agent server",
	}

	var port int
	var configPath string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, port)
		},
	}
	serveCmd.Flags().IntVar(&port, "port", 0, "override the configured port")
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to agentcore.yaml (default: XDG config dir)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("agentcore-server " + version)
		},
	}

	root.AddCommand(serveCmd, versionCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(configPath string, portOverride int) error {
	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return fmt.Errorf("create data directories: %w", err)
	}
	if configPath == "" {
		configPath = paths.ConfigFilePath()
	}

	watcher, err := config.WatchConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer watcher.Close()
	cfg := watcher.Current()
	if portOverride != 0 {
		cfg.Port = portOverride
	}

	logging.Init(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Output: os.Stderr,
		Pretty: cfg.Log.Pretty,
	})
	logging.Logger.Info().Str("config", configPath).Int("port", cfg.Port).Msg("starting agentcore-server")

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	now := func() int64 { return time.Now().UnixMilli() }
	nowSec := func() float64 { return float64(time.Now().UnixNano()) / 1e9 }

	bus := event.NewBus()
	hub := event.NewHub(st, bus, nowSec)
	writer := event.NewWriter(st, hub, nowSec)

	gate := permission.NewGate(st, writer, now)

	fs, err := sandbox.New(cfg.SandboxRoot, st, now)
	if err != nil {
		return fmt.Errorf("open sandbox fs: %w", err)
	}

	ctx := context.Background()
	providers, err := provider.InitializeProviders(ctx, cfg.ProviderSpecs(), cfg.DefaultModel)
	if err != nil {
		logging.Logger.Warn().Err(err).Msg("some providers failed to initialize")
	}

	tools := tool.DefaultRegistry(fs)
	agents := agent.NewRegistry()
	subExec := executor.NewSubagentExecutor(st, writer, gate, tools, providers, agents, cfg.SandboxRoot, now)
	tools.RegisterSpawnSubagent(subExec)

	sessions := session.NewService(st, writer, gate, tools, providers, fs, cfg.SandboxRoot)

	srvCfg := server.DefaultConfig()
	srvCfg.Port = cfg.Port
	srvCfg.BearerToken = cfg.BearerToken

	srv := server.New(srvCfg, st, sessions, gate, tools, providers, fs, hub, now)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Router(),
		ReadTimeout:  srvCfg.ReadTimeout,
		WriteTimeout: srvCfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Logger.Info().Str("addr", httpSrv.Addr).Msg("listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logging.Logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logging.Logger.Warn().Err(err).Msg("shutdown error")
	}
	return nil
}
