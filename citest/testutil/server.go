// Package testutil spins up a real agentcore server over an in-memory
// store for the citest Ginkgo suites, mirroring the teacher's
// citest/testutil.StartTestServer but over this repo's component set
// (no subprocess, no mock-LLM harness: the e2e specs exercise HTTP/SSE
// behavior that doesn't require driving the agent loop end to end).
package testutil

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"

	"github.com/agentcore/server/internal/event"
	"github.com/agentcore/server/internal/permission"
	"github.com/agentcore/server/internal/provider"
	"github.com/agentcore/server/internal/sandbox"
	"github.com/agentcore/server/internal/server"
	"github.com/agentcore/server/internal/session"
	"github.com/agentcore/server/internal/store"
	"github.com/agentcore/server/internal/tool"
	"github.com/agentcore/server/pkg/types"
)

// TestServer wraps a live httptest.Server over a real Server/Store pair.
type TestServer struct {
	BaseURL string
	Store   *store.Store

	httpSrv *httptest.Server
}

// StartTestServer builds the full component graph (Store, Event
// Bus/Hub/Writer, Permission Gate, Sandbox FS, Tool Registry, empty
// Provider Registry, Session Service, Server) and serves it from a real
// listening port, the way the teacher's StartTestServer does.
func StartTestServer(sandboxRoot string) (*TestServer, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.SetPermissionMode(context.Background(), types.ModeAllow); err != nil {
		st.Close()
		return nil, fmt.Errorf("set permission mode: %w", err)
	}

	now := func() int64 { return 0 }
	nowF := func() float64 { return 0 }

	bus := event.NewBus()
	hub := event.NewHub(st, bus, nowF)
	writer := event.NewWriter(st, hub, nowF)
	gate := permission.NewGate(st, writer, now)
	tools := tool.NewRegistry()
	providers := provider.NewRegistry("fake-model")

	fs, err := sandbox.New(sandboxRoot, st, now)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open sandbox fs: %w", err)
	}

	svc := session.NewService(st, writer, gate, tools, providers, fs, sandboxRoot)

	cfg := server.DefaultConfig()
	cfg.EnableCORS = false
	srv := server.New(cfg, st, svc, gate, tools, providers, fs, hub, now)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	httpSrv := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Router()},
	}
	httpSrv.Start()

	return &TestServer{BaseURL: httpSrv.URL, Store: st, httpSrv: httpSrv}, nil
}

// Stop tears down the listener and the underlying store.
func (ts *TestServer) Stop() {
	ts.httpSrv.Close()
	ts.Store.Close()
}
