package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes wires the route tree to spec §6's exact surface — no
// LSP/VCS/MCP/formatter/TUI routes, since none of those components
// exist in this repository (see DESIGN.md for the per-package
// justification).
func (s *Server) setupRoutes() {
	r := s.router

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Patch("/", s.updateSession)
			r.Delete("/", s.deleteSession)

			r.Post("/turns", s.createTurn)
			r.Post("/cancel", s.cancelTurn)
			r.Get("/events", s.listEvents)

			r.Put("/settings", s.setSessionSettings)
			r.Delete("/settings", s.deleteSessionSettings)

			r.Get("/permissions/pending", s.listPendingPermissions)

			r.Get("/fs/tree", s.fsTree)
			r.Get("/fs/read", s.fsRead)
			r.Get("/fs/versions", s.fsVersions)
			r.Post("/fs/rollback", s.fsRollback)

			r.Get("/context", s.listContext)
			r.Post("/context/pin", s.pinContext)
			r.Post("/context/unpin", s.unpinContext)
			r.Post("/context/set_pinned_ref", s.setPinnedRef)

			r.Get("/export.json", s.exportJSON)
			r.Get("/export.md", s.exportMarkdown)
		})
	})

	r.Get("/fs/version/{versionID}", s.fsVersion)

	r.Get("/event", s.streamEvents)

	r.Post("/permissions/{requestID}/resolve", s.resolvePermission)

	r.Get("/permissions/mode", s.getPermissionMode)
	r.Post("/permissions/mode", s.setPermissionMode)

	r.Get("/tools", s.listTools)
	r.Put("/tools/{name}/policy", s.setToolPolicy)
}
