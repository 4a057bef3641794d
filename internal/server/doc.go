// Package server implements the HTTP/SSE Surface (spec §4.8, §6): the
// only way a client observes or drives a session — create sessions, send
// turns, cancel, resolve permissions, browse the sandboxed filesystem,
// and subscribe to the event stream, either as a point-in-time JSON page
// or as a live SSE connection.
//
// The router is built on chi, matching the teacher's setupMiddleware/
// setupRoutes split: RequestID, Logger, Recoverer, RealIP, then CORS.
// Handlers are thin — they validate the request, call into
// session.Service/store.Store/sandbox.FS/permission.Gate, and translate
// the result into the JSON envelope shapes response.go defines. All the
// actual state transitions happen in the packages those calls reach;
// nothing here mutates a Session, Turn, or file outside of those calls.
package server
