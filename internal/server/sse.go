package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/agentcore/server/internal/event"
)

// sseWriter wraps http.ResponseWriter for SSE, using ResponseController
// for reliable flushing through middleware wrappers.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

// writeEnvelope writes one SSE message per the wire format of spec §6.
// id is omitted for envelopes that carry none (connected, heartbeat).
func (s *sseWriter) writeEnvelope(id string, eventName string, data []byte) error {
	if id != "" {
		if _, err := fmt.Fprintf(s.w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventName, data); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		s.flusher.Flush()
	}
	return nil
}

// streamEvents handles GET /event?session_id=<id>&since=<global_id>: the
// one long-lived route in this package (spec §4.8). It honors
// Last-Event-ID as an override for the since query parameter so a
// reconnecting client need not parse its own URL.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "session_id is required")
		return
	}

	since := r.URL.Query().Get("since")
	if lastID := r.Header.Get("Last-Event-ID"); lastID != "" {
		since = lastID
	}
	var sinceID int64
	if since != "" {
		var err error
		sinceID, err = strconv.ParseInt(since, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "since must be an integer")
			return
		}
	}

	sub, err := s.hub.Subscribe(r.Context(), sessionID, sinceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Stale:
			return
		case env, ok := <-sub.C:
			if !ok {
				return
			}
			if err := s.writeEnvelopeFor(sse, env); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeEnvelopeFor(sse *sseWriter, env event.Envelope) error {
	switch env.Kind {
	case "event":
		data, err := json.Marshal(env.Event)
		if err != nil {
			return nil // skip a malformed row rather than drop the connection
		}
		return sse.writeEnvelope(strconv.FormatInt(env.Event.ID, 10), "event", data)
	case "connected":
		return sse.writeEnvelope("", "connected", []byte(fmt.Sprintf(`{"server_sec":%g,"latest_id":%d}`, env.ServerSec, env.LatestID)))
	case "heartbeat":
		return sse.writeEnvelope("", "heartbeat", []byte(`{}`))
	default:
		return nil
	}
}
