package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/inkwell-ai/inkwell/internal/event"
)

// feedEvent is the wire shape of one SSE payload.
type feedEvent struct {
	Type       event.EventType `json:"type"`
	Properties any             `json:"properties"`
}

// sseHeartbeatInterval is how often an idle feed emits a comment frame to
// keep intermediaries from timing the connection out.
const sseHeartbeatInterval = 30 * time.Second

// sseWriter wraps http.ResponseWriter for SSE framing.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

func (s *sseWriter) writeEvent(data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(s.w, "event: message\ndata: %s\n\n", jsonData)
	if err != nil {
		return err
	}

	// ResponseController flushes through middleware wrappers; fall back to
	// the plain flusher if it cannot.
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}

	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// handleEvents streams the event feed over SSE. An optional sessionID query
// parameter narrows the feed to one suggestion session.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionID")

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

	// Small buffer keeps latency low; a stalled client drops frames rather
	// than backing up the bus.
	events := make(chan event.Event, 10)
	unsub := s.bus.SubscribeAll(func(e event.Event) {
		if sessionID != "" && !eventBelongsToSession(e, sessionID) {
			return
		}
		select {
		case events <- e:
		default:
			s.log.Warn().Str("eventType", string(e.Type)).Msg("SSE event dropped: channel full")
		}
	})
	defer unsub()

	// The subscription is live once the client sees this frame.
	if err := sse.writeEvent(feedEvent{Type: "server.connected", Properties: map[string]any{}}); err != nil {
		return
	}

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			if err := sse.writeEvent(feedEvent{Type: e.Type, Properties: e.Data}); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

// eventBelongsToSession reports whether an event concerns the given
// suggestion session.
func eventBelongsToSession(e event.Event, sessionID string) bool {
	switch data := e.Data.(type) {
	case event.SessionCreatedData:
		return data.Session != nil && data.Session.ID == sessionID
	case event.SessionUpdatedData:
		return data.Session != nil && data.Session.ID == sessionID
	case event.SuggestionDeltaData:
		return data.SessionID == sessionID
	case event.SuggestionCompletedData:
		return data.SessionID == sessionID
	}
	return false
}
