package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-ai/inkwell/internal/event"
	"github.com/inkwell-ai/inkwell/pkg/types"
)

// listSessions handles GET /session
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	if sessions == nil {
		sessions = []*types.SuggestionSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// getSession handles GET /session/{sessionID}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// listSessionEvents handles GET /session/{sessionID}/event
func (s *Server) listSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := s.store.GetSession(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	events, err := s.store.ListEvents(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	if events == nil {
		events = []*types.SuggestionEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// acceptSession handles POST /session/{sessionID}/accept
func (s *Server) acceptSession(w http.ResponseWriter, r *http.Request) {
	s.resolveSession(w, r, types.StatusAccepted)
}

// rejectSession handles POST /session/{sessionID}/reject
func (s *Server) rejectSession(w http.ResponseWriter, r *http.Request) {
	s.resolveSession(w, r, types.StatusRejected)
}

// resolveSession records the author's verdict on a pending suggestion. Only
// pending sessions can be resolved; re-resolving is a conflict.
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request, status types.SessionStatus) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}
	if sess.Status != types.StatusPending {
		writeError(w, http.StatusConflict, ErrCodeConflict, "session already resolved")
		return
	}
	if s.runner.Registry().Cancel(sessionID) {
		// A verdict on a still-streaming session also stops the stream.
		s.log.Info().Str("sessionID", sessionID).Msg("resolved session still streaming, cancelled")
	}

	if err := s.store.UpdateSessionStatus(r.Context(), sessionID, status); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	sess, err = s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	s.publish(event.Event{Type: event.SessionUpdated, Data: event.SessionUpdatedData{Session: sess}})
	writeJSON(w, http.StatusOK, sess)
}
