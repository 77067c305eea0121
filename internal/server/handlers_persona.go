package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/inkwell-ai/inkwell/internal/store"
	"github.com/inkwell-ai/inkwell/pkg/types"
)

// CreatePersonaRequest represents the request body for creating a persona.
type CreatePersonaRequest struct {
	BookID      int    `json:"bookID"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Traits      string `json:"traits,omitempty"`
}

// UpdatePersonaRequest represents the request body for updating a persona.
type UpdatePersonaRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Traits      *string `json:"traits,omitempty"`
}

// listAllPersonas handles GET /persona
func (s *Server) listAllPersonas(w http.ResponseWriter, r *http.Request) {
	personas, err := s.store.ListPersonas(r.Context(), 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	if personas == nil {
		personas = []*types.Persona{}
	}
	writeJSON(w, http.StatusOK, personas)
}

// listPersonas handles GET /book/{bookID}/persona
func (s *Server) listPersonas(w http.ResponseWriter, r *http.Request) {
	bookID, ok := urlInt(r, "bookID")
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid book id")
		return
	}

	personas, err := s.store.ListPersonas(r.Context(), bookID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	if personas == nil {
		personas = []*types.Persona{}
	}
	writeJSON(w, http.StatusOK, personas)
}

// createPersona handles POST /persona
func (s *Server) createPersona(w http.ResponseWriter, r *http.Request) {
	var req CreatePersonaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "name is required")
		return
	}
	if req.BookID > 0 {
		if _, err := s.store.GetBook(r.Context(), req.BookID); err != nil {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Book not found")
			return
		}
	}

	p := &types.Persona{
		BookID:      req.BookID,
		Name:        req.Name,
		Description: req.Description,
		Traits:      req.Traits,
	}
	if err := s.store.CreatePersona(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// getPersona handles GET /persona/{personaID}
func (s *Server) getPersona(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(r, "personaID")
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid persona id")
		return
	}

	p, err := s.store.GetPersona(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Persona not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// updatePersona handles PATCH /persona/{personaID}
func (s *Server) updatePersona(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(r, "personaID")
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid persona id")
		return
	}

	var req UpdatePersonaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	p, err := s.store.GetPersona(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Persona not found")
		return
	}

	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Traits != nil {
		p.Traits = *req.Traits
	}
	if err := s.store.UpdatePersona(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// deletePersona handles DELETE /persona/{personaID}
func (s *Server) deletePersona(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(r, "personaID")
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid persona id")
		return
	}

	if err := s.store.DeletePersona(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Persona not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}
