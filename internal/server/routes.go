package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Suggestion streaming (WebSocket)
	r.Get("/suggest", s.handleSuggest)

	// Event feed (SSE)
	r.Get("/event", s.handleEvents)

	// Books and nested chapters
	r.Route("/book", func(r chi.Router) {
		r.Get("/", s.listBooks)
		r.Post("/", s.createBook)

		r.Route("/{bookID}", func(r chi.Router) {
			r.Get("/", s.getBook)
			r.Patch("/", s.updateBook)
			r.Delete("/", s.deleteBook)

			r.Get("/chapter", s.listChapters)
			r.Post("/chapter", s.createChapter)
			r.Get("/persona", s.listPersonas)
		})
	})

	r.Route("/chapter/{chapterID}", func(r chi.Router) {
		r.Get("/", s.getChapter)
		r.Patch("/", s.updateChapter)
		r.Delete("/", s.deleteChapter)
	})

	// Personas
	r.Route("/persona", func(r chi.Router) {
		r.Get("/", s.listAllPersonas)
		r.Post("/", s.createPersona)

		r.Route("/{personaID}", func(r chi.Router) {
			r.Get("/", s.getPersona)
			r.Patch("/", s.updatePersona)
			r.Delete("/", s.deletePersona)
		})
	})

	// Suggestion sessions (read side + author verdict)
	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Get("/event", s.listSessionEvents)
			r.Post("/accept", s.acceptSession)
			r.Post("/reject", s.rejectSession)
		})
	})
}
