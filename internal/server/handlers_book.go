package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-ai/inkwell/internal/event"
	"github.com/inkwell-ai/inkwell/internal/store"
	"github.com/inkwell-ai/inkwell/pkg/types"
)

// CreateBookRequest represents the request body for creating a book.
type CreateBookRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
}

// UpdateBookRequest represents the request body for updating a book.
// Nil fields are left untouched.
type UpdateBookRequest struct {
	Title       *string `json:"title,omitempty"`
	Author      *string `json:"author,omitempty"`
	Description *string `json:"description,omitempty"`
}

// CreateChapterRequest represents the request body for creating a chapter.
type CreateChapterRequest struct {
	Title   string `json:"title"`
	Number  int    `json:"number"`
	Content string `json:"content,omitempty"`
}

// UpdateChapterRequest represents the request body for updating a chapter.
type UpdateChapterRequest struct {
	Title   *string `json:"title,omitempty"`
	Number  *int    `json:"number,omitempty"`
	Content *string `json:"content,omitempty"`
}

// urlInt parses a numeric chi URL parameter.
func urlInt(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	return id, err == nil && id > 0
}

// listBooks handles GET /book
func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.store.ListBooks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	if books == nil {
		books = []*types.Book{}
	}
	writeJSON(w, http.StatusOK, books)
}

// createBook handles POST /book
func (s *Server) createBook(w http.ResponseWriter, r *http.Request) {
	var req CreateBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "title is required")
		return
	}

	book := &types.Book{
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
	}
	if err := s.store.CreateBook(r.Context(), book); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	s.publish(event.Event{Type: event.BookUpdated, Data: event.BookUpdatedData{Book: book}})
	writeJSON(w, http.StatusOK, book)
}

// getBook handles GET /book/{bookID}
func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(r, "bookID")
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid book id")
		return
	}

	book, err := s.store.GetBook(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Book not found")
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// updateBook handles PATCH /book/{bookID}
func (s *Server) updateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(r, "bookID")
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid book id")
		return
	}

	var req UpdateBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	book, err := s.store.GetBook(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Book not found")
		return
	}

	if req.Title != nil {
		book.Title = *req.Title
	}
	if req.Author != nil {
		book.Author = *req.Author
	}
	if req.Description != nil {
		book.Description = *req.Description
	}
	if err := s.store.UpdateBook(r.Context(), book); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	s.publish(event.Event{Type: event.BookUpdated, Data: event.BookUpdatedData{Book: book}})
	writeJSON(w, http.StatusOK, book)
}

// deleteBook handles DELETE /book/{bookID}
func (s *Server) deleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(r, "bookID")
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid book id")
		return
	}

	if err := s.store.DeleteBook(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

// listChapters handles GET /book/{bookID}/chapter
func (s *Server) listChapters(w http.ResponseWriter, r *http.Request) {
	bookID, ok := urlInt(r, "bookID")
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid book id")
		return
	}

	chapters, err := s.store.ListChapters(r.Context(), bookID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	if chapters == nil {
		chapters = []*types.Chapter{}
	}
	writeJSON(w, http.StatusOK, chapters)
}

// createChapter handles POST /book/{bookID}/chapter
func (s *Server) createChapter(w http.ResponseWriter, r *http.Request) {
	bookID, ok := urlInt(r, "bookID")
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid book id")
		return
	}

	var req CreateChapterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "title is required")
		return
	}

	ch := &types.Chapter{
		BookID:  bookID,
		Title:   req.Title,
		Number:  req.Number,
		Content: req.Content,
	}
	if err := s.store.CreateChapter(r.Context(), ch); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	s.publish(event.Event{Type: event.ChapterUpdated, Data: event.ChapterUpdatedData{Chapter: ch}})
	writeJSON(w, http.StatusOK, ch)
}

// getChapter handles GET /chapter/{chapterID}
func (s *Server) getChapter(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(r, "chapterID")
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid chapter id")
		return
	}

	ch, err := s.store.GetChapter(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Chapter not found")
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// updateChapter handles PATCH /chapter/{chapterID}
func (s *Server) updateChapter(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(r, "chapterID")
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid chapter id")
		return
	}

	var req UpdateChapterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	ch, err := s.store.GetChapter(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Chapter not found")
		return
	}

	if req.Title != nil {
		ch.Title = *req.Title
	}
	if req.Number != nil {
		ch.Number = *req.Number
	}
	if req.Content != nil {
		ch.Content = *req.Content
	}
	if err := s.store.UpdateChapter(r.Context(), ch); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	s.publish(event.Event{Type: event.ChapterUpdated, Data: event.ChapterUpdatedData{Chapter: ch}})
	writeJSON(w, http.StatusOK, ch)
}

// deleteChapter handles DELETE /chapter/{chapterID}
func (s *Server) deleteChapter(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt(r, "chapterID")
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid chapter id")
		return
	}

	if err := s.store.DeleteChapter(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Chapter not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

// publish forwards an event to the bus when one is wired.
func (s *Server) publish(e event.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}
