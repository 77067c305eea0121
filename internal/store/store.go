// Package store is the durable domain store: books, chapters, personas,
// suggestion sessions, and each session's append-only event log. It is a thin
// layer over the file-backed storage package; all methods are safe for
// concurrent use, including calls from session background goroutines.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/inkwell-ai/inkwell/internal/storage"
	"github.com/inkwell-ai/inkwell/pkg/types"
)

// ErrSessionTerminal is returned by AppendEvent once a session's log has
// ended in a done or error event.
var ErrSessionTerminal = errors.New("session already terminal")

// ErrNotFound mirrors the storage sentinel for callers that do not import it.
var ErrNotFound = storage.ErrNotFound

// sessionLog tracks the append state of one session's event log.
type sessionLog struct {
	nextSeq  int
	terminal bool
}

// Store provides durable access to all domain entities.
type Store struct {
	storage *storage.Storage

	mu   sync.Mutex
	logs map[string]*sessionLog
	ids  map[string]int // next numeric id per resource kind
}

// New creates a Store over the given storage backend.
func New(s *storage.Storage) *Store {
	return &Store{
		storage: s,
		logs:    make(map[string]*sessionLog),
		ids:     make(map[string]int),
	}
}

func now() int64 {
	return time.Now().UnixMilli()
}

// ---- suggestion sessions ----

// CreateSession persists a new session. ID and Status must be set by the
// caller; timestamps are filled in here.
func (s *Store) CreateSession(ctx context.Context, sess *types.SuggestionSession) error {
	ts := now()
	sess.Time = types.SessionTime{Created: ts, Updated: ts}

	if err := s.storage.Put(ctx, []string{"suggestion", sess.ID}, sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*types.SuggestionSession, error) {
	var sess types.SuggestionSession
	if err := s.storage.Get(ctx, []string{"suggestion", id}, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns all sessions, ordered by storage key.
func (s *Store) ListSessions(ctx context.Context) ([]*types.SuggestionSession, error) {
	var sessions []*types.SuggestionSession
	err := scanInto(ctx, s.storage, []string{"suggestion"}, &sessions)
	return sessions, err
}

// UpdateSessionStatus sets the session's lifecycle status.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status types.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}

	sess.Status = status
	sess.Time.Updated = now()
	return s.storage.Put(ctx, []string{"suggestion", id}, sess)
}

// UpdateSessionPayload merges the given keys into the session's result
// payload. Existing keys are overwritten (last write wins).
func (s *Store) UpdateSessionPayload(ctx context.Context, id string, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}

	if sess.Payload == nil {
		sess.Payload = make(map[string]any)
	}
	for k, v := range payload {
		sess.Payload[k] = v
	}
	sess.Time.Updated = now()
	return s.storage.Put(ctx, []string{"suggestion", id}, sess)
}

// AppendEvent appends one event to a session's log, preserving arrival order.
// Once a terminal event (done or error) has been appended, further appends
// fail with ErrSessionTerminal.
func (s *Store) AppendEvent(ctx context.Context, sessionID string, kind types.EventKind, payload map[string]any) (*types.SuggestionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.sessionLogLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if log.terminal {
		return nil, ErrSessionTerminal
	}

	ev := &types.SuggestionEvent{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Kind:      kind,
		Payload:   payload,
		Created:   now(),
	}

	key := fmt.Sprintf("%08d", log.nextSeq)
	if err := s.storage.Put(ctx, []string{"suggestion-event", sessionID, key}, ev); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	log.nextSeq++
	if kind.Terminal() {
		log.terminal = true
	}
	return ev, nil
}

// ListEvents returns a session's events in append order.
func (s *Store) ListEvents(ctx context.Context, sessionID string) ([]*types.SuggestionEvent, error) {
	var events []*types.SuggestionEvent
	err := scanInto(ctx, s.storage, []string{"suggestion-event", sessionID}, &events)
	return events, err
}

// sessionLogLocked returns the cached append state for a session, seeding it
// from disk on first touch so the terminal-once invariant survives restarts.
func (s *Store) sessionLogLocked(ctx context.Context, sessionID string) (*sessionLog, error) {
	if log, ok := s.logs[sessionID]; ok {
		return log, nil
	}

	log := &sessionLog{}
	events, err := s.ListEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	log.nextSeq = len(events)
	if len(events) > 0 && events[len(events)-1].Kind.Terminal() {
		log.terminal = true
	}

	s.logs[sessionID] = log
	return log, nil
}

// ---- books ----

// CreateBook persists a new book and assigns its ID.
func (s *Store) CreateBook(ctx context.Context, book *types.Book) error {
	id, err := s.nextID(ctx, "book")
	if err != nil {
		return err
	}
	book.ID = id
	ts := now()
	book.Time = types.Time{Created: ts, Updated: ts}
	return s.storage.Put(ctx, []string{"book", strconv.Itoa(id)}, book)
}

// GetBook retrieves a book by ID.
func (s *Store) GetBook(ctx context.Context, id int) (*types.Book, error) {
	var book types.Book
	if err := s.storage.Get(ctx, []string{"book", strconv.Itoa(id)}, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// ListBooks returns all books.
func (s *Store) ListBooks(ctx context.Context) ([]*types.Book, error) {
	var books []*types.Book
	err := scanInto(ctx, s.storage, []string{"book"}, &books)
	return books, err
}

// UpdateBook overwrites a book record.
func (s *Store) UpdateBook(ctx context.Context, book *types.Book) error {
	if !s.storage.Exists(ctx, []string{"book", strconv.Itoa(book.ID)}) {
		return storage.ErrNotFound
	}
	book.Time.Updated = now()
	return s.storage.Put(ctx, []string{"book", strconv.Itoa(book.ID)}, book)
}

// DeleteBook removes a book and its chapters and personas.
func (s *Store) DeleteBook(ctx context.Context, id int) error {
	if !s.storage.Exists(ctx, []string{"book", strconv.Itoa(id)}) {
		return storage.ErrNotFound
	}

	chapters, _ := s.ListChapters(ctx, id)
	for _, ch := range chapters {
		s.storage.Delete(ctx, []string{"chapter", strconv.Itoa(ch.ID)})
	}
	personas, _ := s.ListPersonas(ctx, id)
	for _, p := range personas {
		s.storage.Delete(ctx, []string{"persona", strconv.Itoa(p.ID)})
	}

	return s.storage.Delete(ctx, []string{"book", strconv.Itoa(id)})
}

// ---- chapters ----

// CreateChapter persists a new chapter and assigns its ID.
func (s *Store) CreateChapter(ctx context.Context, ch *types.Chapter) error {
	if !s.storage.Exists(ctx, []string{"book", strconv.Itoa(ch.BookID)}) {
		return storage.ErrNotFound
	}

	id, err := s.nextID(ctx, "chapter")
	if err != nil {
		return err
	}
	ch.ID = id
	ts := now()
	ch.Time = types.Time{Created: ts, Updated: ts}
	return s.storage.Put(ctx, []string{"chapter", strconv.Itoa(id)}, ch)
}

// GetChapter retrieves a chapter by ID.
func (s *Store) GetChapter(ctx context.Context, id int) (*types.Chapter, error) {
	var ch types.Chapter
	if err := s.storage.Get(ctx, []string{"chapter", strconv.Itoa(id)}, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// ListChapters returns a book's chapters sorted by chapter number.
func (s *Store) ListChapters(ctx context.Context, bookID int) ([]*types.Chapter, error) {
	var all []*types.Chapter
	if err := scanInto(ctx, s.storage, []string{"chapter"}, &all); err != nil {
		return nil, err
	}

	var chapters []*types.Chapter
	for _, ch := range all {
		if ch.BookID == bookID {
			chapters = append(chapters, ch)
		}
	}
	sortChapters(chapters)
	return chapters, nil
}

// UpdateChapter overwrites a chapter record.
func (s *Store) UpdateChapter(ctx context.Context, ch *types.Chapter) error {
	if !s.storage.Exists(ctx, []string{"chapter", strconv.Itoa(ch.ID)}) {
		return storage.ErrNotFound
	}
	ch.Time.Updated = now()
	return s.storage.Put(ctx, []string{"chapter", strconv.Itoa(ch.ID)}, ch)
}

// DeleteChapter removes a chapter.
func (s *Store) DeleteChapter(ctx context.Context, id int) error {
	if !s.storage.Exists(ctx, []string{"chapter", strconv.Itoa(id)}) {
		return storage.ErrNotFound
	}
	return s.storage.Delete(ctx, []string{"chapter", strconv.Itoa(id)})
}

// ---- personas ----

// CreatePersona persists a new persona and assigns its ID.
func (s *Store) CreatePersona(ctx context.Context, p *types.Persona) error {
	id, err := s.nextID(ctx, "persona")
	if err != nil {
		return err
	}
	p.ID = id
	ts := now()
	p.Time = types.Time{Created: ts, Updated: ts}
	return s.storage.Put(ctx, []string{"persona", strconv.Itoa(id)}, p)
}

// GetPersona retrieves a persona by ID.
func (s *Store) GetPersona(ctx context.Context, id int) (*types.Persona, error) {
	var p types.Persona
	if err := s.storage.Get(ctx, []string{"persona", strconv.Itoa(id)}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPersonas returns personas, filtered by book when bookID > 0.
func (s *Store) ListPersonas(ctx context.Context, bookID int) ([]*types.Persona, error) {
	var all []*types.Persona
	if err := scanInto(ctx, s.storage, []string{"persona"}, &all); err != nil {
		return nil, err
	}
	if bookID <= 0 {
		return all, nil
	}

	var personas []*types.Persona
	for _, p := range all {
		if p.BookID == bookID {
			personas = append(personas, p)
		}
	}
	return personas, nil
}

// UpdatePersona overwrites a persona record.
func (s *Store) UpdatePersona(ctx context.Context, p *types.Persona) error {
	if !s.storage.Exists(ctx, []string{"persona", strconv.Itoa(p.ID)}) {
		return storage.ErrNotFound
	}
	p.Time.Updated = now()
	return s.storage.Put(ctx, []string{"persona", strconv.Itoa(p.ID)}, p)
}

// DeletePersona removes a persona.
func (s *Store) DeletePersona(ctx context.Context, id int) error {
	if !s.storage.Exists(ctx, []string{"persona", strconv.Itoa(id)}) {
		return storage.ErrNotFound
	}
	return s.storage.Delete(ctx, []string{"persona", strconv.Itoa(id)})
}

// nextID allocates the next numeric id for a resource kind, seeding the
// counter from existing keys on first use.
func (s *Store) nextID(ctx context.Context, kind string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := s.ids[kind]
	if !ok {
		keys, err := s.storage.List(ctx, []string{kind})
		if err != nil {
			return 0, err
		}
		max := 0
		for _, k := range keys {
			if n, err := strconv.Atoi(k); err == nil && n > max {
				max = n
			}
		}
		next = max + 1
	}

	s.ids[kind] = next + 1
	return next, nil
}
