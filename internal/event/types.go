package event

import "github.com/inkwell-ai/inkwell/pkg/types"

// EventType represents the type of event.
type EventType string

const (
	SessionCreated      EventType = "session.created"
	SessionUpdated      EventType = "session.updated"
	SuggestionDelta     EventType = "suggestion.delta"
	SuggestionCompleted EventType = "suggestion.completed"
	BookUpdated         EventType = "book.updated"
	ChapterUpdated      EventType = "chapter.updated"
)

// Event represents an event to be published.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// SessionCreatedData accompanies SessionCreated.
type SessionCreatedData struct {
	Session *types.SuggestionSession `json:"session"`
}

// SessionUpdatedData accompanies SessionUpdated.
type SessionUpdatedData struct {
	Session *types.SuggestionSession `json:"session"`
}

// SuggestionDeltaData accompanies SuggestionDelta.
type SuggestionDeltaData struct {
	SessionID string `json:"sessionID"`
	Value     string `json:"value"`
}

// SuggestionCompletedData accompanies SuggestionCompleted. Kind is the
// terminal event kind the session ended with.
type SuggestionCompletedData struct {
	SessionID string              `json:"sessionID"`
	Kind      types.EventKind     `json:"kind"`
	Status    types.SessionStatus `json:"status"`
}

// BookUpdatedData accompanies BookUpdated.
type BookUpdatedData struct {
	Book *types.Book `json:"book"`
}

// ChapterUpdatedData accompanies ChapterUpdated.
type ChapterUpdatedData struct {
	Chapter *types.Chapter `json:"chapter"`
}
