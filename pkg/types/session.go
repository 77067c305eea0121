// Package types provides the core data types for the Inkwell server.
package types

// SessionStatus is the author's verdict on a suggestion session.
type SessionStatus string

const (
	StatusPending  SessionStatus = "pending"
	StatusAccepted SessionStatus = "accepted"
	StatusRejected SessionStatus = "rejected"
)

// SuggestionSession represents one end-to-end generation lifecycle for a chapter.
type SuggestionSession struct {
	ID        string         `json:"id"`
	ChapterID int            `json:"chapterID"`
	Status    SessionStatus  `json:"status"`
	Payload   map[string]any `json:"payload,omitempty"`
	Time      SessionTime    `json:"time"`
}

// SessionTime contains timestamps for a session, in Unix milliseconds.
type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// EventKind identifies a suggestion event record.
type EventKind string

const (
	EventDelta EventKind = "delta"
	EventUsage EventKind = "usage"
	EventDone  EventKind = "done"
	EventError EventKind = "error"
)

// Terminal reports whether the kind ends a session's event sequence.
func (k EventKind) Terminal() bool {
	return k == EventDone || k == EventError
}

// SuggestionEvent is one append-only record in a session's event log.
type SuggestionEvent struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionID"`
	Kind      EventKind      `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	Created   int64          `json:"created"`
}

// Usage summarizes token consumption reported by the provider.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}
