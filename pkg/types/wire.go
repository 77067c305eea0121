package types

// Wire messages exchanged over the suggestion WebSocket. Every frame is a
// JSON object with a "type" discriminator.

// Client message types.
const (
	WireStart = "start"
	WireStop  = "stop"
)

// Server message types.
const (
	WireStarted = "started"
	WireDelta   = "delta"
	WireUsage   = "usage"
	WireDone    = "done"
	WireError   = "error"
)

// StartMessage begins a suggestion session on a connection.
type StartMessage struct {
	Type      string              `json:"type"`
	ChapterID int                 `json:"chapter_id"`
	Prompt    string              `json:"prompt"`
	Settings  *GenerationSettings `json:"settings,omitempty"`
	Context   *GenerationContext  `json:"context,omitempty"`
}

// StartedMessage acknowledges an accepted start.
type StartedMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// DeltaMessage carries one content fragment.
type DeltaMessage struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// UsageMessage reports token consumption.
type UsageMessage struct {
	Type             string `json:"type"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// DoneMessage is the success terminal frame.
type DoneMessage struct {
	Type string `json:"type"`
}

// ErrorMessage is the failure terminal frame, also used for protocol errors.
type ErrorMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Retryable *bool  `json:"retryable,omitempty"`
}
