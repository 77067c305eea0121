// Package provider abstracts text generation backends behind a streaming
// capability interface. A provider turns one prompt into an ordered sequence
// of events that always ends in exactly one terminal event (done or error),
// delivered over a channel that is closed afterwards.
//
// Cancellation is cooperative: providers poll the token at every suspension
// point and, when tripped, stop the sequence quietly without a terminal
// event. The caller is responsible for synthesizing the terminal in that
// case, which is how it distinguishes cancellation from completion.
package provider

import (
	"context"

	"github.com/inkwell-ai/inkwell/internal/cancel"
	"github.com/inkwell-ai/inkwell/pkg/types"
)

// Event is one element of a generation stream.
type Event struct {
	Kind  types.EventKind
	Value string       // delta content, set when Kind == EventDelta
	Usage *types.Usage // set when Kind == EventUsage
	Err   *ErrorInfo   // set when Kind == EventError
}

// ErrorInfo describes a terminal provider failure.
type ErrorInfo struct {
	Message   string
	Code      string
	Retryable bool
}

// Delta constructs a delta event.
func Delta(value string) Event {
	return Event{Kind: types.EventDelta, Value: value}
}

// UsageEvent constructs a usage event.
func UsageEvent(prompt, completion, total int) Event {
	return Event{Kind: types.EventUsage, Usage: &types.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      total,
	}}
}

// Done constructs the success terminal event.
func Done() Event {
	return Event{Kind: types.EventDone}
}

// Error constructs the failure terminal event.
func Error(message, code string, retryable bool) Event {
	return Event{Kind: types.EventError, Err: &ErrorInfo{
		Message:   message,
		Code:      code,
		Retryable: retryable,
	}}
}

// Request carries everything a provider needs for one invocation.
// Settings and Context are immutable value objects.
type Request struct {
	Prompt   string
	Settings types.GenerationSettings
	Context  types.GenerationContext
}

// Provider is the generation capability. Each Stream call is a fresh upstream
// invocation; the returned channel is single-consumer and not restartable.
//
// The sequence ends in exactly one terminal event unless the token was
// tripped, in which case the channel may close with no terminal at all.
// Providers own their upstream I/O, parsing, and retry policy; expected
// failures (HTTP errors, exhausted retries) surface as a single error event,
// never as something the caller must recover from.
type Provider interface {
	Stream(ctx context.Context, req Request, tok *cancel.Token) <-chan Event
}
