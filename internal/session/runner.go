// Package session orchestrates suggestion sessions: one provider invocation
// per session, every observed event persisted in order, events mirrored onto
// an outbound channel for the transport layer, and cooperative cancellation
// converging on exactly one terminal event.
package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/inkwell-ai/inkwell/internal/cancel"
	"github.com/inkwell-ai/inkwell/internal/event"
	"github.com/inkwell-ai/inkwell/internal/logging"
	"github.com/inkwell-ai/inkwell/internal/provider"
	"github.com/inkwell-ai/inkwell/pkg/types"
)

// Store is the durable collaborator the runner writes through. All methods
// must be safe to call from the session's background goroutine and must
// preserve append order per session.
type Store interface {
	CreateSession(ctx context.Context, sess *types.SuggestionSession) error
	UpdateSessionStatus(ctx context.Context, id string, status types.SessionStatus) error
	UpdateSessionPayload(ctx context.Context, id string, payload map[string]any) error
	AppendEvent(ctx context.Context, sessionID string, kind types.EventKind, payload map[string]any) (*types.SuggestionEvent, error)
}

// deliveryBuffer absorbs provider events still in flight after the consumer
// slows down; persistence always happens before the enqueue, so the buffer
// never hides an unpersisted event.
const deliveryBuffer = 32

// Runner drives one provider invocation per session.
type Runner struct {
	store    Store
	registry *Registry
	bus      *event.Bus
	log      zerolog.Logger
}

// NewRunner creates a runner. bus may be nil in tests.
func NewRunner(store Store, bus *event.Bus) *Runner {
	return &Runner{
		store:    store,
		registry: NewRegistry(),
		bus:      bus,
		log:      logging.For("session.runner"),
	}
}

// Registry exposes the live-session registry.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Start creates a session, persists it in pending status, and spawns the
// background goroutine that drives the provider. The returned channel yields
// events in provider order and is closed after the terminal event; it is
// single-consumer and single-pass.
func (r *Runner) Start(
	ctx context.Context,
	chapterID int,
	prompt string,
	settings types.GenerationSettings,
	genCtx types.GenerationContext,
	prov provider.Provider,
) (string, <-chan provider.Event, error) {
	id := uuid.NewString()
	tok := cancel.NewToken()

	sess := &types.SuggestionSession{
		ID:        id,
		ChapterID: chapterID,
		Status:    types.StatusPending,
	}
	if err := r.store.CreateSession(ctx, sess); err != nil {
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}

	r.registry.Add(id, tok)
	r.publish(event.Event{Type: event.SessionCreated, Data: event.SessionCreatedData{Session: sess}})

	out := make(chan provider.Event, deliveryBuffer)
	req := provider.Request{Prompt: prompt, Settings: settings, Context: genCtx}
	go r.drive(id, req, prov, tok, out)

	r.log.Info().Str("sessionID", id).Int("chapterID", chapterID).Msg("session started")
	return id, out, nil
}

// Cancel trips the cancellation token for a live session. Best-effort and
// idempotent: unknown or completed sessions return false.
func (r *Runner) Cancel(sessionID string) bool {
	cancelled := r.registry.Cancel(sessionID)
	if cancelled {
		r.log.Info().Str("sessionID", sessionID).Msg("session cancel requested")
	}
	return cancelled
}

// drive consumes the provider stream. It owns the session's event append
// sequence and status for its whole lifetime. The session context is
// deliberately detached from the starting request: the transport signals
// teardown through the token, not through context cancellation.
func (r *Runner) drive(id string, req provider.Request, prov provider.Provider, tok *cancel.Token, out chan<- provider.Event) {
	ctx := context.Background()

	terminalKind := types.EventKind("")
	defer func() {
		close(out)
		r.registry.Remove(id)

		status := types.StatusPending
		if terminalKind == types.EventError {
			status = types.StatusRejected
		}
		r.publish(event.Event{Type: event.SuggestionCompleted, Data: event.SuggestionCompletedData{
			SessionID: id,
			Kind:      terminalKind,
			Status:    status,
		}})
		r.log.Info().Str("sessionID", id).Str("terminal", string(terminalKind)).Msg("session finished")
	}()

	kind, err := r.consume(ctx, id, req, prov, tok, out)
	terminalKind = kind
	if err == nil {
		if kind != "" {
			return
		}
		// The provider stopped without a terminal event: cancellation. The
		// session stays pending and the client still gets its done frame.
		terminalKind = types.EventDone
		if _, err := r.store.AppendEvent(ctx, id, types.EventDone, nil); err != nil {
			r.log.Error().Err(err).Str("sessionID", id).Msg("failed to persist synthetic done")
		}
		out <- provider.Done()
		return
	}

	// Internal fault: convert to a generic terminal error, never crash the
	// background goroutine silently.
	r.log.Error().Err(err).Str("sessionID", id).Msg("session drive failed")
	terminalKind = types.EventError
	ev := provider.Error("suggestion generation failed", "internal", false)
	if _, err := r.store.AppendEvent(ctx, id, types.EventError, errorPayload(ev.Err)); err != nil {
		r.log.Error().Err(err).Str("sessionID", id).Msg("failed to persist fault event")
	}
	if err := r.store.UpdateSessionStatus(ctx, id, types.StatusRejected); err != nil {
		r.log.Error().Err(err).Str("sessionID", id).Msg("failed to update session status")
	}
	out <- ev
}

// consume persists and forwards every provider event. It returns the
// terminal kind observed, or "" if the stream ended without one.
func (r *Runner) consume(
	ctx context.Context,
	id string,
	req provider.Request,
	prov provider.Provider,
	tok *cancel.Token,
	out chan<- provider.Event,
) (kind types.EventKind, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in provider drive: %v", p)
		}
	}()

	for ev := range prov.Stream(ctx, req, tok) {
		if err := r.record(ctx, id, ev); err != nil {
			return "", err
		}
		out <- ev

		if ev.Kind.Terminal() {
			return ev.Kind, nil
		}
	}

	return "", nil
}

// record persists one event and its session side effects before it is
// enqueued for delivery.
func (r *Runner) record(ctx context.Context, id string, ev provider.Event) error {
	switch ev.Kind {
	case types.EventDelta:
		if _, err := r.store.AppendEvent(ctx, id, types.EventDelta, map[string]any{"value": ev.Value}); err != nil {
			return err
		}
		r.publish(event.Event{Type: event.SuggestionDelta, Data: event.SuggestionDeltaData{
			SessionID: id,
			Value:     ev.Value,
		}})

	case types.EventUsage:
		usage := map[string]any{
			"promptTokens":     ev.Usage.PromptTokens,
			"completionTokens": ev.Usage.CompletionTokens,
			"totalTokens":      ev.Usage.TotalTokens,
		}
		if _, err := r.store.AppendEvent(ctx, id, types.EventUsage, usage); err != nil {
			return err
		}
		// Last write wins when a provider resends usage.
		if err := r.store.UpdateSessionPayload(ctx, id, map[string]any{"usage": usage}); err != nil {
			return err
		}

	case types.EventDone:
		if _, err := r.store.AppendEvent(ctx, id, types.EventDone, nil); err != nil {
			return err
		}

	case types.EventError:
		if _, err := r.store.AppendEvent(ctx, id, types.EventError, errorPayload(ev.Err)); err != nil {
			return err
		}
		if err := r.store.UpdateSessionStatus(ctx, id, types.StatusRejected); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown provider event kind %q", ev.Kind)
	}

	return nil
}

func (r *Runner) publish(e event.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

func errorPayload(info *provider.ErrorInfo) map[string]any {
	if info == nil {
		return map[string]any{"message": "unknown error"}
	}
	payload := map[string]any{"message": info.Message}
	if info.Code != "" {
		payload["code"] = info.Code
	}
	payload["retryable"] = info.Retryable
	return payload
}
