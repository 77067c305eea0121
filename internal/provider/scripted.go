package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-ai/inkwell/internal/cancel"
)

// ScriptedProvider plays back a fixed event sequence. It is the deterministic
// counterpart to HTTPProvider, used in tests and in offline development mode.
type ScriptedProvider struct {
	// Script is the event sequence to replay. If it does not end in a
	// terminal event, a done event is synthesized.
	Script []Event
	// ScriptFn, when set, builds the sequence per request instead of Script.
	ScriptFn func(Request) []Event
	// Delay, when positive, is a pause before each event, giving callers a
	// window to cancel mid-stream.
	Delay time.Duration
}

// NewScriptedProvider creates a provider that replays the given events.
func NewScriptedProvider(events ...Event) *ScriptedProvider {
	return &ScriptedProvider{Script: events}
}

// EchoScript builds a small canned script that restates the prompt. Used by
// the offline development provider so the wire behaves end to end without an
// upstream endpoint.
func EchoScript(prompt string) []Event {
	short := prompt
	if len(short) > 40 {
		short = short[:40] + "..."
	}
	words := strings.Fields(fmt.Sprintf("Continuing from %q: the story presses on.", short))

	var script []Event
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		script = append(script, Delta(w))
	}
	script = append(script, UsageEvent(len(words), len(words), 2*len(words)), Done())
	return script
}

// Stream implements Provider.
func (p *ScriptedProvider) Stream(ctx context.Context, req Request, tok *cancel.Token) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)

		script := p.Script
		if p.ScriptFn != nil {
			script = p.ScriptFn(req)
		}

		for _, ev := range script {
			if tok.Cancelled() {
				return
			}
			if p.Delay > 0 {
				select {
				case <-time.After(p.Delay):
				case <-tok.Done():
					return
				case <-ctx.Done():
					return
				}
			}

			select {
			case out <- ev:
			case <-tok.Done():
				return
			case <-ctx.Done():
				return
			}

			if ev.Kind.Terminal() {
				return
			}
		}

		// Script ended without a terminator.
		select {
		case out <- Done():
		case <-tok.Done():
		case <-ctx.Done():
		}
	}()
	return out
}
