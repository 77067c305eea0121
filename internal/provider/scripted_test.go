package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/internal/cancel"
	"github.com/inkwell-ai/inkwell/pkg/types"
)

func TestScriptedProviderReplaysInOrder(t *testing.T) {
	p := NewScriptedProvider(
		Delta("Hello "),
		Delta("world"),
		UsageEvent(3, 2, 5),
		Done(),
	)

	events := collect(t, p.Stream(context.Background(), Request{}, cancel.NewToken()))

	assert.Equal(t, []types.EventKind{
		types.EventDelta, types.EventDelta, types.EventUsage, types.EventDone,
	}, kinds(events))
	assert.Equal(t, "Hello world", events[0].Value+events[1].Value)
}

func TestScriptedProviderSynthesizesDone(t *testing.T) {
	p := NewScriptedProvider(Delta("no terminator"))

	events := collect(t, p.Stream(context.Background(), Request{}, cancel.NewToken()))

	require.Len(t, events, 2)
	assert.Equal(t, types.EventDone, events[1].Kind)
}

func TestScriptedProviderStopsAfterTerminal(t *testing.T) {
	p := NewScriptedProvider(
		Error("boom", "", false),
		Delta("unreachable"),
	)

	events := collect(t, p.Stream(context.Background(), Request{}, cancel.NewToken()))

	require.Len(t, events, 1)
	assert.Equal(t, types.EventError, events[0].Kind)
}

func TestScriptedProviderCancelMidStream(t *testing.T) {
	p := &ScriptedProvider{
		Script: []Event{Delta("one"), Delta("two"), Delta("three"), Done()},
		Delay:  20 * time.Millisecond,
	}

	tok := cancel.NewToken()
	ch := p.Stream(context.Background(), Request{}, tok)

	ev, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, types.EventDelta, ev.Kind)

	tok.Cancel()

	for ev := range ch {
		assert.False(t, ev.Kind.Terminal(), "cancelled stream must stop quietly")
	}
}

func TestEchoScriptEndsInDone(t *testing.T) {
	script := EchoScript("Once upon a time there was a very long prompt that keeps going")

	require.NotEmpty(t, script)
	assert.Equal(t, types.EventDone, script[len(script)-1].Kind)
	assert.Equal(t, types.EventUsage, script[len(script)-2].Kind)
}
