package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/internal/cancel"
	"github.com/inkwell-ai/inkwell/internal/provider"
	"github.com/inkwell-ai/inkwell/internal/storage"
	"github.com/inkwell-ai/inkwell/internal/store"
	"github.com/inkwell-ai/inkwell/pkg/types"
)

func newTestRunner(t *testing.T) (*Runner, *store.Store) {
	t.Helper()
	st := store.New(storage.New(t.TempDir()))
	return NewRunner(st, nil), st
}

func drain(t *testing.T, ch <-chan provider.Event) []provider.Event {
	t.Helper()
	var events []provider.Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out draining session events")
		}
	}
}

func eventKinds(events []provider.Event) []types.EventKind {
	out := make([]types.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

// panicProvider blows up inside the runner's drive goroutine to exercise the
// internal-fault path.
type panicProvider struct{}

func (panicProvider) Stream(ctx context.Context, req provider.Request, tok *cancel.Token) <-chan provider.Event {
	panic("upstream state corrupted")
}

// bogusProvider emits an event kind the runner does not understand.
type bogusProvider struct{}

func (bogusProvider) Stream(ctx context.Context, req provider.Request, tok *cancel.Token) <-chan provider.Event {
	out := make(chan provider.Event, 1)
	out <- provider.Event{Kind: types.EventKind("surprise")}
	close(out)
	return out
}

func TestRunnerHappyPath(t *testing.T) {
	r, st := newTestRunner(t)
	ctx := context.Background()

	prov := provider.NewScriptedProvider(
		provider.Delta("Hello "),
		provider.Delta("world"),
		provider.UsageEvent(3, 2, 5),
		provider.Done(),
	)

	id, ch, err := r.Start(ctx, 1, "continue the story", types.GenerationSettings{}, types.GenerationContext{}, prov)
	require.NoError(t, err)

	events := drain(t, ch)
	assert.Equal(t, []types.EventKind{
		types.EventDelta, types.EventDelta, types.EventUsage, types.EventDone,
	}, eventKinds(events))

	sess, err := st.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, sess.Status)

	usage, ok := sess.Payload["usage"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 5, usage["totalTokens"])

	persisted, err := st.ListEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, persisted, 4)
	assert.Equal(t, types.EventDone, persisted[3].Kind)
	assert.Equal(t, "Hello ", persisted[0].Payload["value"])
	assert.Equal(t, "world", persisted[1].Payload["value"])
}

func TestRunnerProviderError(t *testing.T) {
	r, st := newTestRunner(t)
	ctx := context.Background()

	prov := provider.NewScriptedProvider(
		provider.Delta("Oops"),
		provider.Error("boom", "network", true),
	)

	id, ch, err := r.Start(ctx, 1, "p", types.GenerationSettings{}, types.GenerationContext{}, prov)
	require.NoError(t, err)

	events := drain(t, ch)
	assert.Equal(t, []types.EventKind{types.EventDelta, types.EventError}, eventKinds(events))

	sess, err := st.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, sess.Status)

	persisted, err := st.ListEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	assert.Equal(t, types.EventError, persisted[1].Kind)
	assert.Equal(t, "boom", persisted[1].Payload["message"])
}

func TestRunnerCancelMidStream(t *testing.T) {
	r, st := newTestRunner(t)
	ctx := context.Background()

	prov := &provider.ScriptedProvider{
		Script: []provider.Event{
			provider.Delta("one"),
			provider.Delta("two"),
			provider.Delta("three"),
			provider.Done(),
		},
		Delay: 30 * time.Millisecond,
	}

	id, ch, err := r.Start(ctx, 1, "p", types.GenerationSettings{}, types.GenerationContext{}, prov)
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, types.EventDelta, first.Kind)
	assert.True(t, r.Cancel(id))

	events := drain(t, ch)
	require.NotEmpty(t, events)
	assert.Equal(t, types.EventDone, events[len(events)-1].Kind, "cancelled session must end in done")

	sess, err := st.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, sess.Status, "cancellation is not rejection")

	persisted, err := st.ListEvents(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.EventDone, persisted[len(persisted)-1].Kind)
}

func TestRunnerCancelAfterCompletion(t *testing.T) {
	r, _ := newTestRunner(t)
	ctx := context.Background()

	prov := provider.NewScriptedProvider(provider.Done())
	id, ch, err := r.Start(ctx, 1, "p", types.GenerationSettings{}, types.GenerationContext{}, prov)
	require.NoError(t, err)
	drain(t, ch)

	assert.False(t, r.Cancel(id), "cancel after completion is a no-op")
	assert.Equal(t, 0, r.Registry().Len())
}

func TestRunnerCancelUnknownSession(t *testing.T) {
	r, _ := newTestRunner(t)
	assert.False(t, r.Cancel("no-such-session"))
}

func TestRunnerInternalFault(t *testing.T) {
	r, st := newTestRunner(t)
	ctx := context.Background()

	id, ch, err := r.Start(ctx, 1, "p", types.GenerationSettings{}, types.GenerationContext{}, panicProvider{})
	require.NoError(t, err)

	events := drain(t, ch)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, types.EventError, last.Kind)
	require.NotNil(t, last.Err)
	assert.Equal(t, "internal", last.Err.Code)

	sess, err := st.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, sess.Status)

	persisted, err := st.ListEvents(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.EventError, persisted[len(persisted)-1].Kind)

	// The registry must not leak the session.
	assert.Equal(t, 0, r.Registry().Len())
}

func TestRunnerRejectsUnknownEventKind(t *testing.T) {
	r, st := newTestRunner(t)
	ctx := context.Background()

	id, ch, err := r.Start(ctx, 1, "p", types.GenerationSettings{}, types.GenerationContext{}, bogusProvider{})
	require.NoError(t, err)

	events := drain(t, ch)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventError, events[0].Kind)

	sess, err := st.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, sess.Status)
}

func TestRunnerUsageLastWriteWins(t *testing.T) {
	r, st := newTestRunner(t)
	ctx := context.Background()

	prov := provider.NewScriptedProvider(
		provider.UsageEvent(1, 1, 2),
		provider.UsageEvent(3, 2, 5),
		provider.Done(),
	)

	id, ch, err := r.Start(ctx, 1, "p", types.GenerationSettings{}, types.GenerationContext{}, prov)
	require.NoError(t, err)
	drain(t, ch)

	sess, err := st.GetSession(ctx, id)
	require.NoError(t, err)
	usage, ok := sess.Payload["usage"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 5, usage["totalTokens"])
}
