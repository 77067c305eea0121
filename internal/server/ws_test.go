package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/internal/event"
	"github.com/inkwell-ai/inkwell/internal/provider"
	"github.com/inkwell-ai/inkwell/internal/session"
	"github.com/inkwell-ai/inkwell/internal/storage"
	"github.com/inkwell-ai/inkwell/internal/store"
	"github.com/inkwell-ai/inkwell/pkg/types"
)

func newTestServer(t *testing.T, prov provider.Provider) (*httptest.Server, *store.Store) {
	t.Helper()

	st := store.New(storage.New(t.TempDir()))
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	srv := New(DefaultConfig(), st, session.NewRunner(st, bus), prov, bus)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func dialSuggest(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/suggest"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntilClose collects JSON frames until the server closes the connection
// and returns them with the observed close code.
func readUntilClose(t *testing.T, conn *websocket.Conn) ([]map[string]any, int) {
	t.Helper()

	var frames []map[string]any
	for {
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			ce, ok := err.(*websocket.CloseError)
			require.True(t, ok, "expected close frame, got %v", err)
			return frames, ce.Code
		}
		frames = append(frames, frame)
	}
}

func frameTypes(frames []map[string]any) []string {
	var out []string
	for _, f := range frames {
		ft, _ := f["type"].(string)
		out = append(out, ft)
	}
	return out
}

func TestSuggestHappyPath(t *testing.T) {
	prov := provider.NewScriptedProvider(
		provider.Delta("The rain "),
		provider.Delta("had stopped."),
		provider.UsageEvent(10, 4, 14),
		provider.Done(),
	)
	ts, st := newTestServer(t, prov)
	conn := dialSuggest(t, ts)

	require.NoError(t, conn.WriteJSON(types.StartMessage{Type: types.WireStart, ChapterID: 1, Prompt: "continue the scene"}))

	frames, code := readUntilClose(t, conn)
	assert.Equal(t, websocket.CloseNormalClosure, code)
	assert.Equal(t, []string{"started", "delta", "delta", "usage", "done"}, frameTypes(frames))

	sessionID, _ := frames[0]["session_id"].(string)
	require.NotEmpty(t, sessionID)
	assert.Equal(t, "The rain ", frames[1]["value"])
	assert.Equal(t, float64(14), frames[3]["total_tokens"])

	sess, err := st.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, sess.Status)

	events, err := st.ListEvents(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, types.EventDone, events[3].Kind)
}

func TestSuggestProviderError(t *testing.T) {
	prov := provider.NewScriptedProvider(
		provider.Delta("partial"),
		provider.Error("upstream rejected the request", "http_401", false),
	)
	ts, st := newTestServer(t, prov)
	conn := dialSuggest(t, ts)

	require.NoError(t, conn.WriteJSON(types.StartMessage{Type: types.WireStart, ChapterID: 1, Prompt: "continue"}))

	frames, code := readUntilClose(t, conn)
	assert.Equal(t, websocket.CloseNormalClosure, code)
	require.Equal(t, []string{"started", "delta", "error"}, frameTypes(frames))
	assert.Equal(t, "upstream rejected the request", frames[2]["message"])
	assert.Equal(t, "http_401", frames[2]["code"])
	assert.Equal(t, false, frames[2]["retryable"])

	sessionID := frames[0]["session_id"].(string)
	sess, err := st.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, sess.Status)
}

func TestSuggestStopMidStream(t *testing.T) {
	script := make([]provider.Event, 0, 101)
	for i := 0; i < 100; i++ {
		script = append(script, provider.Delta("word "))
	}
	script = append(script, provider.Done())
	prov := &provider.ScriptedProvider{Script: script, Delay: 10 * time.Millisecond}

	ts, st := newTestServer(t, prov)
	conn := dialSuggest(t, ts)

	require.NoError(t, conn.WriteJSON(types.StartMessage{Type: types.WireStart, ChapterID: 1, Prompt: "continue"}))

	// Let a few deltas through, then stop.
	var sessionID string
	for i := 0; i < 3; i++ {
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		if id, ok := frame["session_id"].(string); ok {
			sessionID = id
		}
	}
	require.NotEmpty(t, sessionID)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": types.WireStop}))

	frames, code := readUntilClose(t, conn)
	assert.Equal(t, websocket.CloseNormalClosure, code)
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	assert.Equal(t, "done", last["type"])

	// Cancellation leaves the verdict open.
	sess, err := st.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, sess.Status)

	events, err := st.ListEvents(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, types.EventDone, events[len(events)-1].Kind)
	assert.Less(t, len(events), 101)
}

func TestSuggestStopBeforeStart(t *testing.T) {
	ts, _ := newTestServer(t, provider.NewScriptedProvider(provider.Done()))
	conn := dialSuggest(t, ts)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": types.WireStop}))

	frames, code := readUntilClose(t, conn)
	assert.Equal(t, CloseProtocolViolation, code)
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0]["type"])
	assert.Equal(t, "protocol", frames[0]["code"])
}

func TestSuggestUnknownMessageType(t *testing.T) {
	ts, _ := newTestServer(t, provider.NewScriptedProvider(provider.Done()))
	conn := dialSuggest(t, ts)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	frames, code := readUntilClose(t, conn)
	assert.Equal(t, CloseProtocolViolation, code)
	require.Len(t, frames, 1)
	assert.Equal(t, "protocol", frames[0]["code"])
}

func TestSuggestMalformedJSON(t *testing.T) {
	ts, _ := newTestServer(t, provider.NewScriptedProvider(provider.Done()))
	conn := dialSuggest(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	frames, code := readUntilClose(t, conn)
	assert.Equal(t, CloseProtocolViolation, code)
	require.Len(t, frames, 1)
	assert.Equal(t, "protocol", frames[0]["code"])
}

func TestSuggestStartValidation(t *testing.T) {
	cases := []struct {
		name string
		msg  types.StartMessage
	}{
		{"missing chapter", types.StartMessage{Type: types.WireStart, Prompt: "continue"}},
		{"empty prompt", types.StartMessage{Type: types.WireStart, ChapterID: 1, Prompt: "   "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts, _ := newTestServer(t, provider.NewScriptedProvider(provider.Done()))
			conn := dialSuggest(t, ts)

			require.NoError(t, conn.WriteJSON(tc.msg))

			frames, code := readUntilClose(t, conn)
			assert.Equal(t, CloseProtocolViolation, code)
			require.Len(t, frames, 1)
			assert.Equal(t, "protocol", frames[0]["code"])
		})
	}
}

func TestSuggestDuplicateStart(t *testing.T) {
	script := make([]provider.Event, 0, 51)
	for i := 0; i < 50; i++ {
		script = append(script, provider.Delta("word "))
	}
	script = append(script, provider.Done())
	prov := &provider.ScriptedProvider{Script: script, Delay: 10 * time.Millisecond}

	ts, st := newTestServer(t, prov)
	conn := dialSuggest(t, ts)

	require.NoError(t, conn.WriteJSON(types.StartMessage{Type: types.WireStart, ChapterID: 1, Prompt: "continue"}))

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var started map[string]any
	require.NoError(t, conn.ReadJSON(&started))
	sessionID := started["session_id"].(string)
	require.NotEmpty(t, sessionID)

	require.NoError(t, conn.WriteJSON(types.StartMessage{Type: types.WireStart, ChapterID: 2, Prompt: "again"}))

	frames, code := readUntilClose(t, conn)
	assert.Equal(t, CloseProtocolViolation, code)
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	assert.Equal(t, "error", last["type"])
	assert.Equal(t, "protocol", last["code"])

	// The first session converges on a terminal event despite the violation.
	require.Eventually(t, func() bool {
		events, err := st.ListEvents(context.Background(), sessionID)
		if err != nil || len(events) == 0 {
			return false
		}
		return events[len(events)-1].Kind.Terminal()
	}, 10*time.Second, 20*time.Millisecond)

	only, err := st.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Len(t, only, 1, "duplicate start must not create a second session")
}
