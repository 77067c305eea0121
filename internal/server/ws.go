package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/inkwell-ai/inkwell/internal/logging"
	"github.com/inkwell-ai/inkwell/internal/provider"
	"github.com/inkwell-ai/inkwell/pkg/types"
)

// CloseProtocolViolation is the application close code for malformed or
// out-of-order client messages. Violations are always recoverable by
// reconnecting.
const CloseProtocolViolation = 4400

const closeWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleSuggest owns one suggestion connection. The per-connection state
// machine is Idle -> Started -> Terminal: only a start message is accepted in
// Idle, at most one session runs per connection, and the connection closes
// when the session's terminal event has been relayed.
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h := &suggestConn{
		conn:   conn,
		server: s,
		log:    logging.For("server.suggest"),
	}
	h.run()
}

// suggestConn is the per-connection protocol handler.
type suggestConn struct {
	conn   *websocket.Conn
	server *Server
	log    zerolog.Logger

	// writeMu serializes frame writes between the read loop (protocol error
	// replies) and the drain goroutine.
	writeMu sync.Mutex

	sessionID string
	events    <-chan provider.Event
	started   bool

	drainDone chan struct{}
}

// envelope peeks at the message discriminator before full decoding.
type envelope struct {
	Type string `json:"type"`
}

func (h *suggestConn) run() {
	defer h.conn.Close()
	defer func() {
		// Disconnect or violation while a session is live: best-effort
		// cancellation. A no-op when the session already finished.
		if h.started {
			h.server.runner.Cancel(h.sessionID)
			<-h.drainDone
		}
	}()

	for {
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.protocolViolation("malformed message")
			return
		}

		switch env.Type {
		case types.WireStart:
			if h.started {
				h.protocolViolation("duplicate start")
				return
			}
			if !h.handleStart(data) {
				return
			}

		case types.WireStop:
			if !h.started {
				h.protocolViolation("stop before start")
				return
			}
			// Cancellation is cooperative; the connection closes later,
			// when the terminal event arrives through the drain.
			h.server.runner.Cancel(h.sessionID)

		default:
			h.protocolViolation("unexpected message type " + strings.TrimSpace(env.Type))
			return
		}
	}
}

// handleStart validates and executes a start message. Returns false when the
// connection must be torn down.
func (h *suggestConn) handleStart(data []byte) bool {
	var msg types.StartMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.protocolViolation("malformed start payload")
		return false
	}
	if msg.ChapterID <= 0 {
		h.protocolViolation("chapter_id must be a positive integer")
		return false
	}
	if strings.TrimSpace(msg.Prompt) == "" {
		h.protocolViolation("prompt must not be empty")
		return false
	}

	var settings types.GenerationSettings
	if msg.Settings != nil {
		settings = *msg.Settings
	}
	var genCtx types.GenerationContext
	if msg.Context != nil {
		genCtx = *msg.Context
	}

	// Session persistence must not be tied to the socket's lifetime;
	// teardown flows through the cancellation token instead.
	id, events, err := h.server.runner.Start(context.Background(), msg.ChapterID, msg.Prompt, settings, genCtx, h.server.prov)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to start session")
		h.writeFrame(types.ErrorMessage{Type: types.WireError, Message: "failed to start session", Code: "internal"})
		h.close(websocket.CloseInternalServerErr)
		return false
	}

	h.sessionID = id
	h.events = events
	h.started = true
	h.drainDone = make(chan struct{})

	if err := h.writeFrame(types.StartedMessage{Type: types.WireStarted, SessionID: id}); err != nil {
		// Client vanished between start and ack; the deferred cancel plus
		// the drain keep the session converging on its terminal event.
		h.log.Debug().Err(err).Str("sessionID", id).Msg("failed to ack start")
	}

	go h.drain()
	return true
}

// drain forwards session events to the wire in arrival order. It always
// consumes the channel to completion so the runner never blocks, even after
// the socket has failed.
func (h *suggestConn) drain() {
	defer close(h.drainDone)

	wireDown := false
	for ev := range h.events {
		if wireDown {
			continue
		}

		if err := h.writeFrame(wireFrame(ev)); err != nil {
			wireDown = true
			h.server.runner.Cancel(h.sessionID)
			continue
		}

		if ev.Kind.Terminal() {
			h.close(websocket.CloseNormalClosure)
			wireDown = true
		}
	}

	if !wireDown {
		// The channel closed without a terminal event reaching the wire;
		// tear the connection down rather than leaving it half-open.
		h.writeFrame(types.ErrorMessage{Type: types.WireError, Message: "session relay interrupted", Code: "internal"})
		h.close(websocket.CloseInternalServerErr)
	}
}

// wireFrame converts a session event to its wire message.
func wireFrame(ev provider.Event) any {
	switch ev.Kind {
	case types.EventDelta:
		return types.DeltaMessage{Type: types.WireDelta, Value: ev.Value}
	case types.EventUsage:
		usage := ev.Usage
		if usage == nil {
			usage = &types.Usage{}
		}
		return types.UsageMessage{
			Type:             types.WireUsage,
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		}
	case types.EventDone:
		return types.DoneMessage{Type: types.WireDone}
	case types.EventError:
		msg := types.ErrorMessage{Type: types.WireError, Message: "unknown error"}
		if ev.Err != nil {
			msg.Message = ev.Err.Message
			msg.Code = ev.Err.Code
			retryable := ev.Err.Retryable
			msg.Retryable = &retryable
		}
		return msg
	default:
		return types.ErrorMessage{Type: types.WireError, Message: "unknown event", Code: "internal"}
	}
}

// protocolViolation replies with a protocol error frame and closes with the
// application violation code, atomically so a concurrent drain cannot slip a
// frame in between. It never affects a running session directly; the caller's
// cleanup path cancels if needed.
func (h *suggestConn) protocolViolation(reason string) {
	h.log.Debug().Str("reason", reason).Msg("protocol violation")

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	h.conn.WriteJSON(types.ErrorMessage{Type: types.WireError, Message: reason, Code: "protocol"})
	msg := websocket.FormatCloseMessage(CloseProtocolViolation, "")
	h.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	h.conn.Close()
}

func (h *suggestConn) writeFrame(frame any) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.conn.WriteJSON(frame)
}

func (h *suggestConn) close(code int) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(code, "")
	h.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	h.conn.Close()
}
