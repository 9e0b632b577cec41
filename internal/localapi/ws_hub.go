package localapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"planloom/internal/protocol"

	"github.com/coder/websocket"
)

const writeTimeout = 500 * time.Millisecond

// QuestionResponder receives clarification answers arriving over the realtime
// channel. The planner implements it.
type QuestionResponder interface {
	ResumeQuestion(ctx context.Context, questionID, response string)
}

type WSHub struct {
	mu        sync.RWMutex
	clients   map[*websocket.Conn]string
	logger    *slog.Logger
	responder QuestionResponder
}

func NewWSHub(logger *slog.Logger) *WSHub {
	return &WSHub{clients: map[*websocket.Conn]string{}, logger: logger}
}

// SetResponder wires the clarification consumer. Must be called before the
// hub starts accepting connections.
func (h *WSHub) SetResponder(r QuestionResponder) {
	h.responder = r
}

func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.clients[conn] = ""
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	h.send(conn, protocol.Message{Type: protocol.TypeConnectionEstablished})

	ctx := r.Context()
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return
		}
		h.handleInbound(ctx, conn, raw)
	}
}

func (h *WSHub) handleInbound(ctx context.Context, from *websocket.Conn, raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		h.send(from, protocol.Message{
			Type:    protocol.TypeError,
			Payload: protocol.MustRaw(protocol.ErrorPayload{Message: err.Error()}),
		})
		return
	}

	switch msg.Type {
	case protocol.TypeClientRegistration:
		var payload protocol.ClientRegistrationPayload
		_ = json.Unmarshal(msg.Payload, &payload)
		h.mu.Lock()
		h.clients[from] = payload.Client
		h.mu.Unlock()
		h.logger.Info("ws client registered", "client", payload.Client)

	case protocol.TypeQuestionResponse:
		var payload protocol.QuestionResponsePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.QuestionID == "" {
			h.send(from, protocol.Message{
				Type:    protocol.TypeError,
				Payload: protocol.MustRaw(protocol.ErrorPayload{Message: "malformed question_response payload"}),
			})
			return
		}
		if h.responder == nil {
			return
		}
		// Resuming a planning round makes provider calls; keep the read
		// loop free.
		go h.responder.ResumeQuestion(context.WithoutCancel(ctx), payload.QuestionID, payload.Response)

	case protocol.TypeRequestScreenshot, protocol.TypeRequestScreenshotAck:
		h.relay(from, msg)

	default:
		h.send(from, protocol.Message{
			Type:    protocol.TypeError,
			Payload: protocol.MustRaw(protocol.ErrorPayload{Message: "unexpected inbound type: " + msg.Type}),
		})
	}
}

// Broadcast pushes one message to every connected client. Slow clients are
// skipped after the write timeout rather than stalling the rest.
func (h *WSHub) Broadcast(msg protocol.Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("ws broadcast marshal failed", "type", msg.Type, "error", err)
		return
	}
	for _, c := range h.snapshot(nil) {
		h.write(c, raw)
	}
}

// relay forwards a message to every client except the sender.
func (h *WSHub) relay(from *websocket.Conn, msg protocol.Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, c := range h.snapshot(from) {
		h.write(c, raw)
	}
}

func (h *WSHub) send(conn *websocket.Conn, msg protocol.Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.write(conn, raw)
}

func (h *WSHub) write(conn *websocket.Conn, raw []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, raw)
}

func (h *WSHub) snapshot(except *websocket.Conn) []*websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		if c != except {
			out = append(out, c)
		}
	}
	return out
}

// ClientCount reports connected clients, for the health endpoint.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
