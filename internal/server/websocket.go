package server

import (
	"context"
	"encoding/json"
	"net/http"

	"nhooyr.io/websocket"

	"digibattle/internal/session"
)

// WSMessage is the JSON envelope for WebSocket messages.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// wsIntents maps client message types onto session actions.
var wsIntents = map[string]intent{
	"create":     selectCreate,
	"join":       selectJoin,
	"back":       back,
	"createRoom": createRoom,
	"joinRoom":   joinRoom,
	"ready":      ready,
	"attack":     attack,
	"playAgain":  playAgain,
	"exit":       exit,
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.manager.Get(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // allow any origin for dev
	})
	if err != nil {
		s.log.WarnContext(r.Context(), "websocket accept", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	views, unsubscribe := sess.Subscribe()
	defer unsubscribe()
	errs := make(chan string, 8)

	if err := writeWS(ctx, conn, "state", sess.View()); err != nil {
		return
	}

	// Writer goroutine: pushes views and rejected intents to the client
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-views:
				if !ok {
					conn.Close(websocket.StatusGoingAway, "session closed")
					return
				}
				if err := writeWS(ctx, conn, "state", v); err != nil {
					return
				}
			case msg := <-errs:
				if err := writeWS(ctx, conn, "error", errorPayload{Message: msg}); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop: handle incoming intents
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sendErr(errs, "invalid message")
			continue
		}
		s.handleMessage(sess, errs, msg)
	}

	s.log.DebugContext(ctx, "client disconnected", "session", id)
}

func (s *Server) handleMessage(sess *session.Session, errs chan<- string, msg WSMessage) {
	fn, ok := wsIntents[msg.Type]
	if !ok {
		sendErr(errs, "unknown message type: "+msg.Type)
		return
	}
	var req roomRequest
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			sendErr(errs, "invalid payload")
			return
		}
	}
	// on success the new view reaches the client through the subscription
	if _, err := fn(sess, req); err != nil {
		sendErr(errs, err.Error())
	}
}

func sendErr(errs chan<- string, message string) {
	select {
	case errs <- message:
	default:
	}
}

func writeWS(ctx context.Context, conn *websocket.Conn, msgType string, payload any) error {
	p, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(WSMessage{Type: msgType, Payload: p})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, msg)
}
