package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"transitcat/internal/hub"
	"transitcat/internal/query"
)

const (
	sendBuffer   = 64
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
)

// WSHandler serves interactive sessions. JSON envelopes of type "stat" are
// answered with an "answer" envelope, "subscribe"/"unsubscribe" manage the
// buses whose statistics are pushed after every catalogue update. Any other
// text frame is taken as a raw stat request and answered with the plain line.
type WSHandler struct {
	hub     *hub.Hub
	printer *query.Printer
	logger  *slog.Logger
}

func NewWSHandler(h *hub.Hub, printer *query.Printer, logger *slog.Logger) *WSHandler {
	return &WSHandler{hub: h, printer: printer, logger: logger.With("handler", "websocket")}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type StatPayload struct {
	Request string `json:"request"`
}

type SubscribePayload struct {
	Buses []string `json:"buses"`
}

type AnswerMessage struct {
	Type    string        `json:"type"`
	Payload AnswerPayload `json:"payload"`
}

type AnswerPayload struct {
	Request string `json:"request"`
	Answer  string `json:"answer"`
}

type SessionMessage struct {
	Type    string         `json:"type"`
	Payload SessionPayload `json:"payload"`
}

type SessionPayload struct {
	ID string `json:"id"`
}

type PongMessage struct {
	Type string `json:"type"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	client := hub.NewClient(uuid.New().String(), sendBuffer)
	h.hub.Register(client)

	ServerStats.IncWSConnections()
	defer ServerStats.DecWSConnections()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.sendJSON(client, SessionMessage{Type: "session", Payload: SessionPayload{ID: client.ID}})

	go h.writeLoop(ctx, cancel, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}
		ServerStats.IncWSMessagesIn()

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			ServerStats.AddStatRequests(1)
			h.enqueue(client, []byte(h.printer.Answer(string(data))))
			continue
		}

		switch msg.Type {
		case "stat":
			var payload StatPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				h.logger.Debug("invalid stat payload", "client_id", client.ID, "error", err)
				continue
			}
			ServerStats.AddStatRequests(1)
			h.sendJSON(client, AnswerMessage{
				Type: "answer",
				Payload: AnswerPayload{
					Request: payload.Request,
					Answer:  h.printer.Answer(payload.Request),
				},
			})

		case "subscribe":
			var payload SubscribePayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			if len(payload.Buses) > 0 {
				h.hub.Subscribe(client, payload.Buses)
				h.hub.SendSnapshot(client, payload.Buses)
			}

		case "unsubscribe":
			var payload SubscribePayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			if len(payload.Buses) > 0 {
				h.hub.Unsubscribe(client, payload.Buses)
			}

		case "ping":
			h.sendJSON(client, PongMessage{Type: "pong"})
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, client *hub.Client) {
	defer cancel()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-client.Done():
			return

		case msg := <-client.Send:
			writeCtx, writeCancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			writeCancel()
			if err != nil {
				return
			}
			ServerStats.IncWSMessagesOut()

		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) sendJSON(client *hub.Client, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.enqueue(client, data)
}

func (h *WSHandler) enqueue(client *hub.Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		h.logger.Debug("dropping message, buffer full", "client_id", client.ID)
	}
}
