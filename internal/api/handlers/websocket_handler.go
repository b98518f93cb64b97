package handlers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/docqa/console/internal/session"
	"github.com/docqa/console/pkg/logger"
)

// envelope is the frame format in both directions.
type envelope struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

type outbound struct {
	Type    string      `json:"type"`
	Content interface{} `json:"content,omitempty"`
}

type WebSocketHandler struct {
	manager *SessionManager
}

func NewWebSocketHandler(manager *SessionManager) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
	}
}

// Upgrade rejects plain HTTP requests and resolves the session before the
// connection is upgraded.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	ctrl, err := h.manager.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}

	c.Locals(sessionLocal, ctrl)
	return c.Next()
}

// HandleConnection streams session events to the client and accepts
// commands. Only this goroutine writes to the connection.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	ctrl, ok := c.Locals(sessionLocal).(*session.Controller)
	if !ok {
		c.Close()
		return
	}

	log := logger.Named("websocket").With(zap.String("session_id", ctrl.ID()))
	log.Info("WebSocket connection established")

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Close()
		log.Info("WebSocket connection closed")
	}()

	events := ctrl.Subscribe(ctx)
	replies := make(chan outbound, 8)

	go h.readLoop(ctx, cancel, c, ctrl, replies, log)

	if err := c.WriteJSON(outbound{Type: "snapshot", Content: ctrl.Snapshot()}); err != nil {
		log.Error("Failed to send snapshot", zap.Error(err))
		return
	}

	for {
		var msg outbound
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			msg = outbound{Type: string(ev.Type), Content: ev.Payload}
		case msg = <-replies:
		}

		if err := c.WriteJSON(msg); err != nil {
			log.Error("Failed to write WebSocket message", zap.Error(err))
			return
		}
	}
}

func (h *WebSocketHandler) readLoop(ctx context.Context, cancel context.CancelFunc, c *websocket.Conn, ctrl *session.Controller, replies chan<- outbound, log *zap.Logger) {
	defer cancel()

	for {
		var msg envelope
		if err := c.ReadJSON(&msg); err != nil {
			log.Debug("WebSocket read ended", zap.Error(err))
			return
		}

		if msg.Type == "query" || msg.Type == "confirm" {
			// Queries block for the whole round trip; progress and the answer
			// arrive as events meanwhile.
			go h.runQuery(ctx, ctrl, msg, replies)
			continue
		}

		reply, ok := h.dispatch(ctx, ctrl, msg)
		if !ok {
			continue
		}
		select {
		case replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}

// runQuery keeps the query running when the connection goes away so the
// answer still lands in the conversation. ctx only bounds the reply.
func (h *WebSocketHandler) runQuery(ctx context.Context, ctrl *session.Controller, msg envelope, replies chan<- outbound) {
	reply, ok := h.dispatch(context.WithoutCancel(ctx), ctrl, msg)
	if !ok {
		return
	}
	select {
	case replies <- reply:
	case <-ctx.Done():
	}
}

// dispatch runs one client command. It reports false when there is
// nothing to send back.
func (h *WebSocketHandler) dispatch(ctx context.Context, ctrl *session.Controller, msg envelope) (outbound, bool) {
	switch msg.Type {
	case "ping":
		return outbound{Type: "pong"}, true

	case "input":
		var text string
		if err := json.Unmarshal(msg.Content, &text); err != nil {
			return errorFrame("input content must be a string"), true
		}
		ctrl.SetInput(text)
		return outbound{}, false

	case "query":
		var text string
		if err := json.Unmarshal(msg.Content, &text); err != nil {
			return errorFrame("query content must be a string"), true
		}
		result := ctrl.Submit(ctx, text)
		h.persist(ctrl)
		return outbound{Type: "submit", Content: result}, true

	case "confirm":
		result := ctrl.ConfirmSearchAll(ctx)
		h.persist(ctrl)
		return outbound{Type: "submit", Content: result}, true

	case "cancel":
		ctrl.CancelSearchAll()
		return outbound{}, false

	case "snapshot":
		return outbound{Type: "snapshot", Content: ctrl.Snapshot()}, true

	default:
		return errorFrame("unknown message type: " + msg.Type), true
	}
}

func (h *WebSocketHandler) persist(ctrl *session.Controller) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	h.manager.Persist(ctx, ctrl)
}

func errorFrame(msg string) outbound {
	return outbound{Type: "error", Content: msg}
}
