package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/avilenka/devmatch/internal/domain/enums"
	chatsvc "github.com/avilenka/devmatch/internal/services/chat"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4 << 10
	sendBuffer     = 32
)

// Client is one websocket connection of an authenticated user.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID int64
	send   chan Event
}

// NewClient attaches a freshly upgraded connection to the hub and starts
// its pumps. It returns once the pumps are running.
func NewClient(ctx context.Context, hub *Hub, conn *websocket.Conn, userID int64) *Client {
	c := &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan Event, sendBuffer),
	}

	hub.register(ctx, c)
	go c.writePump()
	go c.readPump(ctx)

	return c
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(ctx, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var event Event
		if err := c.conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("websocket read failed", zap.Int64("user_id", c.userID), zap.Error(err))
			}
			return
		}

		c.handleEvent(ctx, event)
	}
}

func (c *Client) handleEvent(ctx context.Context, event Event) {
	switch event.Type {
	case EventUserOnline:
		if c.hub.presence != nil {
			if err := c.hub.presence.RefreshPresence(ctx, c.userID); err != nil {
				c.hub.log.Warn("refresh presence", zap.Int64("user_id", c.userID), zap.Error(err))
			}
		}

	case EventTyping, EventStopTyping:
		var payload TypingPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil || payload.ReceiverID <= 0 {
			c.sendError("bad_payload", "invalid typing payload")
			return
		}

		// Typing indicators stay inside the match, same as messages. An
		// unmatched receiver silently learns nothing.
		if !c.hub.isMatched(ctx, c.userID, payload.ReceiverID) {
			return
		}

		out, err := newEvent(EventUserTyping, TypingPayload{
			SenderID: c.userID,
			IsTyping: event.Type == EventTyping,
		})
		if err != nil {
			return
		}
		c.hub.SendToUser(payload.ReceiverID, out)

	case EventSendMessage:
		if c.hub.chat == nil {
			c.sendError("unsupported", "message sending over socket is disabled")
			return
		}

		var payload SendMessagePayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil || payload.ReceiverID <= 0 {
			c.sendError("bad_payload", "invalid message payload")
			return
		}

		// Delivery events reach both sides through the hub's notifier hooks.
		kind := enums.MessageKind(payload.MessageType)
		if _, err := c.hub.chat.SendMessage(ctx, c.userID, payload.ReceiverID, payload.Content, kind, "", ""); err != nil {
			c.sendError(sendErrorCode(err), err.Error())
		}

	default:
		c.sendError("unknown_event", "unknown event type: "+event.Type)
	}
}

func (c *Client) sendError(code, message string) {
	event, err := newEvent(EventError, ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}

	select {
	case c.send <- event:
	default:
	}
}

func sendErrorCode(err error) string {
	switch {
	case errors.Is(err, chatsvc.ErrNotMatched):
		return "not_matched"
	case errors.Is(err, chatsvc.ErrReceiverNotFound):
		return "receiver_not_found"
	case errors.Is(err, chatsvc.ErrMessageTooLong):
		return "message_too_long"
	case errors.Is(err, chatsvc.ErrValidation):
		return "validation_error"
	default:
		return "internal_error"
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
