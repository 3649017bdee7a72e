package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avilenka/devmatch/internal/domain/enums"
	"github.com/avilenka/devmatch/internal/domain/model"
)

type PresenceService interface {
	SetPresence(ctx context.Context, userID int64, online bool) error
	RefreshPresence(ctx context.Context, userID int64) error
}

// MatchDirectory answers the match questions the hub needs: who the matched
// counterparts are for status fan-out, and whether one specific pair is
// mutual before relaying typing indicators.
type MatchDirectory interface {
	GetByPair(ctx context.Context, userID, otherID int64) (model.Match, error)
	ListMatchedCounterpartIDs(ctx context.Context, userID int64) ([]int64, error)
}

// ChatSender lets the socket path reuse the same delivery pipeline as the
// REST endpoint. Delivery fan-out happens through the hub's notifier hooks,
// not here.
type ChatSender interface {
	SendMessage(ctx context.Context, senderID, receiverID int64, content string, kind enums.MessageKind, fileRef, fileName string) (model.Message, error)
}

// Hub tracks connected clients per user and fans committed domain events out
// to them. A user may hold several connections; presence flips on the first
// connect and the last disconnect.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}

	presence PresenceService
	matches  MatchDirectory
	chat     ChatSender
	log      *zap.Logger
	now      func() time.Time
}

type HubDependencies struct {
	Presence PresenceService
	Matches  MatchDirectory
	Chat     ChatSender
	Logger   *zap.Logger
}

func NewHub(deps HubDependencies) *Hub {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Hub{
		clients:  map[int64]map[*Client]struct{}{},
		presence: deps.Presence,
		matches:  deps.Matches,
		chat:     deps.Chat,
		log:      log,
		now:      time.Now,
	}
}

// SetChatSender breaks the construction cycle between the hub and the chat
// service: the hub is built first, the chat service gets it as notifier,
// then the sender is wired back.
func (h *Hub) SetChatSender(sender ChatSender) {
	h.chat = sender
}

func (h *Hub) register(ctx context.Context, c *Client) {
	h.mu.Lock()
	conns, ok := h.clients[c.userID]
	if !ok {
		conns = map[*Client]struct{}{}
		h.clients[c.userID] = conns
	}
	conns[c] = struct{}{}
	first := len(conns) == 1
	h.mu.Unlock()

	if !first {
		return
	}

	if h.presence != nil {
		if err := h.presence.SetPresence(ctx, c.userID, true); err != nil {
			h.log.Warn("set presence online", zap.Int64("user_id", c.userID), zap.Error(err))
		}
	}
	h.broadcastStatus(ctx, c.userID, true)
}

func (h *Hub) unregister(ctx context.Context, c *Client) {
	h.mu.Lock()
	conns, ok := h.clients[c.userID]
	if ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, c.userID)
		}
	}
	last := ok && len(conns) == 0
	// Closed under the write lock so no SendToUser holding the read lock can
	// still push into this channel.
	close(c.send)
	h.mu.Unlock()

	if !last {
		return
	}

	if h.presence != nil {
		if err := h.presence.SetPresence(ctx, c.userID, false); err != nil {
			h.log.Warn("set presence offline", zap.Int64("user_id", c.userID), zap.Error(err))
		}
	}
	h.broadcastStatus(ctx, c.userID, false)
}

// SendToUser delivers an event to every open connection of the user. Slow
// connections get dropped rather than blocking the fan-out. The read lock is
// held across the sends: unregister closes the channel under the write lock,
// so a send can never hit a closed channel.
func (h *Hub) SendToUser(userID int64, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[userID] {
		select {
		case c.send <- event:
		default:
			h.log.Warn("dropping slow websocket client", zap.Int64("user_id", userID))
			c.conn.Close()
		}
	}
}

func (h *Hub) IsConnected(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// MatchCreated implements the swipe service's notifier: both sides learn
// about the new mutual match.
func (h *Hub) MatchCreated(_ context.Context, match model.Match) {
	for _, userID := range []int64{match.UserAID, match.UserBID} {
		event, err := newEvent(EventNewMatch, MatchPayload{
			MatchID:     match.ID,
			OtherUserID: match.OtherUser(userID),
			MatchedAt:   match.MatchedAt,
		})
		if err != nil {
			h.log.Error("encode match event", zap.Error(err))
			return
		}
		h.SendToUser(userID, event)
	}
}

// MessageDelivered implements the chat service's notifier: the receiver
// gets the message, the sender gets a delivery echo.
func (h *Hub) MessageDelivered(_ context.Context, msg model.Message) {
	payload := newMessagePayload(msg)

	if event, err := newEvent(EventNewMessage, payload); err == nil {
		h.SendToUser(msg.ReceiverID, event)
	} else {
		h.log.Error("encode message event", zap.Error(err))
	}

	if event, err := newEvent(EventMessageSent, payload); err == nil {
		h.SendToUser(msg.SenderID, event)
	}
}

func (h *Hub) MessageRead(_ context.Context, msg model.Message) {
	event, err := newEvent(EventMessageRead, newMessagePayload(msg))
	if err != nil {
		h.log.Error("encode read event", zap.Error(err))
		return
	}
	h.SendToUser(msg.SenderID, event)
}

func (h *Hub) MessageDeleted(_ context.Context, msg model.Message) {
	event, err := newEvent(EventMessageDeleted, newMessagePayload(msg))
	if err != nil {
		h.log.Error("encode delete event", zap.Error(err))
		return
	}
	h.SendToUser(msg.ReceiverID, event)
	h.SendToUser(msg.SenderID, event)
}

// broadcastStatus tells every matched counterpart that the user came online
// or went away.
func (h *Hub) broadcastStatus(ctx context.Context, userID int64, online bool) {
	if h.matches == nil {
		return
	}

	counterparts, err := h.matches.ListMatchedCounterpartIDs(ctx, userID)
	if err != nil {
		h.log.Warn("list matched counterparts", zap.Int64("user_id", userID), zap.Error(err))
		return
	}

	seen := h.now().UTC()
	event, err := newEvent(EventUserStatusChanged, StatusPayload{
		UserID:   userID,
		IsOnline: online,
		LastSeen: &seen,
	})
	if err != nil {
		h.log.Error("encode status event", zap.Error(err))
		return
	}

	for _, id := range counterparts {
		h.SendToUser(id, event)
	}
}

// isMatched reports whether the pair holds a mutual match. Lookup failures
// count as unmatched so nothing leaks to a stranger.
func (h *Hub) isMatched(ctx context.Context, userID, otherID int64) bool {
	if h.matches == nil {
		return false
	}

	rec, err := h.matches.GetByPair(ctx, userID, otherID)
	if err != nil {
		return false
	}
	return rec.IsMatch
}
