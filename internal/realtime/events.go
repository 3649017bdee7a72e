package realtime

import (
	"encoding/json"
	"time"

	"github.com/avilenka/devmatch/internal/domain/model"
)

// Client to server event types. Names follow the mobile client's socket
// protocol, so they are camelCase unlike the REST payloads.
const (
	EventTyping      = "typing"
	EventStopTyping  = "stopTyping"
	EventSendMessage = "sendMessage"
	EventUserOnline  = "userOnline"
)

// Server to client event types.
const (
	EventNewMessage        = "newMessage"
	EventMessageSent       = "messageSent"
	EventMessageRead       = "messageRead"
	EventMessageDeleted    = "messageDeleted"
	EventUserTyping        = "userTyping"
	EventUserStatusChanged = "userStatusChanged"
	EventNewMatch          = "newMatch"
	EventError             = "error"
)

// Event is the wire envelope in both directions.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type TypingPayload struct {
	SenderID   int64 `json:"senderId,omitempty"`
	ReceiverID int64 `json:"receiverId,omitempty"`
	IsTyping   bool  `json:"isTyping"`
}

type SendMessagePayload struct {
	ReceiverID  int64  `json:"receiverId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType,omitempty"`
}

// MessagePayload is the socket view of a stored message.
type MessagePayload struct {
	ID          int64      `json:"id"`
	SenderID    int64      `json:"senderId"`
	ReceiverID  int64      `json:"receiverId"`
	Content     string     `json:"content"`
	MessageType string     `json:"messageType"`
	FileRef     string     `json:"fileRef,omitempty"`
	FileName    string     `json:"fileName,omitempty"`
	IsRead      bool       `json:"isRead"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
	IsDeleted   bool       `json:"isDeleted,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func newMessagePayload(m model.Message) MessagePayload {
	return MessagePayload{
		ID:          m.ID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		Content:     m.Content,
		MessageType: string(m.Kind),
		FileRef:     m.FileRef,
		FileName:    m.FileName,
		IsRead:      m.IsRead,
		ReadAt:      m.ReadAt,
		IsDeleted:   m.IsDeleted,
		CreatedAt:   m.CreatedAt,
	}
}

type StatusPayload struct {
	UserID   int64      `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type MatchPayload struct {
	MatchID     int64      `json:"matchId"`
	OtherUserID int64      `json:"otherUserId"`
	MatchedAt   *time.Time `json:"matchedAt"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newEvent(eventType string, payload interface{}) (Event, error) {
	if payload == nil {
		return Event{Type: eventType}, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw}, nil
}
