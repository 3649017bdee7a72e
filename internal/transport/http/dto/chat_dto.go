package dto

import (
	"time"

	"github.com/avilenka/devmatch/internal/domain/model"
)

type SendMessageRequest struct {
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
	Kind       string `json:"kind,omitempty"`
	FileRef    string `json:"file_ref,omitempty"`
	FileName   string `json:"file_name,omitempty"`
}

type MessageView struct {
	ID         int64      `json:"id"`
	SenderID   int64      `json:"sender_id"`
	ReceiverID int64      `json:"receiver_id"`
	Content    string     `json:"content"`
	Kind       string     `json:"kind"`
	FileRef    string     `json:"file_ref,omitempty"`
	FileName   string     `json:"file_name,omitempty"`
	IsRead     bool       `json:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func NewMessageView(m model.Message) MessageView {
	return MessageView{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Kind:       string(m.Kind),
		FileRef:    m.FileRef,
		FileName:   m.FileName,
		IsRead:     m.IsRead,
		ReadAt:     m.ReadAt,
		CreatedAt:  m.CreatedAt,
	}
}

type ConversationResponse struct {
	Messages []MessageView `json:"messages"`
	Total    int           `json:"total"`
}

type ConversationView struct {
	MatchID             int64        `json:"match_id"`
	OtherUser           UserView     `json:"other_user"`
	LastMessage         *MessageView `json:"last_message,omitempty"`
	UnreadCount         int          `json:"unread_count"`
	ConversationStarted bool         `json:"conversation_started"`
	MatchedAt           *time.Time   `json:"matched_at,omitempty"`
	LastMessageAt       *time.Time   `json:"last_message_at,omitempty"`
}

type ConversationsResponse struct {
	Items []ConversationView `json:"items"`
	Total int                `json:"total"`
}

type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

type AttachmentResponse struct {
	FileRef  string `json:"file_ref"`
	FileName string `json:"file_name,omitempty"`
	URL      string `json:"url"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}
