package model

import "time"

// Conversation is a read-side projection, never stored: a mutual match joined
// with its latest non-deleted message and the viewer's unread count.
type Conversation struct {
	MatchID             int64      `json:"match_id"`
	OtherUser           User       `json:"other_user"`
	LastMessage         *Message   `json:"last_message"`
	UnreadCount         int        `json:"unread_count"`
	ConversationStarted bool       `json:"conversation_started"`
	MatchedAt           *time.Time `json:"matched_at"`
	LastMessageAt       *time.Time `json:"last_message_at"`
}
