package model

import "time"

// Match is the per-pair swipe ledger record. UserAID < UserBID always; the
// canonical ordering is applied before every read and write (see pkg/pair).
// IsMatch is derived from both liked flags and MatchedAt is set exactly once,
// the first time both sides have liked.
type Match struct {
	ID                  int64      `json:"id"`
	UserAID             int64      `json:"user_a_id"`
	UserBID             int64      `json:"user_b_id"`
	UserALiked          bool       `json:"user_a_liked"`
	UserBLiked          bool       `json:"user_b_liked"`
	IsMatch             bool       `json:"is_match"`
	MatchedAt           *time.Time `json:"matched_at"`
	UserAActedAt        *time.Time `json:"user_a_acted_at"`
	UserBActedAt        *time.Time `json:"user_b_acted_at"`
	ConversationStarted bool       `json:"conversation_started"`
	LastMessageAt       *time.Time `json:"last_message_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// LikedBy reports the stored decision of userID within this record. The
// second return is false when that side has not acted yet.
func (m Match) LikedBy(userID int64) (bool, bool) {
	switch userID {
	case m.UserAID:
		return m.UserALiked, m.UserAActedAt != nil
	case m.UserBID:
		return m.UserBLiked, m.UserBActedAt != nil
	default:
		return false, false
	}
}

// OtherUser returns the counterpart of userID in the pair.
func (m Match) OtherUser(userID int64) int64 {
	if userID == m.UserAID {
		return m.UserBID
	}
	return m.UserAID
}
