package dto

import "time"

type SwipeRequest struct {
	TargetID int64  `json:"target_id"`
	Action   string `json:"action"`
}

// SwipeResponse echoes the recorded action. is_match reports the absolute
// pair state while match_created marks the transition that this very swipe
// caused.
type SwipeResponse struct {
	OK           bool       `json:"ok"`
	Action       string     `json:"action"`
	IsMatch      bool       `json:"is_match"`
	MatchCreated bool       `json:"match_created"`
	MatchedAt    *time.Time `json:"matched_at,omitempty"`
}

type RewindResponse struct {
	OK             bool  `json:"ok"`
	UndoneTargetID int64 `json:"undone_target_id"`
	UndoneLiked    bool  `json:"undone_liked"`
}

type MatchStatusResponse struct {
	HasActed  bool       `json:"has_acted"`
	HasLiked  bool       `json:"has_liked"`
	IsMatched bool       `json:"is_matched"`
	MatchedAt *time.Time `json:"matched_at,omitempty"`
}

type InteractionView struct {
	TargetUserID int64      `json:"target_user_id"`
	Liked        bool       `json:"liked"`
	ActedAt      *time.Time `json:"acted_at"`
	IsMatched    bool       `json:"is_matched"`
}

type InteractionsResponse struct {
	Items []InteractionView `json:"items"`
	Total int               `json:"total"`
}
