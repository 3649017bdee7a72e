package handlers

import (
	"errors"
	"net/http"
	"strings"

	authsvc "github.com/avilenka/devmatch/internal/services/auth"
	matchessvc "github.com/avilenka/devmatch/internal/services/matches"
	swipesvc "github.com/avilenka/devmatch/internal/services/swipes"
	"github.com/avilenka/devmatch/internal/transport/http/dto"
	httperrors "github.com/avilenka/devmatch/internal/transport/http/errors"
)

type MatchesHandler struct {
	swipes    *swipesvc.Service
	matches   *matchessvc.Service
	pageLimit int
}

func NewMatchesHandler(swipes *swipesvc.Service, matches *matchessvc.Service, pageLimit int) *MatchesHandler {
	if pageLimit <= 0 {
		pageLimit = 20
	}
	return &MatchesHandler{swipes: swipes, matches: matches, pageLimit: pageLimit}
}

// Status reports the caller's recorded decision toward another user. The
// counterpart's decision stays hidden until the match is mutual.
func (h *MatchesHandler) Status(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.swipes == nil {
		writeInternal(w, "MATCH_SERVICE_UNAVAILABLE", "match service is unavailable")
		return
	}

	targetID, ok := pathInt64(r, "target_id")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "target_id must be a positive integer")
		return
	}

	status, err := h.swipes.StatusWith(r.Context(), identity.UserID, targetID)
	if err != nil {
		switch {
		case errors.Is(err, swipesvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid status request")
		case errors.Is(err, swipesvc.ErrTargetNotFound):
			writeNotFound(w, "TARGET_NOT_FOUND", "target user not found")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to load match status")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.MatchStatusResponse{
		HasActed:  status.ViewerActed,
		HasLiked:  status.ViewerLiked,
		IsMatched: status.IsMatch,
		MatchedAt: status.MatchedAt,
	})
}

// Interactions pages through the caller's swipe history, optionally
// narrowed with ?type=likes or ?type=dislikes.
func (h *MatchesHandler) Interactions(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.swipes == nil {
		writeInternal(w, "MATCH_SERVICE_UNAVAILABLE", "match service is unavailable")
		return
	}

	var likedFilter *bool
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("type"))) {
	case "", "all":
	case "likes":
		liked := true
		likedFilter = &liked
	case "dislikes":
		liked := false
		likedFilter = &liked
	default:
		writeBadRequest(w, "VALIDATION_ERROR", "type must be likes, dislikes or all")
		return
	}

	limit, offset := pageParams(r, h.pageLimit)

	page, err := h.swipes.ListInteractions(r.Context(), identity.UserID, likedFilter, limit, offset)
	if err != nil {
		if errors.Is(err, swipesvc.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", "invalid interactions request")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to load interactions")
		return
	}

	items := make([]dto.InteractionView, 0, len(page.Items))
	for _, rec := range page.Items {
		liked, acted := rec.LikedBy(identity.UserID)
		if !acted {
			continue
		}

		actedAt := rec.UserAActedAt
		if identity.UserID == rec.UserBID {
			actedAt = rec.UserBActedAt
		}

		items = append(items, dto.InteractionView{
			TargetUserID: rec.OtherUser(identity.UserID),
			Liked:        liked,
			ActedAt:      actedAt,
			IsMatched:    rec.IsMatch,
		})
	}

	httperrors.Write(w, http.StatusOK, dto.InteractionsResponse{
		Items: items,
		Total: page.Total,
	})
}

// Conversations returns the caller's inbox: mutual matches joined with the
// counterpart profile, latest message and unread count.
func (h *MatchesHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.matches == nil {
		writeInternal(w, "MATCH_SERVICE_UNAVAILABLE", "match service is unavailable")
		return
	}

	limit, offset := pageParams(r, h.pageLimit)

	page, err := h.matches.ListConversations(r.Context(), identity.UserID, limit, offset)
	if err != nil {
		if errors.Is(err, matchessvc.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", "invalid conversations request")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to load conversations")
		return
	}

	items := make([]dto.ConversationView, 0, len(page.Items))
	for _, conv := range page.Items {
		view := dto.ConversationView{
			MatchID:             conv.MatchID,
			OtherUser:           dto.NewUserView(conv.OtherUser),
			UnreadCount:         conv.UnreadCount,
			ConversationStarted: conv.ConversationStarted,
			MatchedAt:           conv.MatchedAt,
			LastMessageAt:       conv.LastMessageAt,
		}
		if conv.LastMessage != nil {
			last := dto.NewMessageView(*conv.LastMessage)
			view.LastMessage = &last
		}
		items = append(items, view)
	}

	httperrors.Write(w, http.StatusOK, dto.ConversationsResponse{
		Items: items,
		Total: page.Total,
	})
}
