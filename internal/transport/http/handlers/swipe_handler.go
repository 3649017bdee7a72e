package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/avilenka/devmatch/internal/domain/enums"
	authsvc "github.com/avilenka/devmatch/internal/services/auth"
	swipesvc "github.com/avilenka/devmatch/internal/services/swipes"
	"github.com/avilenka/devmatch/internal/transport/http/dto"
	httperrors "github.com/avilenka/devmatch/internal/transport/http/errors"
)

type SwipeHandler struct {
	service *swipesvc.Service
}

func NewSwipeHandler(service *swipesvc.Service) *SwipeHandler {
	return &SwipeHandler{service: service}
}

func (h *SwipeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "SWIPE_SERVICE_UNAVAILABLE", "swipe service is unavailable")
		return
	}

	var req dto.SwipeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if req.TargetID <= 0 || strings.TrimSpace(req.Action) == "" {
		writeBadRequest(w, "VALIDATION_ERROR", "target_id and action are required")
		return
	}

	action := enums.SwipeAction(strings.ToLower(strings.TrimSpace(req.Action)))
	if !action.Valid() {
		writeBadRequest(w, "VALIDATION_ERROR", "action must be like or dislike")
		return
	}

	result, err := h.service.RecordDecision(r.Context(), identity.UserID, req.TargetID, action)
	if err != nil {
		var tooFast swipesvc.TooFastError
		switch {
		case errors.Is(err, swipesvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid swipe request")
		case errors.Is(err, swipesvc.ErrTargetNotFound):
			writeNotFound(w, "TARGET_NOT_FOUND", "target user not found or profile incomplete")
		case errors.As(err, &tooFast):
			httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
				Code:          "TOO_FAST",
				Message:       "too many swipe actions, slow down",
				RetryAfterSec: tooFast.RetryAfterSec,
			})
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to process swipe")
		}
		return
	}

	resp := dto.SwipeResponse{
		OK:           true,
		Action:       string(action),
		IsMatch:      result.Record.IsMatch,
		MatchCreated: result.MatchCreated,
	}
	if result.Record.IsMatch {
		resp.MatchedAt = result.Record.MatchedAt
	}

	httperrors.Write(w, http.StatusOK, resp)
}
