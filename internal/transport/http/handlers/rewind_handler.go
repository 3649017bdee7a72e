package handlers

import (
	"errors"
	"net/http"

	authsvc "github.com/avilenka/devmatch/internal/services/auth"
	swipesvc "github.com/avilenka/devmatch/internal/services/swipes"
	"github.com/avilenka/devmatch/internal/transport/http/dto"
	httperrors "github.com/avilenka/devmatch/internal/transport/http/errors"
)

type RewindHandler struct {
	service *swipesvc.Service
}

func NewRewindHandler(service *swipesvc.Service) *RewindHandler {
	return &RewindHandler{service: service}
}

func (h *RewindHandler) Handle(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "SWIPE_SERVICE_UNAVAILABLE", "swipe service is unavailable")
		return
	}

	result, err := h.service.Rewind(r.Context(), identity.UserID)
	if err != nil {
		switch {
		case errors.Is(err, swipesvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid rewind request")
		case errors.Is(err, swipesvc.ErrNoActionsToRewind):
			writeNotFound(w, "NOTHING_TO_REWIND", "no recent swipe to rewind")
		case errors.Is(err, swipesvc.ErrCannotRewindMatch):
			writeBadRequest(w, "CANNOT_REWIND_MATCH", "a mutual match cannot be rewound")
		case errors.Is(err, swipesvc.ErrRewindExpired):
			writeBadRequest(w, "REWIND_EXPIRED", "the rewind window has passed")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to rewind swipe")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.RewindResponse{
		OK:             true,
		UndoneTargetID: result.UndoneTargetID,
		UndoneLiked:    result.UndoneLiked,
	})
}
