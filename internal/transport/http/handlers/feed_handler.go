package handlers

import (
	"errors"
	"net/http"

	authsvc "github.com/avilenka/devmatch/internal/services/auth"
	feedsvc "github.com/avilenka/devmatch/internal/services/feed"
	"github.com/avilenka/devmatch/internal/transport/http/dto"
	httperrors "github.com/avilenka/devmatch/internal/transport/http/errors"
)

type FeedHandler struct {
	service *feedsvc.Service
}

func NewFeedHandler(service *feedsvc.Service) *FeedHandler {
	return &FeedHandler{service: service}
}

func (h *FeedHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "FEED_SERVICE_UNAVAILABLE", "feed service is unavailable")
		return
	}

	limit := queryInt(r, "limit", "0")

	candidates, err := h.service.Recommendations(r.Context(), identity.UserID, limit)
	if err != nil {
		if errors.Is(err, feedsvc.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", "invalid recommendations request")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to load recommendations")
		return
	}

	items := make([]dto.UserView, 0, len(candidates))
	for _, candidate := range candidates {
		items = append(items, dto.NewUserView(candidate))
	}

	httperrors.Write(w, http.StatusOK, dto.RecommendationsResponse{Items: items})
}
