package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avilenka/devmatch/internal/domain/model"
	feedsvc "github.com/avilenka/devmatch/internal/services/feed"
)

type stubCandidateStore struct {
	users map[int64]model.User
}

func (s *stubCandidateStore) ListCandidatesExcluding(_ context.Context, viewerID int64, excludeIDs []int64, limit int) ([]model.User, error) {
	excluded := map[int64]bool{viewerID: true}
	for _, id := range excludeIDs {
		excluded[id] = true
	}

	out := make([]model.User, 0)
	for id, u := range s.users {
		if excluded[id] || !u.IsActive || !u.ProfileCompleted {
			continue
		}
		out = append(out, u)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type stubInteractedStore struct {
	interacted []int64
}

func (s *stubInteractedStore) ListInteractedUserIDs(context.Context, int64) ([]int64, error) {
	return s.interacted, nil
}

func TestRecommendationsExcludeInteractedUsers(t *testing.T) {
	candidates := &stubCandidateStore{users: map[int64]model.User{
		2: {ID: 2, DisplayName: "Ada", IsActive: true, ProfileCompleted: true},
		3: {ID: 3, DisplayName: "Ben", IsActive: true, ProfileCompleted: true},
	}}
	interacted := &stubInteractedStore{interacted: []int64{3}}

	svc := feedsvc.NewService(candidates, interacted, feedsvc.Config{})
	h := NewFeedHandler(svc)

	rec := httptest.NewRecorder()
	h.Recommendations(rec, authedRequest(http.MethodGet, "/v1/recommendations", 1, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusOK)
	}

	var payload struct {
		Items []struct {
			ID int64 `json:"id"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 1 || payload.Items[0].ID != 2 {
		t.Fatalf("expected only user 2 in recommendations, got %+v", payload.Items)
	}
}

func TestRecommendationsRequireAuth(t *testing.T) {
	h := NewFeedHandler(nil)

	rec := httptest.NewRecorder()
	h.Recommendations(rec, httptest.NewRequest(http.MethodGet, "/v1/recommendations", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusUnauthorized)
	}
}
