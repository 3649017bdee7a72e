package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	goredis "github.com/redis/go-redis/v9"

	"github.com/avilenka/devmatch/internal/domain/model"
	pgrepo "github.com/avilenka/devmatch/internal/repo/postgres"
	redrepo "github.com/avilenka/devmatch/internal/repo/redis"
	authsvc "github.com/avilenka/devmatch/internal/services/auth"
	ratesvc "github.com/avilenka/devmatch/internal/services/rate"
	swipesvc "github.com/avilenka/devmatch/internal/services/swipes"
)

type stubMatchStore struct {
	applied    model.Match
	byPair     map[[2]int64]model.Match
	lastAction *model.Match
}

func (s *stubMatchStore) ApplyDecision(_ context.Context, actorID, targetID int64, liked bool, now time.Time) (model.Match, error) {
	rec := s.applied
	if rec.UserAID == 0 {
		rec = model.Match{UserAID: actorID, UserBID: targetID, UserALiked: liked, UserAActedAt: &now}
	}
	if rec.IsMatch && rec.MatchedAt == nil {
		// A fresh mutual match carries the write timestamp; a preset one
		// keeps its original.
		rec.MatchedAt = &now
	}
	return rec, nil
}

func (s *stubMatchStore) GetByPair(_ context.Context, userID, otherID int64) (model.Match, error) {
	key := [2]int64{userID, otherID}
	if userID > otherID {
		key = [2]int64{otherID, userID}
	}
	rec, ok := s.byPair[key]
	if !ok {
		return model.Match{}, pgrepo.ErrMatchNotFound
	}
	return rec, nil
}

func (s *stubMatchStore) GetLastActionByUser(context.Context, pgx.Tx, int64) (model.Match, error) {
	if s.lastAction == nil {
		return model.Match{}, pgrepo.ErrMatchNotFound
	}
	return *s.lastAction, nil
}

func (s *stubMatchStore) DeleteByPair(context.Context, pgx.Tx, int64, int64) (bool, error) {
	return s.lastAction != nil, nil
}

func (s *stubMatchStore) ListInteractionsForUser(_ context.Context, userID int64, likedFilter *bool, _, _ int) ([]model.Match, error) {
	items := make([]model.Match, 0)
	for _, rec := range s.byPair {
		liked, acted := rec.LikedBy(userID)
		if !acted {
			continue
		}
		if likedFilter != nil && liked != *likedFilter {
			continue
		}
		items = append(items, rec)
	}
	return items, nil
}

func (s *stubMatchStore) CountInteractionsForUser(ctx context.Context, userID int64, likedFilter *bool) (int, error) {
	items, err := s.ListInteractionsForUser(ctx, userID, likedFilter, 0, 0)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

type stubUserStore struct {
	users map[int64]model.User
}

func (s *stubUserStore) Get(_ context.Context, id int64) (model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return model.User{}, pgrepo.ErrUserNotFound
	}
	return u, nil
}

func activeUsers(ids ...int64) *stubUserStore {
	users := map[int64]model.User{}
	for _, id := range ids {
		users[id] = model.User{ID: id, IsActive: true, ProfileCompleted: true}
	}
	return &stubUserStore{users: users}
}

func performSwipeRequest(t *testing.T, h *SwipeHandler, userID, targetID int64, action string) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"target_id": targetID,
		"action":    action,
	})
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/swipes", bytes.NewReader(body))
	req = req.WithContext(authsvc.WithIdentity(context.Background(), authsvc.Identity{
		UserID: userID,
		SID:    "sid-test",
	}))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestSwipeHandlerReportsMutualMatch(t *testing.T) {
	now := time.Now().UTC()
	matches := &stubMatchStore{}
	matches.applied = model.Match{
		UserAID: 1, UserBID: 2,
		UserALiked: true, UserBLiked: true,
		IsMatch:      true,
		UserAActedAt: &now, UserBActedAt: &now,
	}

	svc := swipesvc.NewService(swipesvc.Dependencies{
		Matches: matches,
		Users:   activeUsers(2),
	}, swipesvc.Config{})

	h := NewSwipeHandler(svc)
	resp := performSwipeRequest(t, h, 1, 2, "like")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d, body %s", resp.Code, http.StatusOK, resp.Body.String())
	}

	var payload struct {
		OK           bool   `json:"ok"`
		Action       string `json:"action"`
		IsMatch      bool   `json:"is_match"`
		MatchCreated bool   `json:"match_created"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.OK || !payload.MatchCreated || !payload.IsMatch {
		t.Fatalf("expected a fresh mutual match, got %+v", payload)
	}
	if payload.Action != "like" {
		t.Fatalf("expected the action echoed back, got %+v", payload)
	}
}

func TestSwipeHandlerEchoesStateOfExistingMatch(t *testing.T) {
	matchedAt := time.Now().UTC().Add(-time.Hour)
	actedAt := matchedAt
	matches := &stubMatchStore{}
	matches.applied = model.Match{
		UserAID: 1, UserBID: 2,
		UserALiked: true, UserBLiked: true,
		IsMatch:      true,
		MatchedAt:    &matchedAt,
		UserAActedAt: &actedAt, UserBActedAt: &actedAt,
	}

	svc := swipesvc.NewService(swipesvc.Dependencies{
		Matches: matches,
		Users:   activeUsers(2),
	}, swipesvc.Config{})

	h := NewSwipeHandler(svc)
	resp := performSwipeRequest(t, h, 1, 2, "like")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d, body %s", resp.Code, http.StatusOK, resp.Body.String())
	}

	var payload struct {
		OK           bool   `json:"ok"`
		Action       string `json:"action"`
		IsMatch      bool   `json:"is_match"`
		MatchCreated bool   `json:"match_created"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.MatchCreated {
		t.Fatalf("re-liking an already matched pair must not report a new match: %+v", payload)
	}
	if !payload.OK || !payload.IsMatch || payload.Action != "like" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestSwipeHandlerRejectsUnknownAction(t *testing.T) {
	svc := swipesvc.NewService(swipesvc.Dependencies{
		Matches: &stubMatchStore{},
		Users:   activeUsers(2),
	}, swipesvc.Config{})

	h := NewSwipeHandler(svc)
	resp := performSwipeRequest(t, h, 1, 2, "superlike")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", resp.Code, http.StatusBadRequest)
	}

	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error code: got %q want %q", payload.Code, "VALIDATION_ERROR")
	}
}

func TestSwipeHandlerReturnsNotFoundForUnknownTarget(t *testing.T) {
	svc := swipesvc.NewService(swipesvc.Dependencies{
		Matches: &stubMatchStore{},
		Users:   activeUsers(),
	}, swipesvc.Config{})

	h := NewSwipeHandler(svc)
	resp := performSwipeRequest(t, h, 1, 99, "like")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d want %d", resp.Code, http.StatusNotFound)
	}
}

func TestSwipeHandlerReturnsTooFastOnBurst(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	redisClient := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer func() { _ = redisClient.Close() }()

	rateLimiter := ratesvc.NewLimiter(redrepo.NewRateRepo(redisClient), 2, 2)

	svc := swipesvc.NewService(swipesvc.Dependencies{
		Matches: &stubMatchStore{},
		Users:   activeUsers(1000, 1001, 1002),
		Limiter: rateLimiter,
	}, swipesvc.Config{})

	h := NewSwipeHandler(svc)
	for i := int64(0); i < 2; i++ {
		if resp := performSwipeRequest(t, h, 1, 1000+i, "like"); resp.Code != http.StatusOK {
			t.Fatalf("warmup swipe %d failed: %d %s", i, resp.Code, resp.Body.String())
		}
	}

	resp := performSwipeRequest(t, h, 1, 1002, "like")
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected status on third like: got %d want %d", resp.Code, http.StatusTooManyRequests)
	}

	var payload struct {
		Code          string `json:"code"`
		RetryAfterSec int64  `json:"retry_after_sec"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Code != "TOO_FAST" {
		t.Fatalf("unexpected error code: got %q want %q", payload.Code, "TOO_FAST")
	}
	if payload.RetryAfterSec <= 0 {
		t.Fatalf("expected positive retry_after_sec, got %d", payload.RetryAfterSec)
	}
}

func TestSwipeHandlerRequiresAuth(t *testing.T) {
	h := NewSwipeHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/swipes", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusUnauthorized)
	}
}
