package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/avilenka/devmatch/internal/app/apiapp"
	"github.com/avilenka/devmatch/internal/config"
	"github.com/avilenka/devmatch/internal/domain/model"
	"github.com/avilenka/devmatch/internal/pkg/pair"
	pgrepo "github.com/avilenka/devmatch/internal/repo/postgres"
	authsvc "github.com/avilenka/devmatch/internal/services/auth"
	swipesvc "github.com/avilenka/devmatch/internal/services/swipes"
)

// memoryMatchStore mirrors the swipe upsert: one canonical record per pair,
// each write touching only the acting side.
type memoryMatchStore struct {
	records map[[2]int64]*model.Match
	nextID  int64
}

func newMemoryMatchStore() *memoryMatchStore {
	return &memoryMatchStore{records: map[[2]int64]*model.Match{}}
}

func (s *memoryMatchStore) ApplyDecision(_ context.Context, actorID, targetID int64, liked bool, now time.Time) (model.Match, error) {
	a, b := pair.Canonical(actorID, targetID)
	key := [2]int64{a, b}

	rec, ok := s.records[key]
	if !ok {
		s.nextID++
		rec = &model.Match{ID: s.nextID, UserAID: a, UserBID: b, CreatedAt: now}
		s.records[key] = rec
	}

	if actorID == a {
		rec.UserALiked = liked
		rec.UserAActedAt = &now
	} else {
		rec.UserBLiked = liked
		rec.UserBActedAt = &now
	}

	bothActed := rec.UserAActedAt != nil && rec.UserBActedAt != nil
	rec.IsMatch = bothActed && rec.UserALiked && rec.UserBLiked
	if rec.IsMatch && rec.MatchedAt == nil {
		at := now
		rec.MatchedAt = &at
	}
	rec.UpdatedAt = now

	return *rec, nil
}

func (s *memoryMatchStore) GetByPair(_ context.Context, userID, otherID int64) (model.Match, error) {
	a, b := pair.Canonical(userID, otherID)
	rec, ok := s.records[[2]int64{a, b}]
	if !ok {
		return model.Match{}, pgrepo.ErrMatchNotFound
	}
	return *rec, nil
}

func (s *memoryMatchStore) GetLastActionByUser(context.Context, pgx.Tx, int64) (model.Match, error) {
	return model.Match{}, pgrepo.ErrMatchNotFound
}

func (s *memoryMatchStore) DeleteByPair(context.Context, pgx.Tx, int64, int64) (bool, error) {
	return false, nil
}

func (s *memoryMatchStore) ListInteractionsForUser(context.Context, int64, *bool, int, int) ([]model.Match, error) {
	return nil, nil
}

func (s *memoryMatchStore) CountInteractionsForUser(context.Context, int64, *bool) (int, error) {
	return 0, nil
}

type memoryUserStore struct{}

func (memoryUserStore) Get(_ context.Context, id int64) (model.User, error) {
	return model.User{ID: id, IsActive: true, ProfileCompleted: true}, nil
}

type memorySessionStore struct {
	sessions map[string]authsvc.SessionRecord
}

func (s *memorySessionStore) Create(_ context.Context, session authsvc.SessionRecord) error {
	s.sessions[session.SID] = session
	return nil
}

func (s *memorySessionStore) GetSession(_ context.Context, sid string) (authsvc.SessionRecord, error) {
	session, ok := s.sessions[sid]
	if !ok {
		return authsvc.SessionRecord{}, authsvc.ErrSessionNotFound
	}
	return session, nil
}

func (s *memorySessionStore) DeleteSession(_ context.Context, sid string) error {
	delete(s.sessions, sid)
	return nil
}

func (s *memorySessionStore) DeleteAllForUser(_ context.Context, userID int64) error {
	for sid, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, sid)
		}
	}
	return nil
}

func newSmokeServer(t *testing.T) (*httptest.Server, *authsvc.Service) {
	t.Helper()

	authService := authsvc.NewService(
		authsvc.NewJWTManager("smoke-secret", 15*time.Minute),
		&memorySessionStore{sessions: map[string]authsvc.SessionRecord{}},
		48*time.Hour,
	)

	swipeService := swipesvc.NewService(swipesvc.Dependencies{
		Matches: newMemoryMatchStore(),
		Users:   memoryUserStore{},
	}, swipesvc.Config{})

	r := chi.NewRouter()
	apiapp.ApplyMiddlewares(r, zap.NewNop())
	apiapp.RegisterRoutes(r, apiapp.Dependencies{
		AuthService:  authService,
		SwipeService: swipeService,
		Logger:       zap.NewNop(),
		Config:       config.Default(),
	})

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, authService
}

func swipeAs(t *testing.T, ts *httptest.Server, token string, targetID int64) (int, map[string]any) {
	t.Helper()

	body, _ := json.Marshal(map[string]any{"target_id": targetID, "action": "like"})
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/swipes", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	payload := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp.StatusCode, payload
}

func TestHealthz(t *testing.T) {
	ts, _ := newSmokeServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", resp.StatusCode, http.StatusOK)
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "ok" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestSwipeRequiresToken(t *testing.T) {
	ts, _ := newSmokeServer(t)

	status, _ := swipeAs(t, ts, "", 2)
	if status != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", status, http.StatusUnauthorized)
	}
}

func TestMutualLikeOverHTTPCreatesMatch(t *testing.T) {
	ts, authService := newSmokeServer(t)

	first, err := authService.IssueForUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("issue token for user 1: %v", err)
	}
	second, err := authService.IssueForUser(context.Background(), 2)
	if err != nil {
		t.Fatalf("issue token for user 2: %v", err)
	}

	status, payload := swipeAs(t, ts, first.AccessToken, 2)
	if status != http.StatusOK {
		t.Fatalf("first swipe failed: %d %+v", status, payload)
	}
	if created, _ := payload["match_created"].(bool); created {
		t.Fatalf("one-sided like must not create a match: %+v", payload)
	}

	status, payload = swipeAs(t, ts, second.AccessToken, 1)
	if status != http.StatusOK {
		t.Fatalf("second swipe failed: %d %+v", status, payload)
	}
	if created, _ := payload["match_created"].(bool); !created {
		t.Fatalf("mutual like must create a match: %+v", payload)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/matches/status/2", nil)
	req.Header.Set("Authorization", "Bearer "+first.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get match status: %v", err)
	}
	defer resp.Body.Close()

	var statusPayload struct {
		IsMatched bool `json:"is_matched"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&statusPayload); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !statusPayload.IsMatched {
		t.Fatalf("expected is_matched=true after mutual like")
	}
}
