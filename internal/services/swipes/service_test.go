package swipes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avilenka/devmatch/internal/domain/enums"
	"github.com/avilenka/devmatch/internal/domain/model"
	pgrepo "github.com/avilenka/devmatch/internal/repo/postgres"
	"github.com/avilenka/devmatch/internal/pkg/pair"
)

// fakeMatchStore reproduces the upsert semantics of the postgres repo in
// memory: canonical pair ordering, per-side writes, derived is_match and a
// matched_at that is set exactly once.
type fakeMatchStore struct {
	nextID  int64
	records map[[2]int64]*model.Match
}

func newFakeMatchStore() *fakeMatchStore {
	return &fakeMatchStore{nextID: 1, records: map[[2]int64]*model.Match{}}
}

func (f *fakeMatchStore) ApplyDecision(_ context.Context, actorID, targetID int64, liked bool, now time.Time) (model.Match, error) {
	userA, userB := pair.Canonical(actorID, targetID)
	key := [2]int64{userA, userB}

	rec, ok := f.records[key]
	if !ok {
		rec = &model.Match{
			ID:        f.nextID,
			UserAID:   userA,
			UserBID:   userB,
			CreatedAt: now,
		}
		f.nextID++
		f.records[key] = rec
	}

	if pair.IsFirst(actorID, targetID) {
		rec.UserALiked = liked
		at := now
		rec.UserAActedAt = &at
	} else {
		rec.UserBLiked = liked
		at := now
		rec.UserBActedAt = &at
	}

	rec.IsMatch = rec.UserALiked && rec.UserBLiked &&
		rec.UserAActedAt != nil && rec.UserBActedAt != nil
	if rec.IsMatch && rec.MatchedAt == nil {
		at := now
		rec.MatchedAt = &at
	}
	rec.UpdatedAt = now

	return *rec, nil
}

func (f *fakeMatchStore) GetByPair(_ context.Context, userID, otherID int64) (model.Match, error) {
	userA, userB := pair.Canonical(userID, otherID)
	rec, ok := f.records[[2]int64{userA, userB}]
	if !ok {
		return model.Match{}, pgrepo.ErrMatchNotFound
	}
	return *rec, nil
}

func (f *fakeMatchStore) GetLastActionByUser(_ context.Context, _ pgx.Tx, userID int64) (model.Match, error) {
	var last *model.Match
	var lastAt time.Time
	for _, rec := range f.records {
		var actedAt *time.Time
		if rec.UserAID == userID {
			actedAt = rec.UserAActedAt
		} else if rec.UserBID == userID {
			actedAt = rec.UserBActedAt
		}
		if actedAt == nil {
			continue
		}
		if last == nil || actedAt.After(lastAt) {
			last = rec
			lastAt = *actedAt
		}
	}
	if last == nil {
		return model.Match{}, pgrepo.ErrMatchNotFound
	}
	return *last, nil
}

func (f *fakeMatchStore) DeleteByPair(_ context.Context, _ pgx.Tx, userID, otherID int64) (bool, error) {
	userA, userB := pair.Canonical(userID, otherID)
	key := [2]int64{userA, userB}
	if _, ok := f.records[key]; !ok {
		return false, nil
	}
	delete(f.records, key)
	return true, nil
}

func (f *fakeMatchStore) ListInteractionsForUser(_ context.Context, userID int64, likedFilter *bool, limit, offset int) ([]model.Match, error) {
	var items []model.Match
	for _, rec := range f.records {
		liked, acted := rec.LikedBy(userID)
		if !acted {
			continue
		}
		if likedFilter != nil && liked != *likedFilter {
			continue
		}
		items = append(items, *rec)
	}
	if offset >= len(items) {
		return nil, nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (f *fakeMatchStore) CountInteractionsForUser(_ context.Context, userID int64, likedFilter *bool) (int, error) {
	count := 0
	for _, rec := range f.records {
		liked, acted := rec.LikedBy(userID)
		if !acted {
			continue
		}
		if likedFilter != nil && liked != *likedFilter {
			continue
		}
		count++
	}
	return count, nil
}

type fakeUserStore struct {
	users map[int64]model.User
}

func (f *fakeUserStore) Get(_ context.Context, id int64) (model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return model.User{}, pgrepo.ErrUserNotFound
	}
	return u, nil
}

type limiterStub struct {
	allowed    bool
	retryAfter int64
}

func (s limiterStub) AllowSwipe(context.Context, int64) (int64, bool, error) {
	return s.retryAfter, s.allowed, nil
}

type notifierSpy struct {
	matches []model.Match
}

func (n *notifierSpy) MatchCreated(_ context.Context, m model.Match) {
	n.matches = append(n.matches, m)
}

func activeUsers(ids ...int64) *fakeUserStore {
	users := map[int64]model.User{}
	for _, id := range ids {
		users[id] = model.User{ID: id, IsActive: true, ProfileCompleted: true}
	}
	return &fakeUserStore{users: users}
}

func newTestService(matches *fakeMatchStore, users *fakeUserStore, notifier MatchNotifier) *Service {
	return &Service{
		matches:  matches,
		users:    users,
		notifier: notifier,
		cfg:      Config{UndoWindow: 5 * time.Minute},
		now:      time.Now,
		runTx: func(ctx context.Context, _ *pgxpool.Pool, fn func(context.Context, pgx.Tx) error) error {
			return fn(ctx, nil)
		},
	}
}

func TestMutualLikeCreatesMatchOnSecondSwipeOnly(t *testing.T) {
	store := newFakeMatchStore()
	notifier := &notifierSpy{}
	svc := newTestService(store, activeUsers(1, 2), notifier)
	ctx := context.Background()

	first, err := svc.RecordDecision(ctx, 1, 2, enums.SwipeActionLike)
	if err != nil {
		t.Fatalf("first swipe: %v", err)
	}
	if first.MatchCreated {
		t.Fatalf("one-sided like must not create a match")
	}
	if first.Record.IsMatch {
		t.Fatalf("record must not be matched after one like")
	}

	second, err := svc.RecordDecision(ctx, 2, 1, enums.SwipeActionLike)
	if err != nil {
		t.Fatalf("second swipe: %v", err)
	}
	if !second.MatchCreated {
		t.Fatalf("mutual like must create a match")
	}
	if !second.Record.IsMatch || second.Record.MatchedAt == nil {
		t.Fatalf("record must be matched with matched_at set")
	}
	if len(notifier.matches) != 1 {
		t.Fatalf("expected exactly one match notification, got %d", len(notifier.matches))
	}
}

// microsecondStore rounds every stored timestamp the way timestamptz does,
// so a record read back never carries more precision than the database keeps.
type microsecondStore struct {
	*fakeMatchStore
}

func (s microsecondStore) ApplyDecision(ctx context.Context, actorID, targetID int64, liked bool, now time.Time) (model.Match, error) {
	return s.fakeMatchStore.ApplyDecision(ctx, actorID, targetID, liked, now.Truncate(time.Microsecond))
}

func TestMatchTransitionSurvivesTimestampRounding(t *testing.T) {
	notifier := &notifierSpy{}
	svc := &Service{
		matches:  microsecondStore{newFakeMatchStore()},
		users:    activeUsers(1, 2),
		notifier: notifier,
		cfg:      Config{UndoWindow: 5 * time.Minute},
		now: func() time.Time {
			return time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
		},
	}
	ctx := context.Background()

	if _, err := svc.RecordDecision(ctx, 1, 2, enums.SwipeActionLike); err != nil {
		t.Fatalf("first swipe: %v", err)
	}
	result, err := svc.RecordDecision(ctx, 2, 1, enums.SwipeActionLike)
	if err != nil {
		t.Fatalf("second swipe: %v", err)
	}

	if !result.MatchCreated {
		t.Fatalf("transition must be detected despite microsecond rounding, matched_at=%v", result.Record.MatchedAt)
	}
	if len(notifier.matches) != 1 {
		t.Fatalf("expected one match notification, got %d", len(notifier.matches))
	}
}

func TestSwipeOrderDoesNotMatter(t *testing.T) {
	store := newFakeMatchStore()
	svc := newTestService(store, activeUsers(5, 2), nil)
	ctx := context.Background()

	if _, err := svc.RecordDecision(ctx, 5, 2, enums.SwipeActionLike); err != nil {
		t.Fatalf("swipe from higher id: %v", err)
	}
	result, err := svc.RecordDecision(ctx, 2, 5, enums.SwipeActionLike)
	if err != nil {
		t.Fatalf("swipe from lower id: %v", err)
	}

	if !result.MatchCreated {
		t.Fatalf("mutual like must match regardless of id order")
	}
	if result.Record.UserAID != 2 || result.Record.UserBID != 5 {
		t.Fatalf("record must be canonically ordered, got (%d, %d)", result.Record.UserAID, result.Record.UserBID)
	}
	if len(store.records) != 1 {
		t.Fatalf("both swipes must land on one record, got %d", len(store.records))
	}
}

func TestReswipeOverwritesOwnSideOnly(t *testing.T) {
	store := newFakeMatchStore()
	svc := newTestService(store, activeUsers(1, 2), nil)
	ctx := context.Background()

	if _, err := svc.RecordDecision(ctx, 2, 1, enums.SwipeActionLike); err != nil {
		t.Fatalf("counterpart like: %v", err)
	}
	if _, err := svc.RecordDecision(ctx, 1, 2, enums.SwipeActionDislike); err != nil {
		t.Fatalf("dislike: %v", err)
	}
	result, err := svc.RecordDecision(ctx, 1, 2, enums.SwipeActionLike)
	if err != nil {
		t.Fatalf("re-swipe to like: %v", err)
	}

	liked, acted := result.Record.LikedBy(1)
	if !acted || !liked {
		t.Fatalf("re-swipe must overwrite own decision")
	}
	otherLiked, otherActed := result.Record.LikedBy(2)
	if !otherActed || !otherLiked {
		t.Fatalf("counterpart decision must survive the re-swipe")
	}
	if !result.MatchCreated {
		t.Fatalf("flipping dislike to like against a standing like must match")
	}
}

func TestDislikeNeverMatches(t *testing.T) {
	store := newFakeMatchStore()
	notifier := &notifierSpy{}
	svc := newTestService(store, activeUsers(1, 2), notifier)
	ctx := context.Background()

	if _, err := svc.RecordDecision(ctx, 1, 2, enums.SwipeActionLike); err != nil {
		t.Fatalf("like: %v", err)
	}
	result, err := svc.RecordDecision(ctx, 2, 1, enums.SwipeActionDislike)
	if err != nil {
		t.Fatalf("dislike: %v", err)
	}

	if result.MatchCreated || result.Record.IsMatch {
		t.Fatalf("dislike must never produce a match")
	}
	if len(notifier.matches) != 0 {
		t.Fatalf("no notification expected, got %d", len(notifier.matches))
	}
}

func TestSelfSwipeRejected(t *testing.T) {
	svc := newTestService(newFakeMatchStore(), activeUsers(1), nil)

	if _, err := svc.RecordDecision(context.Background(), 1, 1, enums.SwipeActionLike); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for self swipe, got %v", err)
	}
}

func TestSwipeUnknownTargetRejected(t *testing.T) {
	svc := newTestService(newFakeMatchStore(), activeUsers(1), nil)

	if _, err := svc.RecordDecision(context.Background(), 1, 99, enums.SwipeActionLike); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound, got %v", err)
	}
}

func TestSwipeInactiveTargetRejected(t *testing.T) {
	users := activeUsers(1)
	users.users[2] = model.User{ID: 2, IsActive: false, ProfileCompleted: true}
	svc := newTestService(newFakeMatchStore(), users, nil)

	if _, err := svc.RecordDecision(context.Background(), 1, 2, enums.SwipeActionLike); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound, got %v", err)
	}
}

func TestSwipeIncompleteProfileTargetRejected(t *testing.T) {
	users := activeUsers(1)
	users.users[2] = model.User{ID: 2, IsActive: true, ProfileCompleted: false}
	store := newFakeMatchStore()
	svc := newTestService(store, users, nil)

	if _, err := svc.RecordDecision(context.Background(), 1, 2, enums.SwipeActionLike); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound, got %v", err)
	}
	if len(store.records) != 0 {
		t.Fatalf("rejected swipe must not write a pair record, got %d", len(store.records))
	}
}

func TestSwipeRateLimited(t *testing.T) {
	svc := newTestService(newFakeMatchStore(), activeUsers(1, 2), nil)
	svc.limiter = limiterStub{allowed: false, retryAfter: 7}

	_, err := svc.RecordDecision(context.Background(), 1, 2, enums.SwipeActionLike)
	var tooFast TooFastError
	if !errors.As(err, &tooFast) {
		t.Fatalf("expected TooFastError, got %v", err)
	}
	if tooFast.RetryAfterSec != 7 {
		t.Fatalf("unexpected retry hint: %d", tooFast.RetryAfterSec)
	}
}

func TestRewindDeletesWholePairRecord(t *testing.T) {
	store := newFakeMatchStore()
	svc := newTestService(store, activeUsers(1, 2), nil)
	ctx := context.Background()

	if _, err := svc.RecordDecision(ctx, 2, 1, enums.SwipeActionLike); err != nil {
		t.Fatalf("counterpart like: %v", err)
	}
	if _, err := svc.RecordDecision(ctx, 1, 2, enums.SwipeActionDislike); err != nil {
		t.Fatalf("dislike: %v", err)
	}

	result, err := svc.Rewind(ctx, 1)
	if err != nil {
		t.Fatalf("rewind: %v", err)
	}
	if result.UndoneTargetID != 2 || result.UndoneLiked {
		t.Fatalf("unexpected rewind result: %+v", result)
	}

	// The counterpart's like is removed along with the record.
	if _, err := store.GetByPair(ctx, 1, 2); !errors.Is(err, pgrepo.ErrMatchNotFound) {
		t.Fatalf("pair record should be gone, got %v", err)
	}
}

func TestRewindWithoutActionsFails(t *testing.T) {
	svc := newTestService(newFakeMatchStore(), activeUsers(1), nil)

	if _, err := svc.Rewind(context.Background(), 1); !errors.Is(err, ErrNoActionsToRewind) {
		t.Fatalf("expected ErrNoActionsToRewind, got %v", err)
	}
}

func TestRewindRefusesMutualMatch(t *testing.T) {
	store := newFakeMatchStore()
	svc := newTestService(store, activeUsers(1, 2), nil)
	ctx := context.Background()

	if _, err := svc.RecordDecision(ctx, 1, 2, enums.SwipeActionLike); err != nil {
		t.Fatalf("like: %v", err)
	}
	if _, err := svc.RecordDecision(ctx, 2, 1, enums.SwipeActionLike); err != nil {
		t.Fatalf("counterpart like: %v", err)
	}

	if _, err := svc.Rewind(ctx, 1); !errors.Is(err, ErrCannotRewindMatch) {
		t.Fatalf("expected ErrCannotRewindMatch, got %v", err)
	}
}

func TestRewindExpiresAfterWindow(t *testing.T) {
	store := newFakeMatchStore()
	svc := newTestService(store, activeUsers(1, 2), nil)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	if _, err := svc.RecordDecision(ctx, 1, 2, enums.SwipeActionLike); err != nil {
		t.Fatalf("like: %v", err)
	}

	svc.now = func() time.Time { return base.Add(6 * time.Minute) }
	if _, err := svc.Rewind(ctx, 1); !errors.Is(err, ErrRewindExpired) {
		t.Fatalf("expected ErrRewindExpired, got %v", err)
	}
}

func TestStatusHidesCounterpartDecisionUntilMatch(t *testing.T) {
	store := newFakeMatchStore()
	svc := newTestService(store, activeUsers(1, 2), nil)
	ctx := context.Background()

	if _, err := svc.RecordDecision(ctx, 2, 1, enums.SwipeActionLike); err != nil {
		t.Fatalf("counterpart like: %v", err)
	}

	status, err := svc.StatusWith(ctx, 1, 2)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.ViewerActed || status.IsMatch {
		t.Fatalf("viewer has not acted and must not see a match: %+v", status)
	}
}

func TestStatusForUnknownPairIsZero(t *testing.T) {
	svc := newTestService(newFakeMatchStore(), activeUsers(1, 2), nil)

	status, err := svc.StatusWith(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != (Status{}) {
		t.Fatalf("expected zero status, got %+v", status)
	}
}

func TestListInteractionsFiltersByDecision(t *testing.T) {
	store := newFakeMatchStore()
	svc := newTestService(store, activeUsers(1, 2, 3, 4), nil)
	ctx := context.Background()

	if _, err := svc.RecordDecision(ctx, 1, 2, enums.SwipeActionLike); err != nil {
		t.Fatalf("like 2: %v", err)
	}
	if _, err := svc.RecordDecision(ctx, 1, 3, enums.SwipeActionDislike); err != nil {
		t.Fatalf("dislike 3: %v", err)
	}
	if _, err := svc.RecordDecision(ctx, 1, 4, enums.SwipeActionLike); err != nil {
		t.Fatalf("like 4: %v", err)
	}

	liked := true
	page, err := svc.ListInteractions(ctx, 1, &liked, 10, 0)
	if err != nil {
		t.Fatalf("list likes: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("expected 2 likes, got total=%d items=%d", page.Total, len(page.Items))
	}

	all, err := svc.ListInteractions(ctx, 1, nil, 10, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if all.Total != 3 {
		t.Fatalf("expected 3 interactions, got %d", all.Total)
	}
}
