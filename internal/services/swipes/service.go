package swipes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avilenka/devmatch/internal/domain/enums"
	"github.com/avilenka/devmatch/internal/domain/model"
	pgrepo "github.com/avilenka/devmatch/internal/repo/postgres"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrTargetNotFound    = errors.New("target user not found or unavailable")
	ErrNoActionsToRewind = errors.New("no actions to rewind")
	ErrRewindExpired     = errors.New("rewind window expired")
	ErrCannotRewindMatch = errors.New("cannot rewind a mutual match")
)

// TooFastError carries the rate limiter's retry hint to the transport layer.
type TooFastError struct {
	RetryAfterSec int64
}

func (e TooFastError) Error() string {
	return fmt.Sprintf("too many swipes, retry after %ds", e.RetryAfterSec)
}

type MatchStore interface {
	ApplyDecision(ctx context.Context, actorID, targetID int64, liked bool, now time.Time) (model.Match, error)
	GetByPair(ctx context.Context, userID, otherID int64) (model.Match, error)
	GetLastActionByUser(ctx context.Context, tx pgx.Tx, userID int64) (model.Match, error)
	DeleteByPair(ctx context.Context, tx pgx.Tx, userID, otherID int64) (bool, error)
	ListInteractionsForUser(ctx context.Context, userID int64, likedFilter *bool, limit, offset int) ([]model.Match, error)
	CountInteractionsForUser(ctx context.Context, userID int64, likedFilter *bool) (int, error)
}

type UserStore interface {
	Get(ctx context.Context, id int64) (model.User, error)
}

type RateLimiter interface {
	AllowSwipe(ctx context.Context, userID int64) (int64, bool, error)
}

// MatchNotifier receives the mutual-match transition after it is committed.
type MatchNotifier interface {
	MatchCreated(ctx context.Context, match model.Match)
}

type Config struct {
	UndoWindow time.Duration
}

type SwipeResult struct {
	Record       model.Match
	MatchCreated bool
}

type RewindResult struct {
	UndoneTargetID int64
	UndoneLiked    bool
}

// Status is the viewer's side of a pair record. The counterpart's decision
// is only revealed once the match is mutual.
type Status struct {
	ViewerActed bool
	ViewerLiked bool
	IsMatch     bool
	MatchedAt   *time.Time
}

type InteractionsPage struct {
	Items []model.Match
	Total int
}

type Service struct {
	pool     *pgxpool.Pool
	matches  MatchStore
	users    UserStore
	limiter  RateLimiter
	notifier MatchNotifier
	cfg      Config
	now      func() time.Time
	runTx    func(context.Context, *pgxpool.Pool, func(context.Context, pgx.Tx) error) error
}

type Dependencies struct {
	Pool     *pgxpool.Pool
	Matches  MatchStore
	Users    UserStore
	Limiter  RateLimiter
	Notifier MatchNotifier

	// RunTx overrides the transaction runner. Tests substitute an in-memory
	// runner; nil means the default pool-backed one.
	RunTx func(context.Context, *pgxpool.Pool, func(context.Context, pgx.Tx) error) error
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.UndoWindow <= 0 {
		cfg.UndoWindow = 5 * time.Minute
	}
	if deps.RunTx == nil {
		deps.RunTx = pgrepo.WithTxRetry
	}

	return &Service{
		pool:     deps.Pool,
		matches:  deps.Matches,
		users:    deps.Users,
		limiter:  deps.Limiter,
		notifier: deps.Notifier,
		cfg:      cfg,
		now:      time.Now,
		runTx:    deps.RunTx,
	}
}

// RecordDecision stores one user's like or dislike of another. Re-swiping
// the same target overwrites the previous decision; the counterpart's side
// of the record is never touched.
func (s *Service) RecordDecision(ctx context.Context, userID, targetID int64, action enums.SwipeAction) (SwipeResult, error) {
	if userID <= 0 || targetID <= 0 || userID == targetID {
		return SwipeResult{}, ErrValidation
	}
	if !action.Valid() {
		return SwipeResult{}, ErrValidation
	}
	if s.matches == nil || s.users == nil {
		return SwipeResult{}, fmt.Errorf("swipe dependencies are not configured")
	}

	target, err := s.users.Get(ctx, targetID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return SwipeResult{}, ErrTargetNotFound
		}
		return SwipeResult{}, fmt.Errorf("load target user: %w", err)
	}
	// Deactivated and incomplete profiles are indistinguishable from absent
	// ones to the swiping user.
	if !target.IsActive || !target.ProfileCompleted {
		return SwipeResult{}, ErrTargetNotFound
	}

	if s.limiter != nil {
		retryAfter, allowed, err := s.limiter.AllowSwipe(ctx, userID)
		if err != nil {
			return SwipeResult{}, fmt.Errorf("apply swipe rate limiter: %w", err)
		}
		if !allowed {
			return SwipeResult{}, TooFastError{RetryAfterSec: retryAfter}
		}
	}

	// timestamptz keeps microseconds, so the transition check below would
	// never see its own timestamp back if now kept nanosecond precision.
	now := s.now().UTC().Truncate(time.Microsecond)
	record, err := s.matches.ApplyDecision(ctx, userID, targetID, action == enums.SwipeActionLike, now)
	if err != nil {
		return SwipeResult{}, err
	}

	matchCreated := record.IsMatch && record.MatchedAt != nil && record.MatchedAt.Equal(now)
	if matchCreated && s.notifier != nil {
		s.notifier.MatchCreated(ctx, record)
	}

	return SwipeResult{
		Record:       record,
		MatchCreated: matchCreated,
	}, nil
}

// Rewind removes the user's most recent swipe. The whole pair record is
// deleted, so the counterpart's stored decision goes with it; that mirrors
// the product behavior where an undone swipe resets the pair entirely.
// Mutual matches and swipes older than the undo window cannot be rewound.
func (s *Service) Rewind(ctx context.Context, userID int64) (RewindResult, error) {
	if userID <= 0 {
		return RewindResult{}, ErrValidation
	}
	if s.matches == nil {
		return RewindResult{}, fmt.Errorf("swipe dependencies are not configured")
	}

	now := s.now().UTC()
	var result RewindResult

	if err := s.runTx(ctx, s.pool, func(txCtx context.Context, tx pgx.Tx) error {
		last, err := s.matches.GetLastActionByUser(txCtx, tx, userID)
		if err != nil {
			if errors.Is(err, pgrepo.ErrMatchNotFound) {
				return ErrNoActionsToRewind
			}
			return err
		}

		if last.IsMatch {
			return ErrCannotRewindMatch
		}

		liked, acted := last.LikedBy(userID)
		if !acted {
			return ErrNoActionsToRewind
		}

		actedAt := last.UserAActedAt
		if userID == last.UserBID {
			actedAt = last.UserBActedAt
		}
		if actedAt == nil || now.Sub(*actedAt) > s.cfg.UndoWindow {
			return ErrRewindExpired
		}

		targetID := last.OtherUser(userID)
		deleted, err := s.matches.DeleteByPair(txCtx, tx, userID, targetID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrNoActionsToRewind
		}

		result = RewindResult{
			UndoneTargetID: targetID,
			UndoneLiked:    liked,
		}
		return nil
	}); err != nil {
		return RewindResult{}, err
	}

	return result, nil
}

// StatusWith reports the viewer's recorded decision toward targetID. A pair
// with no record yields the zero Status rather than an error.
func (s *Service) StatusWith(ctx context.Context, userID, targetID int64) (Status, error) {
	if userID <= 0 || targetID <= 0 || userID == targetID {
		return Status{}, ErrValidation
	}
	if s.matches == nil || s.users == nil {
		return Status{}, fmt.Errorf("swipe dependencies are not configured")
	}

	if _, err := s.users.Get(ctx, targetID); err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return Status{}, ErrTargetNotFound
		}
		return Status{}, fmt.Errorf("load target user: %w", err)
	}

	record, err := s.matches.GetByPair(ctx, userID, targetID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrMatchNotFound) {
			return Status{}, nil
		}
		return Status{}, err
	}

	liked, acted := record.LikedBy(userID)
	return Status{
		ViewerActed: acted,
		ViewerLiked: liked,
		IsMatch:     record.IsMatch,
		MatchedAt:   record.MatchedAt,
	}, nil
}

// ListInteractions pages through the user's own swipe history, newest
// action first. likedFilter narrows to likes or dislikes when non-nil.
func (s *Service) ListInteractions(ctx context.Context, userID int64, likedFilter *bool, limit, offset int) (InteractionsPage, error) {
	if userID <= 0 {
		return InteractionsPage{}, ErrValidation
	}
	if s.matches == nil {
		return InteractionsPage{}, fmt.Errorf("swipe dependencies are not configured")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	items, err := s.matches.ListInteractionsForUser(ctx, userID, likedFilter, limit, offset)
	if err != nil {
		return InteractionsPage{}, err
	}

	total, err := s.matches.CountInteractionsForUser(ctx, userID, likedFilter)
	if err != nil {
		return InteractionsPage{}, err
	}

	return InteractionsPage{Items: items, Total: total}, nil
}
