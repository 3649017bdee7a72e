package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/avilenka/devmatch/internal/domain/model"
)

var ErrValidation = errors.New("validation error")

type UserStore interface {
	ListCandidatesExcluding(ctx context.Context, viewerID int64, excludeIDs []int64, limit int) ([]model.User, error)
}

type MatchStore interface {
	ListInteractedUserIDs(ctx context.Context, userID int64) ([]int64, error)
}

type Config struct {
	DefaultLimit int
	MaxLimit     int
}

type Service struct {
	users   UserStore
	matches MatchStore
	cfg     Config
}

func NewService(users UserStore, matches MatchStore, cfg Config) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 50
	}

	return &Service{
		users:   users,
		matches: matches,
		cfg:     cfg,
	}
}

// Recommendations returns swipe candidates the viewer has never acted on
// and who never acted on the viewer. Every pair record excludes its
// counterpart, so a dislike in either direction removes the candidate.
func (s *Service) Recommendations(ctx context.Context, userID int64, limit int) ([]model.User, error) {
	if userID <= 0 {
		return nil, ErrValidation
	}
	if s.users == nil || s.matches == nil {
		return nil, fmt.Errorf("feed dependencies are not configured")
	}
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	interacted, err := s.matches.ListInteractedUserIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.users.ListCandidatesExcluding(ctx, userID, interacted, limit)
	if err != nil {
		return nil, err
	}

	return candidates, nil
}
