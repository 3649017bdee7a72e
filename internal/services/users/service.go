package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avilenka/devmatch/internal/domain/model"
	pgrepo "github.com/avilenka/devmatch/internal/repo/postgres"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("user not found")
)

type Store interface {
	Get(ctx context.Context, id int64) (model.User, error)
	SetOnline(ctx context.Context, id int64, online bool, now time.Time) error
}

type PresenceStore interface {
	SetOnline(ctx context.Context, userID int64, ttl time.Duration) error
	SetOffline(ctx context.Context, userID int64) error
	IsOnline(ctx context.Context, userID int64) (bool, error)
}

type Service struct {
	store       Store
	presence    PresenceStore
	presenceTTL time.Duration
	now         func() time.Time
}

func NewService(store Store, presence PresenceStore, presenceTTL time.Duration) *Service {
	if presenceTTL <= 0 {
		presenceTTL = time.Minute
	}

	return &Service{
		store:       store,
		presence:    presence,
		presenceTTL: presenceTTL,
		now:         time.Now,
	}
}

// GetProfile returns a user with live presence folded in. The redis flag
// wins over the stored column when both are available.
func (s *Service) GetProfile(ctx context.Context, id int64) (model.User, error) {
	if id <= 0 {
		return model.User{}, ErrValidation
	}
	if s.store == nil {
		return model.User{}, fmt.Errorf("user store is nil")
	}

	u, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}

	if s.presence != nil {
		online, err := s.presence.IsOnline(ctx, id)
		if err == nil {
			u.IsOnline = online
		}
	}

	return u, nil
}

// SetPresence records a connect or disconnect in both stores. Going offline
// stamps last_seen on the user row.
func (s *Service) SetPresence(ctx context.Context, id int64, online bool) error {
	if id <= 0 {
		return ErrValidation
	}
	if s.store == nil {
		return fmt.Errorf("user store is nil")
	}

	now := s.now().UTC()
	if err := s.store.SetOnline(ctx, id, online, now); err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}

	if s.presence != nil {
		if online {
			if err := s.presence.SetOnline(ctx, id, s.presenceTTL); err != nil {
				return err
			}
		} else if err := s.presence.SetOffline(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

// RefreshPresence extends the redis presence key from a heartbeat without
// touching the user row.
func (s *Service) RefreshPresence(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrValidation
	}
	if s.presence == nil {
		return nil
	}
	return s.presence.SetOnline(ctx, id, s.presenceTTL)
}
