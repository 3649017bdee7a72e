package matches

import (
	"context"
	"errors"
	"fmt"

	"github.com/avilenka/devmatch/internal/domain/model"
	pgrepo "github.com/avilenka/devmatch/internal/repo/postgres"
)

var ErrValidation = errors.New("validation error")

type MatchStore interface {
	ListMatchedForUser(ctx context.Context, userID int64, limit, offset int) ([]model.Match, error)
	CountMatchedForUser(ctx context.Context, userID int64) (int, error)
}

type UserStore interface {
	GetMany(ctx context.Context, ids []int64) (map[int64]model.User, error)
}

type MessageStore interface {
	LastBetween(ctx context.Context, userID, otherID int64) (model.Message, error)
	CountUnreadFrom(ctx context.Context, receiverID, senderID int64) (int, error)
}

type PresenceStore interface {
	OnlineAmong(ctx context.Context, userIDs []int64) (map[int64]bool, error)
}

type Service struct {
	matches  MatchStore
	users    UserStore
	messages MessageStore
	presence PresenceStore
}

type Dependencies struct {
	Matches  MatchStore
	Users    UserStore
	Messages MessageStore
	Presence PresenceStore
}

type ConversationsPage struct {
	Items []model.Conversation
	Total int
}

func NewService(deps Dependencies) *Service {
	return &Service{
		matches:  deps.Matches,
		users:    deps.Users,
		messages: deps.Messages,
		presence: deps.Presence,
	}
}

// ListConversations builds the inbox view: each mutual match joined with its
// counterpart profile, latest message and the viewer's unread count, ordered
// by conversation recency.
func (s *Service) ListConversations(ctx context.Context, userID int64, limit, offset int) (ConversationsPage, error) {
	if userID <= 0 {
		return ConversationsPage{}, ErrValidation
	}
	if s.matches == nil || s.users == nil || s.messages == nil {
		return ConversationsPage{}, fmt.Errorf("conversation dependencies are not configured")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.matches.ListMatchedForUser(ctx, userID, limit, offset)
	if err != nil {
		return ConversationsPage{}, err
	}

	total, err := s.matches.CountMatchedForUser(ctx, userID)
	if err != nil {
		return ConversationsPage{}, err
	}

	otherIDs := make([]int64, 0, len(records))
	for _, rec := range records {
		otherIDs = append(otherIDs, rec.OtherUser(userID))
	}

	users, err := s.users.GetMany(ctx, otherIDs)
	if err != nil {
		return ConversationsPage{}, err
	}

	online := map[int64]bool{}
	if s.presence != nil && len(otherIDs) > 0 {
		online, err = s.presence.OnlineAmong(ctx, otherIDs)
		if err != nil {
			return ConversationsPage{}, err
		}
	}

	items := make([]model.Conversation, 0, len(records))
	for _, rec := range records {
		otherID := rec.OtherUser(userID)

		other, ok := users[otherID]
		if !ok {
			continue
		}
		other.IsOnline = online[otherID]

		conv := model.Conversation{
			MatchID:             rec.ID,
			OtherUser:           other,
			ConversationStarted: rec.ConversationStarted,
			MatchedAt:           rec.MatchedAt,
			LastMessageAt:       rec.LastMessageAt,
		}

		if rec.ConversationStarted {
			last, err := s.messages.LastBetween(ctx, userID, otherID)
			if err != nil && !errors.Is(err, pgrepo.ErrMessageNotFound) {
				return ConversationsPage{}, err
			}
			if err == nil {
				conv.LastMessage = &last
			}

			unread, err := s.messages.CountUnreadFrom(ctx, userID, otherID)
			if err != nil {
				return ConversationsPage{}, err
			}
			conv.UnreadCount = unread
		}

		items = append(items, conv)
	}

	return ConversationsPage{Items: items, Total: total}, nil
}
