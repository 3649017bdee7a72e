package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avilenka/devmatch/internal/domain/enums"
	"github.com/avilenka/devmatch/internal/domain/model"
	pgrepo "github.com/avilenka/devmatch/internal/repo/postgres"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrNotMatched       = errors.New("users are not matched")
	ErrReceiverNotFound = errors.New("receiver not found or unavailable")
	ErrMessageTooLong   = errors.New("message content too long")
	ErrMessageNotFound  = errors.New("message not found")
	ErrForbidden        = errors.New("operation not allowed for this user")
	ErrAttachmentSize   = errors.New("attachment too large")
)

type MessageStore interface {
	Create(ctx context.Context, tx pgx.Tx, msg model.Message) (model.Message, error)
	GetByID(ctx context.Context, id int64) (model.Message, error)
	ListBetween(ctx context.Context, userID, otherID int64, limit, offset int) ([]model.Message, error)
	CountBetween(ctx context.Context, userID, otherID int64) (int, error)
	MarkRead(ctx context.Context, messageID, receiverID int64, now time.Time) (model.Message, error)
	MarkConversationRead(ctx context.Context, readerID, otherID int64, now time.Time) (int, error)
	SoftDelete(ctx context.Context, messageID, senderID int64, now time.Time) error
	CountUnreadTotal(ctx context.Context, receiverID int64) (int, error)
}

type MatchStore interface {
	GetByPair(ctx context.Context, userID, otherID int64) (model.Match, error)
	TouchLastMessage(ctx context.Context, tx pgx.Tx, userID, otherID int64, now time.Time) error
}

type UserStore interface {
	Get(ctx context.Context, id int64) (model.User, error)
}

type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	PutAttachment(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Notifier pushes committed chat events to the realtime layer. Calls happen
// after the storage transaction commits, never inside it.
type Notifier interface {
	MessageDelivered(ctx context.Context, msg model.Message)
	MessageRead(ctx context.Context, msg model.Message)
	MessageDeleted(ctx context.Context, msg model.Message)
}

type Config struct {
	MaxMessageLen      int
	AttachmentMaxBytes int64
	AttachmentURLTTL   time.Duration
}

type ConversationPage struct {
	Messages []model.Message
	Total    int
}

type Attachment struct {
	Ref  string
	Name string
	URL  string
}

type Service struct {
	pool     *pgxpool.Pool
	messages MessageStore
	matches  MatchStore
	users    UserStore
	storage  ObjectStorage
	notifier Notifier
	cfg      Config
	now      func() time.Time
	runTx    func(context.Context, *pgxpool.Pool, func(context.Context, pgx.Tx) error) error
	newRef   func() string
}

type Dependencies struct {
	Pool     *pgxpool.Pool
	Messages MessageStore
	Matches  MatchStore
	Users    UserStore
	Storage  ObjectStorage
	Notifier Notifier

	// RunTx overrides the transaction runner. Tests substitute an in-memory
	// runner; nil means the default pool-backed one.
	RunTx func(context.Context, *pgxpool.Pool, func(context.Context, pgx.Tx) error) error
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = 1000
	}
	if cfg.AttachmentMaxBytes <= 0 {
		cfg.AttachmentMaxBytes = 10 << 20
	}
	if cfg.AttachmentURLTTL <= 0 {
		cfg.AttachmentURLTTL = 5 * time.Minute
	}
	if deps.RunTx == nil {
		deps.RunTx = pgrepo.WithTxRetry
	}

	return &Service{
		pool:     deps.Pool,
		messages: deps.Messages,
		matches:  deps.Matches,
		users:    deps.Users,
		storage:  deps.Storage,
		notifier: deps.Notifier,
		cfg:      cfg,
		now:      time.Now,
		runTx:    deps.RunTx,
		newRef:   newAttachmentRef,
	}
}

// SendMessage delivers a message between mutually matched users. The message
// row and the match record's conversation state move in one transaction.
func (s *Service) SendMessage(ctx context.Context, senderID, receiverID int64, content string, kind enums.MessageKind, fileRef, fileName string) (model.Message, error) {
	if senderID <= 0 || receiverID <= 0 || senderID == receiverID {
		return model.Message{}, ErrValidation
	}
	if s.messages == nil || s.matches == nil || s.users == nil {
		return model.Message{}, fmt.Errorf("chat dependencies are not configured")
	}

	if kind == "" {
		kind = enums.MessageKindText
	}
	if !kind.Valid() {
		return model.Message{}, ErrValidation
	}

	content = strings.TrimSpace(content)
	if kind == enums.MessageKindText {
		if content == "" {
			return model.Message{}, ErrValidation
		}
	} else if strings.TrimSpace(fileRef) == "" {
		return model.Message{}, ErrValidation
	}
	if len([]rune(content)) > s.cfg.MaxMessageLen {
		return model.Message{}, ErrMessageTooLong
	}

	// A standing match does not keep a deactivated account reachable.
	receiver, err := s.users.Get(ctx, receiverID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return model.Message{}, ErrReceiverNotFound
		}
		return model.Message{}, fmt.Errorf("load receiver: %w", err)
	}
	if !receiver.IsActive {
		return model.Message{}, ErrReceiverNotFound
	}

	if err := s.requireMatch(ctx, senderID, receiverID); err != nil {
		return model.Message{}, err
	}

	now := s.now().UTC()
	var created model.Message
	if err := s.runTx(ctx, s.pool, func(txCtx context.Context, tx pgx.Tx) error {
		msg, err := s.messages.Create(txCtx, tx, model.Message{
			SenderID:   senderID,
			ReceiverID: receiverID,
			Content:    content,
			Kind:       kind,
			FileRef:    strings.TrimSpace(fileRef),
			FileName:   strings.TrimSpace(fileName),
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}
		created = msg

		return s.matches.TouchLastMessage(txCtx, tx, senderID, receiverID, now)
	}); err != nil {
		return model.Message{}, err
	}

	if s.notifier != nil {
		s.notifier.MessageDelivered(ctx, created)
	}

	return created, nil
}

// GetConversation returns one page of the dialog in ascending creation
// order. Fetching a page marks the counterpart's messages as read, matching
// the client behavior of opening a chat.
func (s *Service) GetConversation(ctx context.Context, userID, otherID int64, limit, offset int) (ConversationPage, error) {
	if userID <= 0 || otherID <= 0 || userID == otherID {
		return ConversationPage{}, ErrValidation
	}
	if s.messages == nil || s.matches == nil {
		return ConversationPage{}, fmt.Errorf("chat dependencies are not configured")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	if err := s.requireMatch(ctx, userID, otherID); err != nil {
		return ConversationPage{}, err
	}

	items, err := s.messages.ListBetween(ctx, userID, otherID, limit, offset)
	if err != nil {
		return ConversationPage{}, err
	}

	total, err := s.messages.CountBetween(ctx, userID, otherID)
	if err != nil {
		return ConversationPage{}, err
	}

	if _, err := s.messages.MarkConversationRead(ctx, userID, otherID, s.now().UTC()); err != nil {
		return ConversationPage{}, err
	}

	// Storage returns newest first; flip the page for display.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}

	return ConversationPage{Messages: items, Total: total}, nil
}

// MarkRead flips one message read on behalf of its receiver and notifies
// the sender.
func (s *Service) MarkRead(ctx context.Context, messageID, readerID int64) (model.Message, error) {
	if messageID <= 0 || readerID <= 0 {
		return model.Message{}, ErrValidation
	}
	if s.messages == nil {
		return model.Message{}, fmt.Errorf("chat dependencies are not configured")
	}

	existing, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrMessageNotFound) {
			return model.Message{}, ErrMessageNotFound
		}
		return model.Message{}, err
	}
	if existing.ReceiverID != readerID {
		return model.Message{}, ErrForbidden
	}

	msg, err := s.messages.MarkRead(ctx, messageID, readerID, s.now().UTC())
	if err != nil {
		if errors.Is(err, pgrepo.ErrMessageNotFound) {
			return model.Message{}, ErrMessageNotFound
		}
		return model.Message{}, err
	}

	if s.notifier != nil {
		s.notifier.MessageRead(ctx, msg)
	}

	return msg, nil
}

// DeleteMessage soft-deletes a message for both participants. Only the
// sender may delete.
func (s *Service) DeleteMessage(ctx context.Context, messageID, userID int64) error {
	if messageID <= 0 || userID <= 0 {
		return ErrValidation
	}
	if s.messages == nil {
		return fmt.Errorf("chat dependencies are not configured")
	}

	existing, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrMessageNotFound) {
			return ErrMessageNotFound
		}
		return err
	}
	if existing.SenderID != userID {
		return ErrForbidden
	}

	if err := s.messages.SoftDelete(ctx, messageID, userID, s.now().UTC()); err != nil {
		if errors.Is(err, pgrepo.ErrMessageNotFound) {
			return ErrMessageNotFound
		}
		return err
	}

	if s.notifier != nil {
		existing.IsDeleted = true
		s.notifier.MessageDeleted(ctx, existing)
	}

	return nil
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int, error) {
	if userID <= 0 {
		return 0, ErrValidation
	}
	if s.messages == nil {
		return 0, fmt.Errorf("chat dependencies are not configured")
	}

	return s.messages.CountUnreadTotal(ctx, userID)
}

// UploadAttachment stores a chat file and returns its storage ref plus a
// short-lived download URL. The ref goes into a subsequent SendMessage call.
func (s *Service) UploadAttachment(ctx context.Context, userID int64, fileName, contentType string, body io.Reader, size int64) (Attachment, error) {
	if userID <= 0 || body == nil || size <= 0 {
		return Attachment{}, ErrValidation
	}
	if s.storage == nil {
		return Attachment{}, fmt.Errorf("attachment storage is not configured")
	}
	if size > s.cfg.AttachmentMaxBytes {
		return Attachment{}, ErrAttachmentSize
	}

	if err := s.storage.EnsureBucket(ctx); err != nil {
		return Attachment{}, fmt.Errorf("ensure bucket: %w", err)
	}

	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}

	key := buildAttachmentKey(userID, s.newRef(), fileName)
	if err := s.storage.PutAttachment(ctx, key, body, size, contentType); err != nil {
		return Attachment{}, fmt.Errorf("put attachment: %w", err)
	}

	url, err := s.storage.PresignGet(ctx, key, s.cfg.AttachmentURLTTL)
	if err != nil {
		_ = s.storage.Delete(ctx, key)
		return Attachment{}, fmt.Errorf("presign attachment url: %w", err)
	}

	return Attachment{
		Ref:  key,
		Name: strings.TrimSpace(fileName),
		URL:  url,
	}, nil
}

// AttachmentURL refreshes the download link for a stored attachment.
func (s *Service) AttachmentURL(ctx context.Context, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", ErrValidation
	}
	if s.storage == nil {
		return "", fmt.Errorf("attachment storage is not configured")
	}

	url, err := s.storage.PresignGet(ctx, ref, s.cfg.AttachmentURLTTL)
	if err != nil {
		return "", fmt.Errorf("presign attachment url: %w", err)
	}

	return url, nil
}

func (s *Service) requireMatch(ctx context.Context, userID, otherID int64) error {
	record, err := s.matches.GetByPair(ctx, userID, otherID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrMatchNotFound) {
			return ErrNotMatched
		}
		return err
	}
	if !record.IsMatch {
		return ErrNotMatched
	}
	return nil
}
