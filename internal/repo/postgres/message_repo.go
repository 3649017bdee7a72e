package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avilenka/devmatch/internal/domain/enums"
	"github.com/avilenka/devmatch/internal/domain/model"
	"github.com/avilenka/devmatch/internal/pkg/pair"
)

var ErrMessageNotFound = errors.New("message not found")

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

const messageColumns = `
id, sender_id, receiver_id, content, kind, file_ref, file_name,
is_read, read_at, is_deleted, deleted_at, edited, edited_at, original_content,
created_at`

func scanMessage(row pgx.Row) (model.Message, error) {
	var msg model.Message
	err := row.Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Content,
		&msg.Kind,
		&msg.FileRef,
		&msg.FileName,
		&msg.IsRead,
		&msg.ReadAt,
		&msg.IsDeleted,
		&msg.DeletedAt,
		&msg.Edited,
		&msg.EditedAt,
		&msg.OriginalContent,
		&msg.CreatedAt,
	)
	return msg, err
}

// Create inserts a delivered message inside the send transaction so the
// match record's last_message_at moves in the same commit.
func (r *MessageRepo) Create(ctx context.Context, tx pgx.Tx, msg model.Message) (model.Message, error) {
	if tx == nil {
		return model.Message{}, fmt.Errorf("transaction is required")
	}
	if msg.SenderID <= 0 || msg.ReceiverID <= 0 {
		return model.Message{}, fmt.Errorf("invalid message payload")
	}
	if msg.Kind == "" {
		msg.Kind = enums.MessageKindText
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	row := tx.QueryRow(ctx, `
INSERT INTO messages (
	sender_id,
	receiver_id,
	content,
	kind,
	file_ref,
	file_name,
	is_read,
	is_deleted,
	edited,
	original_content,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6, FALSE, FALSE, FALSE, '', $7)
RETURNING `+messageColumns,
		msg.SenderID, msg.ReceiverID, msg.Content, msg.Kind, msg.FileRef, msg.FileName, msg.CreatedAt.UTC())

	created, err := scanMessage(row)
	if err != nil {
		return model.Message{}, fmt.Errorf("create message: %w", err)
	}

	return created, nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (model.Message, error) {
	if id <= 0 {
		return model.Message{}, fmt.Errorf("invalid message id")
	}
	if r.pool == nil {
		return model.Message{}, fmt.Errorf("postgres pool is nil")
	}

	row := r.pool.QueryRow(ctx, `
SELECT `+messageColumns+`
FROM messages
WHERE id = $1
`, id)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Message{}, ErrMessageNotFound
		}
		return model.Message{}, fmt.Errorf("get message by id: %w", err)
	}

	return msg, nil
}

// ListBetween returns a page of the conversation between the two users,
// newest first, excluding soft-deleted messages. The caller reverses the
// page for chronological display.
func (r *MessageRepo) ListBetween(ctx context.Context, userID, otherID int64, limit, offset int) ([]model.Message, error) {
	if userID <= 0 || otherID <= 0 {
		return nil, fmt.Errorf("invalid conversation pair")
	}
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	userA, userB := pair.Canonical(userID, otherID)
	rows, err := r.pool.Query(ctx, `
SELECT `+messageColumns+`
FROM messages
WHERE LEAST(sender_id, receiver_id) = $1
	AND GREATEST(sender_id, receiver_id) = $2
	AND is_deleted = FALSE
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4
`, userA, userB, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversation messages: %w", err)
	}
	defer rows.Close()

	items := make([]model.Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, msg)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate messages: %w", rows.Err())
	}

	return items, nil
}

func (r *MessageRepo) CountBetween(ctx context.Context, userID, otherID int64) (int, error) {
	if userID <= 0 || otherID <= 0 {
		return 0, fmt.Errorf("invalid conversation pair")
	}
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	userA, userB := pair.Canonical(userID, otherID)
	var count int
	if err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM messages
WHERE LEAST(sender_id, receiver_id) = $1
	AND GREATEST(sender_id, receiver_id) = $2
	AND is_deleted = FALSE
`, userA, userB).Scan(&count); err != nil {
		return 0, fmt.Errorf("count conversation messages: %w", err)
	}

	return count, nil
}

// LastBetween returns the newest non-deleted message of the pair, for the
// conversation list preview.
func (r *MessageRepo) LastBetween(ctx context.Context, userID, otherID int64) (model.Message, error) {
	if userID <= 0 || otherID <= 0 {
		return model.Message{}, fmt.Errorf("invalid conversation pair")
	}
	if r.pool == nil {
		return model.Message{}, fmt.Errorf("postgres pool is nil")
	}

	userA, userB := pair.Canonical(userID, otherID)
	row := r.pool.QueryRow(ctx, `
SELECT `+messageColumns+`
FROM messages
WHERE LEAST(sender_id, receiver_id) = $1
	AND GREATEST(sender_id, receiver_id) = $2
	AND is_deleted = FALSE
ORDER BY created_at DESC, id DESC
LIMIT 1
`, userA, userB)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Message{}, ErrMessageNotFound
		}
		return model.Message{}, fmt.Errorf("last conversation message: %w", err)
	}

	return msg, nil
}

// MarkRead flips a single message read for its receiver. Only the receiver
// may mark it, which the WHERE clause enforces.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID, receiverID int64, now time.Time) (model.Message, error) {
	if messageID <= 0 || receiverID <= 0 {
		return model.Message{}, fmt.Errorf("invalid mark read payload")
	}
	if r.pool == nil {
		return model.Message{}, fmt.Errorf("postgres pool is nil")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	row := r.pool.QueryRow(ctx, `
UPDATE messages
SET
	is_read = TRUE,
	read_at = COALESCE(read_at, $3)
WHERE id = $1 AND receiver_id = $2 AND is_deleted = FALSE
RETURNING `+messageColumns, messageID, receiverID, now.UTC())

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Message{}, ErrMessageNotFound
		}
		return model.Message{}, fmt.Errorf("mark message read: %w", err)
	}

	return msg, nil
}

// MarkConversationRead marks every unread message sent by otherID to
// readerID and returns how many were flipped.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, readerID, otherID int64, now time.Time) (int, error) {
	if readerID <= 0 || otherID <= 0 {
		return 0, fmt.Errorf("invalid conversation read payload")
	}
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	result, err := r.pool.Exec(ctx, `
UPDATE messages
SET
	is_read = TRUE,
	read_at = COALESCE(read_at, $3)
WHERE receiver_id = $1 AND sender_id = $2 AND is_read = FALSE AND is_deleted = FALSE
`, readerID, otherID, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}

	return int(result.RowsAffected()), nil
}

// SoftDelete hides a message. Only the sender may delete, enforced in the
// WHERE clause; content stays in storage.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID, senderID int64, now time.Time) error {
	if messageID <= 0 || senderID <= 0 {
		return fmt.Errorf("invalid delete payload")
	}
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	result, err := r.pool.Exec(ctx, `
UPDATE messages
SET
	is_deleted = TRUE,
	deleted_at = COALESCE(deleted_at, $3)
WHERE id = $1 AND sender_id = $2 AND is_deleted = FALSE
`, messageID, senderID, now.UTC())
	if err != nil {
		return fmt.Errorf("soft delete message: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMessageNotFound
	}

	return nil
}

func (r *MessageRepo) CountUnreadTotal(ctx context.Context, receiverID int64) (int, error) {
	if receiverID <= 0 {
		return 0, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var count int
	if err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM messages
WHERE receiver_id = $1 AND is_read = FALSE AND is_deleted = FALSE
`, receiverID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread total: %w", err)
	}

	return count, nil
}

// ListDeletedRefsBefore returns attachment refs of messages soft-deleted
// before the cutoff, so the purge job can drop the stored objects first.
func (r *MessageRepo) ListDeletedRefsBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.pool.Query(ctx, `
SELECT file_ref
FROM messages
WHERE is_deleted = TRUE AND deleted_at < $1 AND file_ref <> ''
ORDER BY deleted_at
LIMIT $2
`, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list deleted attachment refs: %w", err)
	}
	defer rows.Close()

	refs := make([]string, 0)
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan attachment ref: %w", err)
		}
		refs = append(refs, ref)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate attachment refs: %w", rows.Err())
	}

	return refs, nil
}

// PurgeDeletedBefore hard-deletes message rows that were soft-deleted before
// the cutoff and returns how many rows went away.
func (r *MessageRepo) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	result, err := r.pool.Exec(ctx, `
DELETE FROM messages
WHERE is_deleted = TRUE AND deleted_at < $1
`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge deleted messages: %w", err)
	}

	return result.RowsAffected(), nil
}

func (r *MessageRepo) CountUnreadFrom(ctx context.Context, receiverID, senderID int64) (int, error) {
	if receiverID <= 0 || senderID <= 0 {
		return 0, fmt.Errorf("invalid unread count payload")
	}
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var count int
	if err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM messages
WHERE receiver_id = $1 AND sender_id = $2 AND is_read = FALSE AND is_deleted = FALSE
`, receiverID, senderID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread from sender: %w", err)
	}

	return count, nil
}
