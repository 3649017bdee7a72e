package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avilenka/devmatch/internal/domain/model"
	"github.com/avilenka/devmatch/internal/pkg/pair"
)

var ErrMatchNotFound = errors.New("match not found")

type MatchRepo struct {
	pool *pgxpool.Pool
}

func NewMatchRepo(pool *pgxpool.Pool) *MatchRepo {
	return &MatchRepo{pool: pool}
}

const matchColumns = `
id, user_a_id, user_b_id, user_a_liked, user_b_liked, is_match, matched_at,
user_a_acted_at, user_b_acted_at, conversation_started, last_message_at,
created_at, updated_at`

func scanMatch(row pgx.Row) (model.Match, error) {
	var m model.Match
	err := row.Scan(
		&m.ID,
		&m.UserAID,
		&m.UserBID,
		&m.UserALiked,
		&m.UserBLiked,
		&m.IsMatch,
		&m.MatchedAt,
		&m.UserAActedAt,
		&m.UserBActedAt,
		&m.ConversationStarted,
		&m.LastMessageAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}

// ApplyDecision upserts the canonical pair record, touching only the acting
// user's liked flag and action timestamp. is_match is recomputed from both
// flags and matched_at is set once, in the same statement, so two concurrent
// swipes from the two sides cannot clobber each other.
func (r *MatchRepo) ApplyDecision(ctx context.Context, actorID, targetID int64, liked bool, now time.Time) (model.Match, error) {
	if actorID <= 0 || targetID <= 0 || actorID == targetID {
		return model.Match{}, fmt.Errorf("invalid decision payload")
	}
	if r.pool == nil {
		return model.Match{}, fmt.Errorf("postgres pool is nil")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	userA, userB := pair.Canonical(actorID, targetID)
	actorIsA := pair.IsFirst(actorID, targetID)

	row := r.pool.QueryRow(ctx, `
INSERT INTO matches (
	user_a_id,
	user_b_id,
	user_a_liked,
	user_b_liked,
	user_a_acted_at,
	user_b_acted_at,
	is_match,
	conversation_started,
	created_at,
	updated_at
) VALUES (
	$1,
	$2,
	CASE WHEN $3 THEN $4 ELSE FALSE END,
	CASE WHEN $3 THEN FALSE ELSE $4 END,
	CASE WHEN $3 THEN $5::timestamptz ELSE NULL END,
	CASE WHEN $3 THEN NULL ELSE $5::timestamptz END,
	FALSE,
	FALSE,
	$5,
	$5
)
ON CONFLICT (user_a_id, user_b_id) DO UPDATE SET
	user_a_liked = CASE WHEN $3 THEN $4 ELSE matches.user_a_liked END,
	user_b_liked = CASE WHEN $3 THEN matches.user_b_liked ELSE $4 END,
	user_a_acted_at = CASE WHEN $3 THEN $5::timestamptz ELSE matches.user_a_acted_at END,
	user_b_acted_at = CASE WHEN $3 THEN matches.user_b_acted_at ELSE $5::timestamptz END,
	is_match = (CASE WHEN $3 THEN $4 ELSE matches.user_a_liked END)
		AND (CASE WHEN $3 THEN matches.user_b_liked ELSE $4 END),
	matched_at = CASE
		WHEN matches.matched_at IS NOT NULL THEN matches.matched_at
		WHEN (CASE WHEN $3 THEN $4 ELSE matches.user_a_liked END)
			AND (CASE WHEN $3 THEN matches.user_b_liked ELSE $4 END) THEN $5::timestamptz
		ELSE NULL
	END,
	updated_at = $5
RETURNING `+matchColumns, userA, userB, actorIsA, liked, now.UTC())

	m, err := scanMatch(row)
	if err != nil {
		return model.Match{}, fmt.Errorf("apply swipe decision: %w", err)
	}

	return m, nil
}

func (r *MatchRepo) GetByPair(ctx context.Context, userID, otherID int64) (model.Match, error) {
	if userID <= 0 || otherID <= 0 {
		return model.Match{}, fmt.Errorf("invalid pair lookup payload")
	}
	if r.pool == nil {
		return model.Match{}, fmt.Errorf("postgres pool is nil")
	}

	userA, userB := pair.Canonical(userID, otherID)
	row := r.pool.QueryRow(ctx, `
SELECT `+matchColumns+`
FROM matches
WHERE user_a_id = $1 AND user_b_id = $2
`, userA, userB)

	m, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Match{}, ErrMatchNotFound
		}
		return model.Match{}, fmt.Errorf("get match by pair: %w", err)
	}

	return m, nil
}

// GetLastActionByUser returns the record holding userID's most recent swipe
// action, locked for the caller's transaction so a concurrent undo cannot
// race it.
func (r *MatchRepo) GetLastActionByUser(ctx context.Context, tx pgx.Tx, userID int64) (model.Match, error) {
	if userID <= 0 {
		return model.Match{}, fmt.Errorf("invalid user id")
	}
	if tx == nil {
		return model.Match{}, fmt.Errorf("transaction is required")
	}

	row := tx.QueryRow(ctx, `
SELECT `+matchColumns+`
FROM matches
WHERE (user_a_id = $1 AND user_a_acted_at IS NOT NULL)
	OR (user_b_id = $1 AND user_b_acted_at IS NOT NULL)
ORDER BY CASE WHEN user_a_id = $1 THEN user_a_acted_at ELSE user_b_acted_at END DESC, id DESC
LIMIT 1
FOR UPDATE
`, userID)

	m, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Match{}, ErrMatchNotFound
		}
		return model.Match{}, fmt.Errorf("get last action by user: %w", err)
	}

	return m, nil
}

func (r *MatchRepo) DeleteByPair(ctx context.Context, tx pgx.Tx, userID, otherID int64) (bool, error) {
	if userID <= 0 || otherID <= 0 {
		return false, fmt.Errorf("invalid pair delete payload")
	}
	if tx == nil {
		return false, fmt.Errorf("transaction is required")
	}

	userA, userB := pair.Canonical(userID, otherID)
	result, err := tx.Exec(ctx, `
DELETE FROM matches
WHERE user_a_id = $1 AND user_b_id = $2
`, userA, userB)
	if err != nil {
		return false, fmt.Errorf("delete match: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// TouchLastMessage stamps last_message_at and flips conversation_started on
// the mutual-match record of the pair. Runs inside the message-send
// transaction.
func (r *MatchRepo) TouchLastMessage(ctx context.Context, tx pgx.Tx, userID, otherID int64, now time.Time) error {
	if userID <= 0 || otherID <= 0 {
		return fmt.Errorf("invalid pair payload")
	}
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	userA, userB := pair.Canonical(userID, otherID)
	result, err := tx.Exec(ctx, `
UPDATE matches
SET
	conversation_started = TRUE,
	last_message_at = $3,
	updated_at = $3
WHERE user_a_id = $1 AND user_b_id = $2 AND is_match = TRUE
`, userA, userB, now.UTC())
	if err != nil {
		return fmt.Errorf("touch last message: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMatchNotFound
	}

	return nil
}

// ListMatchedForUser lists the user's mutual matches newest conversation
// first (records without messages yet sort after, by match recency).
func (r *MatchRepo) ListMatchedForUser(ctx context.Context, userID int64, limit, offset int) ([]model.Match, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+matchColumns+`
FROM matches
WHERE (user_a_id = $1 OR user_b_id = $1) AND is_match = TRUE
ORDER BY last_message_at DESC NULLS LAST, matched_at DESC, id DESC
LIMIT $2 OFFSET $3
`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list matched for user: %w", err)
	}
	defer rows.Close()

	items := make([]model.Match, 0, limit)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		items = append(items, m)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate matches: %w", rows.Err())
	}

	return items, nil
}

// ListInteractionsForUser pages through every pair record the user has acted
// on, most recent own action first. likedFilter narrows to likes or dislikes
// when non-nil.
func (r *MatchRepo) ListInteractionsForUser(ctx context.Context, userID int64, likedFilter *bool, limit, offset int) ([]model.Match, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+matchColumns+`
FROM matches
WHERE (
		(user_a_id = $1 AND user_a_acted_at IS NOT NULL AND ($2::boolean IS NULL OR user_a_liked = $2))
	OR	(user_b_id = $1 AND user_b_acted_at IS NOT NULL AND ($2::boolean IS NULL OR user_b_liked = $2))
)
ORDER BY CASE WHEN user_a_id = $1 THEN user_a_acted_at ELSE user_b_acted_at END DESC, id DESC
LIMIT $3 OFFSET $4
`, userID, likedFilter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list interactions for user: %w", err)
	}
	defer rows.Close()

	items := make([]model.Match, 0, limit)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		items = append(items, m)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate interactions: %w", rows.Err())
	}

	return items, nil
}

func (r *MatchRepo) CountInteractionsForUser(ctx context.Context, userID int64, likedFilter *bool) (int, error) {
	if userID <= 0 {
		return 0, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var count int
	if err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM matches
WHERE (
		(user_a_id = $1 AND user_a_acted_at IS NOT NULL AND ($2::boolean IS NULL OR user_a_liked = $2))
	OR	(user_b_id = $1 AND user_b_acted_at IS NOT NULL AND ($2::boolean IS NULL OR user_b_liked = $2))
)
`, userID, likedFilter).Scan(&count); err != nil {
		return 0, fmt.Errorf("count interactions for user: %w", err)
	}

	return count, nil
}

// ListInteractedUserIDs returns every counterpart the user has a pair record
// with, regardless of direction or outcome. Used to exclude candidates from
// recommendations.
func (r *MatchRepo) ListInteractedUserIDs(ctx context.Context, userID int64) ([]int64, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT CASE WHEN user_a_id = $1 THEN user_b_id ELSE user_a_id END
FROM matches
WHERE user_a_id = $1 OR user_b_id = $1
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list interacted user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan interacted user id: %w", err)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate interacted user ids: %w", rows.Err())
	}

	return ids, nil
}

// ListMatchedCounterpartIDs returns the ids of every mutual-match
// counterpart, for presence fan-out.
func (r *MatchRepo) ListMatchedCounterpartIDs(ctx context.Context, userID int64) ([]int64, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT CASE WHEN user_a_id = $1 THEN user_b_id ELSE user_a_id END
FROM matches
WHERE (user_a_id = $1 OR user_b_id = $1) AND is_match = TRUE
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list matched counterpart ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan matched counterpart id: %w", err)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate matched counterpart ids: %w", rows.Err())
	}

	return ids, nil
}

func (r *MatchRepo) CountMatchedForUser(ctx context.Context, userID int64) (int, error) {
	if userID <= 0 {
		return 0, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var count int
	if err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM matches
WHERE (user_a_id = $1 OR user_b_id = $1) AND is_match = TRUE
`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count matched for user: %w", err)
	}

	return count, nil
}
