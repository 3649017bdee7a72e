package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avilenka/devmatch/internal/domain/model"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `
id, display_name, avatar_url, is_active, profile_completed, is_online,
last_seen, created_at, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.DisplayName,
		&u.AvatarURL,
		&u.IsActive,
		&u.ProfileCompleted,
		&u.IsOnline,
		&u.LastSeen,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

func (r *UserRepo) Get(ctx context.Context, id int64) (model.User, error) {
	if id <= 0 {
		return model.User{}, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return model.User{}, fmt.Errorf("postgres pool is nil")
	}

	row := r.pool.QueryRow(ctx, `
SELECT `+userColumns+`
FROM users
WHERE id = $1
`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}

	return u, nil
}

func (r *UserRepo) GetMany(ctx context.Context, ids []int64) (map[int64]model.User, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(ids) == 0 {
		return map[int64]model.User{}, nil
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+userColumns+`
FROM users
WHERE id = ANY($1)
`, ids)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	defer rows.Close()

	users := make(map[int64]model.User, len(ids))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users[u.ID] = u
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate users: %w", rows.Err())
	}

	return users, nil
}

// SetOnline records presence. Going offline also stamps last_seen.
func (r *UserRepo) SetOnline(ctx context.Context, id int64, online bool, now time.Time) error {
	if id <= 0 {
		return fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	result, err := r.pool.Exec(ctx, `
UPDATE users
SET
	is_online = $2,
	last_seen = CASE WHEN $2 THEN last_seen ELSE $3 END,
	updated_at = $3
WHERE id = $1
`, id, online, now.UTC())
	if err != nil {
		return fmt.Errorf("set user online: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// ListCandidatesExcluding returns active, completed profiles the viewer has
// never interacted with, for the recommendation feed.
func (r *UserRepo) ListCandidatesExcluding(ctx context.Context, viewerID int64, excludeIDs []int64, limit int) ([]model.User, error) {
	if viewerID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 10
	}

	exclude := append([]int64{viewerID}, excludeIDs...)
	rows, err := r.pool.Query(ctx, `
SELECT `+userColumns+`
FROM users
WHERE id <> ALL($1)
	AND is_active = TRUE
	AND profile_completed = TRUE
ORDER BY random()
LIMIT $2
`, exclude, limit)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	items := make([]model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		items = append(items, u)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate candidates: %w", rows.Err())
	}

	return items, nil
}
