package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const presencePrefix = "presence:"

// PresenceRepo mirrors websocket connection state into redis so presence
// survives api restarts and is readable by other instances. Keys carry a TTL
// and are refreshed by the connection heartbeat.
type PresenceRepo struct {
	client *goredis.Client
}

func NewPresenceRepo(client *goredis.Client) *PresenceRepo {
	return &PresenceRepo{client: client}
}

func (r *PresenceRepo) SetOnline(ctx context.Context, userID int64, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if userID <= 0 || ttl <= 0 {
		return fmt.Errorf("invalid presence payload")
	}

	if err := r.client.Set(ctx, presenceKey(userID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("set presence key: %w", err)
	}

	return nil
}

func (r *PresenceRepo) SetOffline(ctx context.Context, userID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}

	if err := r.client.Del(ctx, presenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("delete presence key: %w", err)
	}

	return nil
}

func (r *PresenceRepo) IsOnline(ctx context.Context, userID int64) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	if userID <= 0 {
		return false, fmt.Errorf("invalid user id")
	}

	n, err := r.client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("check presence key: %w", err)
	}

	return n > 0, nil
}

// OnlineAmong returns the subset of ids currently online.
func (r *PresenceRepo) OnlineAmong(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if len(userIDs) == 0 {
		return map[int64]bool{}, nil
	}

	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, presenceKey(id))
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget presence keys: %w", err)
	}

	online := make(map[int64]bool, len(userIDs))
	for i, id := range userIDs {
		online[id] = i < len(values) && values[i] != nil
	}

	return online, nil
}

func presenceKey(userID int64) string {
	return presencePrefix + strconv.FormatInt(userID, 10)
}
