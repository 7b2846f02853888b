package selector

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/prepdesk/exam-platform/internal/catalog"
)

const defaultRecencyWindow = time.Hour

// RedisRecency tracks which question ids were handed out recently per
// category, so two challenges created back to back do not receive the same
// subset even before the Postgres last-chosen marker lands.
type RedisRecency struct {
	client *redis.Client
	window time.Duration
}

func NewRedisRecency(client *redis.Client, window time.Duration) *RedisRecency {
	if window <= 0 {
		window = defaultRecencyWindow
	}
	return &RedisRecency{client: client, window: window}
}

func (r *RedisRecency) key(category string, kind catalog.RefKind) string {
	return "selection:recent:" + string(kind) + ":" + category
}

// Recent returns the set of ids chosen within the window.
func (r *RedisRecency) Recent(ctx context.Context, category string, kind catalog.RefKind) (map[uuid.UUID]struct{}, error) {
	members, err := r.client.SMembers(ctx, r.key(category, kind)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]struct{}, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		out[id] = struct{}{}
	}
	return out, nil
}

// Remember records ids as recently chosen and refreshes the window TTL.
func (r *RedisRecency) Remember(ctx context.Context, category string, kind catalog.RefKind, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	key := r.key(category, kind)
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id.String()
	}
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, r.window)
	_, err := pipe.Exec(ctx)
	return err
}
