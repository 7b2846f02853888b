package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 10 * time.Minute

// Cache provides Redis-backed question body caching so session loads do
// not hit Postgres for every resolve.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) key(kind RefKind, id uuid.UUID) string {
	return "catalog:" + string(kind) + ":" + id.String()
}

// GetResolved returns a cached body or nil on miss.
func (c *Cache) GetResolved(ctx context.Context, ref Ref) (*Resolved, error) {
	data, err := c.client.Get(ctx, c.key(ref.Kind, ref.ID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	resolved := Resolved{Ref: ref}
	switch ref.Kind {
	case RefComprehensive:
		var cq ComprehensiveQuestion
		if err := json.Unmarshal(data, &cq); err != nil {
			return nil, err
		}
		resolved.Comprehensive = &cq
	default:
		var q Question
		if err := json.Unmarshal(data, &q); err != nil {
			return nil, err
		}
		resolved.Question = &q
	}
	return &resolved, nil
}

// SetResolved stores a body under the ref key.
func (c *Cache) SetResolved(ctx context.Context, resolved Resolved) error {
	var payload any
	switch {
	case resolved.Comprehensive != nil:
		payload = resolved.Comprehensive
	case resolved.Question != nil:
		payload = resolved.Question
	default:
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(resolved.Ref.Kind, resolved.Ref.ID), data, c.ttl).Err()
}
