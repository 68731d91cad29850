package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func receiptKey(id uuid.UUID) string {
	return "msg:" + id.String()
}

func (c *RedisCache) StoreSent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error {
	b, err := json.Marshal(Receipt{
		ProviderMessageID: providerMessageID,
		SentAt:            sentAt.UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "encode receipt")
	}
	return errors.Wrap(c.rdb.Set(ctx, receiptKey(id), b, c.ttl).Err(), "store receipt")
}

func (c *RedisCache) GetSent(ctx context.Context, id uuid.UUID) (Receipt, error) {
	raw, err := c.rdb.Get(ctx, receiptKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Receipt{}, ErrMiss
	}
	if err != nil {
		return Receipt{}, errors.Wrap(err, "get receipt")
	}

	var r Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return Receipt{}, errors.Wrap(err, "decode receipt")
	}
	return r, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
