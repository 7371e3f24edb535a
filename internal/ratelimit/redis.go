package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one counter key per window, expiring at the window end.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "ratelimit:", now: time.Now}
}

func (s *RedisStore) Check(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	start, end := windowBounds(s.now(), window)
	redisKey := s.prefix + key + ":" + strconv.FormatInt(start.Unix(), 10)

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.PExpireAt(ctx, redisKey, end)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check: %w", err)
	}
	return result(int(incr.Val()), limit, end), nil
}
