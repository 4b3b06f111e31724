package repositories

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"txt-worker/domain"
)

// RedisProgressTracker publishes per-job page counts and which output
// directories are currently being written.
type RedisProgressTracker struct {
	client *redis.Client
}

func NewRedisProgressTracker(host, port string) *RedisProgressTracker {
	rdb := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", host, port),
	})
	return &RedisProgressTracker{client: rdb}
}

// Begin registers job.OutputDir as active and returns how many jobs now write there.
func (r *RedisProgressTracker) Begin(ctx context.Context, job domain.Job) (int64, error) {
	n, err := r.client.HIncrBy(ctx, domain.RedisKeyActiveDirs, job.OutputDir, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hincrby failure: %w", err)
	}
	return n, nil
}

func (r *RedisProgressTracker) PageWritten(ctx context.Context, jobID string) error {
	if err := r.client.IncrBy(ctx, fmt.Sprintf(domain.RedisKeyJobPages, jobID), 1).Err(); err != nil {
		return fmt.Errorf("redis incrby failure: %w", err)
	}
	return nil
}

func (r *RedisProgressTracker) End(ctx context.Context, job domain.Job) error {
	n, err := r.client.HIncrBy(ctx, domain.RedisKeyActiveDirs, job.OutputDir, -1).Result()
	if err != nil {
		return fmt.Errorf("redis hincrby failure: %w", err)
	}
	if n <= 0 {
		if err := r.client.HDel(ctx, domain.RedisKeyActiveDirs, job.OutputDir).Err(); err != nil {
			return fmt.Errorf("redis hdel failure: %w", err)
		}
	}
	return nil
}

func (r *RedisProgressTracker) Close() error {
	return r.client.Close()
}
