package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"livepoll-service/internal/app"
)

// CodeRegistry reserves access codes with SET NX so codes stay unique across
// restarts and across every process sharing the Redis instance.
// Reservations expire after ttl as a safety net for crashed sessions.
type CodeRegistry struct {
	client   *redis.Client
	ttl      time.Duration
	generate func() (string, error)
}

func NewCodeRegistry(client *redis.Client, ttl time.Duration) *CodeRegistry {
	return NewCodeRegistryWithGenerator(client, ttl, app.GenerateAccessCode)
}

// NewCodeRegistryWithGenerator is test-only for forcing collisions.
func NewCodeRegistryWithGenerator(client *redis.Client, ttl time.Duration, generate func() (string, error)) *CodeRegistry {
	return &CodeRegistry{client: client, ttl: ttl, generate: generate}
}

func (r *CodeRegistry) Reserve(ctx context.Context) (string, error) {
	for i := 0; i < app.MaxCodeAttempts; i++ {
		code, err := r.generate()
		if err != nil {
			return "", err
		}
		ok, err := r.client.SetNX(ctx, r.key(code), time.Now().Unix(), r.ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
	}
	return "", app.ErrCodeSpaceExhausted
}

func (r *CodeRegistry) Release(ctx context.Context, code string) error {
	return r.client.Del(ctx, r.key(code)).Err()
}

func (r *CodeRegistry) key(code string) string {
	return "poll:code:" + code
}
