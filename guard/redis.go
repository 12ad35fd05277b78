package guard

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"state-connector/models"
)

// Redis is a Guard shared by every node process using the same Redis.
type Redis struct {
	client *redis.Client
	prefix string
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedis(addr, password string, db int, prefix string) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) key(chain string) string {
	return r.prefix + chain
}

func (r *Redis) Acquire(ctx context.Context, chain string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key(chain), token, ttl).Result()
	if err != nil {
		return "", models.Connectivity("redis_acquire", err)
	}
	if !ok {
		return "", models.ErrClaimsInProgress
	}
	return token, nil
}

func (r *Redis) Release(ctx context.Context, chain, token string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.key(chain)}, token).Err(); err != nil {
		return models.Connectivity("redis_release", err)
	}
	return nil
}

func (r *Redis) Held(ctx context.Context, chain string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(chain)).Result()
	if err != nil {
		return false, models.Connectivity("redis_held", err)
	}
	return n == 1, nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
