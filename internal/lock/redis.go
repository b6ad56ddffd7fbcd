package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process pointed at the same server.
type Redis struct {
	Client *redis.Client
	prefix string
	retry  time.Duration
}

func NewRedis(opt *redis.Options, prefix string, retry time.Duration) *Redis {
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	return &Redis{Client: redis.NewClient(opt), prefix: prefix, retry: retry}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := newToken()
	full := r.prefix + key
	for {
		ok, err := r.Client.SetNX(ctx, full, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lease{Key: full, Token: token, release: r.release}, nil
		}
		if err := sleepCtx(ctx, r.retry); err != nil {
			return nil, err
		}
	}
}

func (r *Redis) release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, r.Client, []string{key}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.Client.Close()
}
