// Package reserve holds short-lived claims on short codes in Redis so two
// requests allocating the same code do not both reach the store.
package reserve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	DefaultTTL = 5 * time.Second
	keyPrefix  = "shortlink:reserve:"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired claim re-taken by another request is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewClient connects and pings so a bad address fails at startup.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedis(client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, ttl: ttl, logger: logger}
}

func key(code string) string { return keyPrefix + code }

// Reserve claims code for the configured TTL. ok is false when another
// request holds it. release is always safe to call.
func (r *Redis) Reserve(ctx context.Context, code string) (func(context.Context), bool, error) {
	token := uuid.NewString()
	k := key(code)

	ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
	if err != nil {
		return noop, false, fmt.Errorf("reserve %q: %w", code, err)
	}
	if !ok {
		return noop, false, nil
	}

	release := func(ctx context.Context) {
		err := releaseScript.Run(ctx, r.client, []string{k}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			r.logger.WarnContext(ctx, "reservation release failed", "code", code, "error", err)
		}
	}
	return release, true, nil
}

func noop(context.Context) {}
