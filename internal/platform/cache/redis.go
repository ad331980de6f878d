package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Options locates the Redis server shared by the cache, locks and asynq.
// Addr may be host:port or a redis:// URL.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

func (o Options) client() (*redis.Options, error) {
	addr := strings.TrimSpace(o.Addr)
	if addr == "" {
		return nil, fmt.Errorf("platform/cache: redis address required")
	}
	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("platform/cache: parse url: %w", err)
		}
		opts = parsed
	}
	if o.Password != "" {
		opts.Password = o.Password
	}
	if o.DB > 0 {
		opts.DB = o.DB
	}
	if o.PoolSize > 0 {
		opts.PoolSize = o.PoolSize
	}
	opts.DialTimeout = 3 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	return opts, nil
}

// Asynq returns the equivalent asynq connection options.
func (o Options) Asynq() (asynq.RedisClientOpt, error) {
	opts, err := o.client()
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		PoolSize:  opts.PoolSize,
		TLSConfig: opts.TLSConfig,
	}, nil
}

// New creates a Redis client and pings it.
func New(ctx context.Context, o Options) (*redis.Client, error) {
	opts, err := o.client()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}
	return client, nil
}
