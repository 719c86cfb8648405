package session

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/xtrntr/brokerclient/internal/config"
)

// NewPersister builds the persister named by cfg.Backend. The returned
// close function releases its connections.
func NewPersister(ctx context.Context, cfg config.SessionConfig) (Persister, func(), error) {
	switch cfg.Backend {
	case "file":
		return NewFilePersister(cfg.Dir), func() {}, nil
	case "postgres":
		p, err := NewPostgresPersister(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case "redis":
		p, err := NewRedisPersister(ctx, &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, func() { p.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
