package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	redisclient "github.com/yungbote/beliefpath-sync/internal/clients/redis"
	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
)

type Clients struct {
	Redis *goredis.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	var out Clients
	if cfg.Redis.Addr == "" {
		log.Info("REDIS_ADDR not set; per-user sync lock disabled")
		return out, nil
	}
	rdb, err := redisclient.NewClient(ctx, cfg.Redis.Addr)
	if err != nil {
		return out, fmt.Errorf("init redis: %w", err)
	}
	log.Info("redis connected", "addr", cfg.Redis.Addr)
	out.Redis = rdb
	return out, nil
}

func (c Clients) Close() {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
