package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
	"github.com/yungbote/beliefpath-sync/internal/services"
)

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type SyncLockConfig struct {
	// TTL bounds how long a crashed holder can block other syncs.
	TTL time.Duration
	// Wait is how long Lock polls before giving up.
	Wait time.Duration
	// Poll is the retry interval while waiting.
	Poll time.Duration
}

type syncLocker struct {
	log *logger.Logger
	rdb goredis.UniversalClient
	cfg SyncLockConfig
}

func NewSyncLocker(log *logger.Logger, rdb goredis.UniversalClient, cfg SyncLockConfig) (services.SyncLocker, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.Wait <= 0 {
		cfg.Wait = cfg.TTL
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 50 * time.Millisecond
	}
	return &syncLocker{log: log.With("service", "RedisSyncLocker"), rdb: rdb, cfg: cfg}, nil
}

func (l *syncLocker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.cfg.Wait)
	ticker := time.NewTicker(l.cfg.Poll)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire sync lock: %w", err)
		}
		if ok {
			return func(releaseCtx context.Context) error {
				err := releaseScript.Run(releaseCtx, l.rdb, []string{key}, token).Err()
				if err != nil && !errors.Is(err, goredis.Nil) {
					return fmt.Errorf("release sync lock: %w", err)
				}
				return nil
			}, nil
		}
		if time.Now().After(deadline) {
			l.log.Warn("sync lock busy", "key", key, "waited", l.cfg.Wait)
			return nil, services.ErrSyncLockBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
