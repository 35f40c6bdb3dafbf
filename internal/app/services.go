package app

import (
	"fmt"

	"gorm.io/gorm"

	redisclient "github.com/yungbote/beliefpath-sync/internal/clients/redis"
	"github.com/yungbote/beliefpath-sync/internal/data/aggregates"
	"github.com/yungbote/beliefpath-sync/internal/observability"
	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
	"github.com/yungbote/beliefpath-sync/internal/services"
)

type Services struct {
	// Verifier is nil when no audience is configured and only the trusted
	// header is accepted.
	Verifier services.IdentityVerifier
	Locker   services.SyncLocker
	Sync     services.SyncService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")
	var out Services

	if cfg.Identity.Audience != "" {
		keys, err := services.NewJWKSKeySet(log, services.JWKSConfig{
			URL:          cfg.Identity.JWKSURL,
			TTL:          cfg.Identity.JWKSTTL,
			FetchTimeout: cfg.Identity.FetchTimeout,
		})
		if err != nil {
			return out, fmt.Errorf("init jwks: %w", err)
		}
		verifier, err := services.NewIdentityVerifier(keys, services.IdentityVerifierConfig{
			Issuer:   cfg.Identity.Issuer,
			Audience: cfg.Identity.Audience,
		})
		if err != nil {
			return out, fmt.Errorf("init identity verifier: %w", err)
		}
		out.Verifier = verifier
	}

	out.Locker = services.NewNoopSyncLocker()
	if clients.Redis != nil {
		locker, err := redisclient.NewSyncLocker(log, clients.Redis, redisclient.SyncLockConfig{TTL: cfg.Sync.LockTTL})
		if err != nil {
			return out, fmt.Errorf("init sync locker: %w", err)
		}
		out.Locker = locker
	}

	runner := aggregates.NewGormTxRunner(db, nil)
	if cfg.SerializableTx() {
		runner = aggregates.NewGormTxRunner(db, aggregates.SerializableTxOptions())
	}

	syncSvc, err := services.NewSyncService(services.SyncServiceDeps{
		DB:           db,
		Log:          log,
		Users:        reposet.Users,
		Progress:     reposet.Progress,
		Achievements: reposet.Achievements,
		SyncRuns:     reposet.SyncRuns,
		Runner:       runner,
		Hooks:        aggregates.NewObservabilityHooks(metrics),
		MaxAttempts:  cfg.Sync.TxRetries,
		Locker:       out.Locker,
		Metrics:      metrics,
	})
	if err != nil {
		return out, fmt.Errorf("init sync service: %w", err)
	}
	out.Sync = syncSvc
	return out, nil
}
