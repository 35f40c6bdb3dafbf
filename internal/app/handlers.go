package app

import (
	httpH "github.com/yungbote/beliefpath-sync/internal/http/handlers"
	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
)

type Handlers struct {
	Health *httpH.HealthHandler
	Sync   *httpH.SyncHandler
}

func wireHandlers(log *logger.Logger, cfg Config, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(),
		Sync:   httpH.NewSyncHandler(log, services.Sync, cfg.HTTP.MaxBodyBytes),
	}
}
