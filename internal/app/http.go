package app

import (
	httpserver "github.com/yungbote/beliefpath-sync/internal/http"
	"github.com/yungbote/beliefpath-sync/internal/observability"
	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
)

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, mw Middleware, metrics *observability.Metrics) *httpserver.Server {
	return httpserver.NewServer(httpserver.RouterConfig{
		Log:                log,
		Metrics:            metrics,
		ServiceName:        cfg.Otel.ServiceName,
		Tracing:            cfg.Otel.Enabled,
		IdentityMiddleware: mw.Identity,
		SyncHandler:        handlers.Sync,
		HealthHandler:      handlers.Health,
	})
}
