package app

import (
	httpMW "github.com/yungbote/beliefpath-sync/internal/http/middleware"
	"github.com/yungbote/beliefpath-sync/internal/observability"
	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
)

type Middleware struct {
	Identity *httpMW.IdentityMiddleware
}

func wireMiddleware(log *logger.Logger, cfg Config, services Services, metrics *observability.Metrics) Middleware {
	log.Info("Wiring middleware...")
	if cfg.Identity.TrustClientHeader {
		log.Warn("AUTH_TRUST_CLIENT_HEADER is on: X-External-User-Id is accepted without a token; never enable in production")
	}
	return Middleware{
		Identity: httpMW.NewIdentityMiddleware(log, services.Verifier, metrics, cfg.Identity.TrustClientHeader),
	}
}
