package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/beliefpath-sync/internal/http/handlers"
	httpMW "github.com/yungbote/beliefpath-sync/internal/http/middleware"
	"github.com/yungbote/beliefpath-sync/internal/observability"
	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	// Tracing adds the otelgin middleware; leave off when no tracer
	// provider was installed.
	Tracing bool

	IdentityMiddleware *httpMW.IdentityMiddleware
	SyncHandler        *httpH.SyncHandler
	HealthHandler      *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("panic while handling request", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}))
	if cfg.Tracing {
		serviceName := cfg.ServiceName
		if serviceName == "" {
			serviceName = "beliefpath-sync"
		}
		r.Use(otelgin.Middleware(serviceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.CORS())
	r.Use(httpMW.RequestLogger(log))
	r.Use(httpMW.Metrics(cfg.Metrics))

	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Not Found")
	})

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.HealthCheck)
	}

	// Sync (identity always required)
	if cfg.SyncHandler != nil {
		if cfg.IdentityMiddleware == nil {
			log.Warn("no identity middleware configured; /sync not mounted")
		} else {
			r.POST("/sync", cfg.IdentityMiddleware.RequireIdentity(), cfg.SyncHandler.Sync)
		}
	}

	return r
}
