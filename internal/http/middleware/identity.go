package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/beliefpath-sync/internal/http/response"
	"github.com/yungbote/beliefpath-sync/internal/observability"
	"github.com/yungbote/beliefpath-sync/internal/platform/apierr"
	"github.com/yungbote/beliefpath-sync/internal/platform/ctxutil"
	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
	"github.com/yungbote/beliefpath-sync/internal/services"
)

// HeaderExternalUserID is only honored when trusted-header mode is on.
const HeaderExternalUserID = "X-External-User-Id"

var errMissingToken = errors.New("missing bearer token")

type IdentityMiddleware struct {
	log         *logger.Logger
	verifier    services.IdentityVerifier
	metrics     *observability.Metrics
	trustHeader bool
}

// NewIdentityMiddleware builds the auth gate for /sync. With trustHeader
// set, a caller without a token is identified by X-External-User-Id; that
// mode exists for local development only.
func NewIdentityMiddleware(log *logger.Logger, verifier services.IdentityVerifier, metrics *observability.Metrics, trustHeader bool) *IdentityMiddleware {
	if log == nil {
		log = logger.Nop()
	}
	return &IdentityMiddleware{
		log:         log.With("Middleware", "IdentityMiddleware"),
		verifier:    verifier,
		metrics:     metrics,
		trustHeader: trustHeader,
	}
}

func (im *IdentityMiddleware) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token != "" && im.verifier != nil {
			claims, err := im.verifier.Verify(c.Request.Context(), token)
			if err != nil {
				kind := services.VerificationKindOf(err)
				if kind == "" {
					kind = services.KindMalformedToken
				}
				im.metrics.IncVerificationFailure(string(kind))
				im.log.Warn("identity verification failed", "kind", string(kind), "error", err)
				response.RespondError(c, apierr.Unauthorized(string(kind), err))
				return
			}
			im.attach(c, &ctxutil.Identity{
				ExternalID:    claims.Subject,
				Email:         claims.Email,
				EmailVerified: claims.EmailVerified,
				Source:        ctxutil.IdentityFromToken,
			})
			c.Next()
			return
		}

		if im.trustHeader {
			if ext := strings.TrimSpace(c.GetHeader(HeaderExternalUserID)); ext != "" {
				im.attach(c, &ctxutil.Identity{ExternalID: ext, Source: ctxutil.IdentityFromHeader})
				c.Next()
				return
			}
		}

		im.metrics.IncVerificationFailure("missing_token")
		response.RespondError(c, apierr.Unauthorized("", errMissingToken))
	}
}

func (im *IdentityMiddleware) attach(c *gin.Context, id *ctxutil.Identity) {
	c.Request = c.Request.WithContext(ctxutil.WithIdentity(c.Request.Context(), id))
}

func bearerToken(c *gin.Context) string {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
