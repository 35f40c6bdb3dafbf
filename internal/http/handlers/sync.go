package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/beliefpath-sync/internal/domain/aggregates"
	"github.com/yungbote/beliefpath-sync/internal/domain/bundle"
	"github.com/yungbote/beliefpath-sync/internal/http/response"
	"github.com/yungbote/beliefpath-sync/internal/platform/apierr"
	"github.com/yungbote/beliefpath-sync/internal/platform/ctxutil"
	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
	"github.com/yungbote/beliefpath-sync/internal/services"
)

const DefaultMaxBodyBytes int64 = 4 << 20

type SyncHandler struct {
	log          *logger.Logger
	sync         services.SyncService
	maxBodyBytes int64
}

func NewSyncHandler(log *logger.Logger, sync services.SyncService, maxBodyBytes int64) *SyncHandler {
	if log == nil {
		log = logger.Nop()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &SyncHandler{
		log:          log.With("handler", "SyncHandler"),
		sync:         sync,
		maxBodyBytes: maxBodyBytes,
	}
}

// POST /sync
func (h *SyncHandler) Sync(c *gin.Context) {
	id := ctxutil.GetIdentity(c.Request.Context())
	if id == nil || id.ExternalID == "" {
		response.RespondError(c, apierr.Unauthorized("", errors.New("no caller identity")))
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	var in bundle.Bundle
	if err := c.ShouldBindJSON(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			e := apierr.New(http.StatusRequestEntityTooLarge, "payload_too_large", err)
			response.RespondError(c, e)
			return
		}
		response.RespondError(c, apierr.BadRequest(err))
		return
	}
	if err := in.Validate(); err != nil {
		response.RespondError(c, apierr.BadRequest(err))
		return
	}

	out, err := h.sync.SyncData(c.Request.Context(), *id, in)
	if err != nil {
		_ = c.Error(err)
		if domainagg.IsCode(err, domainagg.CodeValidation) {
			response.RespondError(c, apierr.BadRequest(err))
			return
		}
		response.RespondError(c, apierr.SyncFailed(err))
		return
	}
	response.RespondOK(c, out)
}
