package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/beliefpath-sync/internal/platform/apierr"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// RespondError renders err and aborts the chain. Details is only set for
// client-correctable failures and sync failures, never for panics.
func RespondError(c *gin.Context, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	e := apierr.As(err)
	body := ErrorBody{Error: e.Message}
	if body.Error == "" {
		body.Error = http.StatusText(e.Status)
	}
	switch e.Code {
	case "invalid_request", "sync_failed":
		if e.Err != nil {
			body.Details = e.Err.Error()
		}
	case "", "internal":
	default:
		body.Code = e.Code
	}
	c.AbortWithStatusJSON(e.Status, body)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
