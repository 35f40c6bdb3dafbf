package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler answers liveness probes. It never touches the database, so a
// slow store does not get the process restarted.
type HealthHandler struct{}

type healthResponse struct {
	Status string `json:"status"`
}

func NewHealthHandler() *HealthHandler { return &HealthHandler{} }

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}
