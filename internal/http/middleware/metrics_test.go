package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRouteLabelUsesTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var got []string
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		got = append(got, routeLabel(c))
	})
	r.POST("/sync", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/sync", "/wp-admin/x"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, path, nil))
	}
	if len(got) != 2 || got[0] != "/sync" || got[1] != unmatchedRoute {
		t.Fatalf("labels: got=%v", got)
	}
}

func TestMetricsNilIsPassThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(nil))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status: want=204 got=%d", rec.Code)
	}
}
