package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/beliefpath-sync/internal/platform/ctxutil"
)

func TestAttachTraceContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen *ctxutil.TraceData
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/health", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, "req-1")
	req.Header.Set(headerTraceID, "trace-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if seen == nil || seen.RequestID != "req-1" || seen.TraceID != "trace-1" {
		t.Fatalf("trace data: got=%+v", seen)
	}
	if rec.Header().Get(headerRequestID) != "req-1" {
		t.Fatalf("response request id: got=%q", rec.Header().Get(headerRequestID))
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, strings.Repeat("x", maxClientIDLen+1))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if seen.RequestID == "" || len(seen.RequestID) > maxClientIDLen {
		t.Fatalf("oversized request id should be replaced, got=%q", seen.RequestID)
	}
	if seen.TraceID != seen.RequestID {
		t.Fatalf("trace id should fall back to request id: trace=%q req=%q", seen.TraceID, seen.RequestID)
	}
}
