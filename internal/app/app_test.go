package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/beliefpath-sync/internal/domain/bundle"
	httpMW "github.com/yungbote/beliefpath-sync/internal/http/middleware"
	"github.com/yungbote/beliefpath-sync/internal/platform/dbctx"
)

func newSQLiteApp(t *testing.T) *App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	isolateEnv(t)
	t.Setenv("LOG_MODE", "")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "app.db"))
	t.Setenv("AUTH_TRUST_CLIENT_HEADER", "true")

	a, err := New(context.Background())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestNewWiresSQLiteWithTrustedHeader(t *testing.T) {
	a := newSQLiteApp(t)
	if a.Services.Verifier != nil {
		t.Fatalf("no audience configured: verifier should be nil")
	}
	if a.Clients.Redis != nil {
		t.Fatalf("redis should be disabled without REDIS_ADDR")
	}
	if a.Cfg.SerializableTx() {
		t.Fatalf("sqlite should not use serializable tx options")
	}

	req := httptest.NewRequest(http.MethodPost, "/sync", strings.NewReader(`{
		"user": {"name": "Grace", "updatedAt": "2024-03-01T08:00:00Z"},
		"progress": [{"beliefSystemId": "taoism", "lessonId": "l1", "status": "completed", "earnedXP": 120, "updatedAt": "2024-03-01T08:00:00Z"}],
		"achievements": []
	}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpMW.HeaderExternalUserID, "app-test-user")
	rec := httptest.NewRecorder()
	a.Server.Engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var out bundle.Bundle
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.User == nil || out.User.TotalXP == nil || *out.User.TotalXP != 120 {
		t.Fatalf("totalXP: got=%+v", out.User)
	}
	if out.User.CurrentLevel == nil || *out.User.CurrentLevel != 2 {
		t.Fatalf("currentLevel: got=%+v", out.User.CurrentLevel)
	}
	userID, err := uuid.Parse(out.User.ID)
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	runs, err := a.Repos.SyncRuns.ListByUserID(dbctx.Context{Ctx: context.Background()}, userID, 0)
	if err != nil {
		t.Fatalf("ListByUserID: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("sync runs: want=1 got=%d", len(runs))
	}
}

func TestNewRejectsMissingToken(t *testing.T) {
	a := newSQLiteApp(t)
	req := httptest.NewRequest(http.MethodPost, "/sync", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	a.Server.Engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: want=401 got=%d", rec.Code)
	}
}
