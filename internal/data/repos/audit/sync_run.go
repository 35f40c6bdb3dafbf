package audit

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/beliefpath-sync/internal/domain/audit"
	"github.com/yungbote/beliefpath-sync/internal/platform/dbctx"
	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
)

type SyncRunRepo interface {
	Create(dbc dbctx.Context, run *domain.SyncRun) error
	ListByUserID(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*domain.SyncRun, error)
}

type syncRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSyncRunRepo(db *gorm.DB, baseLog *logger.Logger) SyncRunRepo {
	return &syncRunRepo{db: db, log: baseLog.With("repo", "SyncRunRepo")}
}

func (r *syncRunRepo) Create(dbc dbctx.Context, run *domain.SyncRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	return dbc.DB(r.db).Create(run).Error
}

// ListByUserID returns the most recent runs first.
func (r *syncRunRepo) ListByUserID(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*domain.SyncRun, error) {
	out := []*domain.SyncRun{}
	if limit <= 0 {
		limit = 20
	}
	if err := dbc.DB(r.db).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
