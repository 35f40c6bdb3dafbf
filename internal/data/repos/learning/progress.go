package learning

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/beliefpath-sync/internal/domain/learning"
	"github.com/yungbote/beliefpath-sync/internal/platform/dbctx"
	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
)

type ProgressRepo interface {
	ListByUserID(dbc dbctx.Context, userID uuid.UUID) ([]*domain.Progress, error)
	GetByKey(dbc dbctx.Context, userID uuid.UUID, key domain.ProgressKey) (*domain.Progress, error)
	Create(dbc dbctx.Context, p *domain.Progress) error
	// UpdateIfNewer applies p only while the stored updated_at is strictly
	// older than p.UpdatedAt.
	UpdateIfNewer(dbc dbctx.Context, p *domain.Progress) (bool, error)
	SumEarnedXP(dbc dbctx.Context, userID uuid.UUID) (int, error)
}

type progressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgressRepo(db *gorm.DB, baseLog *logger.Logger) ProgressRepo {
	return &progressRepo{db: db, log: baseLog.With("repo", "ProgressRepo")}
}

func (r *progressRepo) ListByUserID(dbc dbctx.Context, userID uuid.UUID) ([]*domain.Progress, error) {
	out := []*domain.Progress{}
	if userID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *progressRepo) GetByKey(dbc dbctx.Context, userID uuid.UUID, key domain.ProgressKey) (*domain.Progress, error) {
	q := dbc.DB(r.db).Where("user_id = ? AND belief_system_id = ?", userID, key.BeliefSystemID)
	if key.HasLesson {
		q = q.Where("lesson_id = ?", key.LessonID)
	} else {
		q = q.Where("lesson_id IS NULL")
	}
	var rows []*domain.Progress
	if err := q.Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *progressRepo) Create(dbc dbctx.Context, p *domain.Progress) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return dbc.DB(r.db).Create(p).Error
}

func (r *progressRepo) UpdateIfNewer(dbc dbctx.Context, p *domain.Progress) (bool, error) {
	res := dbc.DB(r.db).
		Model(&domain.Progress{}).
		Where("id = ? AND updated_at < ?", p.ID, p.UpdatedAt).
		Updates(map[string]any{
			"status":       p.Status,
			"score":        p.Score,
			"earned_xp":    p.EarnedXP,
			"completed_at": p.CompletedAt,
			"updated_at":   p.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *progressRepo) SumEarnedXP(dbc dbctx.Context, userID uuid.UUID) (int, error) {
	var total int64
	if err := dbc.DB(r.db).
		Model(&domain.Progress{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(earned_xp), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}
