package learning

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/beliefpath-sync/internal/domain/learning"
	"github.com/yungbote/beliefpath-sync/internal/platform/dbctx"
	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
)

type UserAchievementRepo interface {
	ListByUserID(dbc dbctx.Context, userID uuid.UUID) ([]*domain.UserAchievement, error)
	GetByKey(dbc dbctx.Context, userID uuid.UUID, achievementID string) (*domain.UserAchievement, error)
	Create(dbc dbctx.Context, a *domain.UserAchievement) error
	// UpdateIfGreater applies a only while the stored progress is strictly
	// below a.Progress.
	UpdateIfGreater(dbc dbctx.Context, a *domain.UserAchievement) (bool, error)
}

type userAchievementRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserAchievementRepo(db *gorm.DB, baseLog *logger.Logger) UserAchievementRepo {
	return &userAchievementRepo{db: db, log: baseLog.With("repo", "UserAchievementRepo")}
}

func (r *userAchievementRepo) ListByUserID(dbc dbctx.Context, userID uuid.UUID) ([]*domain.UserAchievement, error) {
	out := []*domain.UserAchievement{}
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

func (r *userAchievementRepo) GetByKey(dbc dbctx.Context, userID uuid.UUID, achievementID string) (*domain.UserAchievement, error) {
	var rows []*domain.UserAchievement
	if err := dbc.DB(r.db).
		Where("user_id = ? AND achievement_id = ?", userID, strings.TrimSpace(achievementID)).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *userAchievementRepo) Create(dbc dbctx.Context, a *domain.UserAchievement) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return dbc.DB(r.db).Create(a).Error
}

func (r *userAchievementRepo) UpdateIfGreater(dbc dbctx.Context, a *domain.UserAchievement) (bool, error) {
	res := dbc.DB(r.db).
		Model(&domain.UserAchievement{}).
		Where("id = ? AND progress < ?", a.ID, a.Progress).
		Updates(map[string]any{
			"progress":     a.Progress,
			"is_completed": a.IsCompleted,
			"completed_at": a.CompletedAt,
			"updated_at":   a.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
