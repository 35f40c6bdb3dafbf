package user

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/beliefpath-sync/internal/domain/user"
	"github.com/yungbote/beliefpath-sync/internal/platform/dbctx"
	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
)

type UserRepo interface {
	GetByExternalID(dbc dbctx.Context, externalID string) (*domain.User, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.User, error)
	Create(dbc dbctx.Context, u *domain.User) error
	// UpdateProfileIfNewer writes the mutable profile fields only while the
	// stored updated_at is strictly older than u.UpdatedAt.
	UpdateProfileIfNewer(dbc dbctx.Context, u *domain.User) (bool, error)
	// UpdateAggregates writes total_xp and current_level without touching
	// updated_at.
	UpdateAggregates(dbc dbctx.Context, id uuid.UUID, totalXP, level int) error
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return &userRepo{db: db, log: baseLog.With("repo", "UserRepo")}
}

func (r *userRepo) GetByExternalID(dbc dbctx.Context, externalID string) (*domain.User, error) {
	var rows []*domain.User
	if err := dbc.DB(r.db).
		Where("external_id = ?", externalID).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *userRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.User, error) {
	var rows []*domain.User
	if err := dbc.DB(r.db).
		Where("id = ?", id).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *userRepo) Create(dbc dbctx.Context, u *domain.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return dbc.DB(r.db).Create(u).Error
}

func (r *userRepo) UpdateProfileIfNewer(dbc dbctx.Context, u *domain.User) (bool, error) {
	res := dbc.DB(r.db).
		Model(&domain.User{}).
		Where("id = ? AND updated_at < ?", u.ID, u.UpdatedAt).
		Updates(map[string]any{
			"name":             u.Name,
			"email":            u.Email,
			"total_xp":         u.TotalXP,
			"current_level":    u.CurrentLevel,
			"streak_count":     u.StreakCount,
			"last_active_date": u.LastActiveDate,
			"updated_at":       u.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *userRepo) UpdateAggregates(dbc dbctx.Context, id uuid.UUID, totalXP, level int) error {
	return dbc.DB(r.db).
		Model(&domain.User{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"total_xp":      totalXP,
			"current_level": level,
		}).Error
}

