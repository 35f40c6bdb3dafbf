package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/beliefpath-sync/internal/data/repos/audit"
	"github.com/yungbote/beliefpath-sync/internal/data/repos/learning"
	"github.com/yungbote/beliefpath-sync/internal/data/repos/user"
	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
)

type UserRepo = user.UserRepo

type ProgressRepo = learning.ProgressRepo
type UserAchievementRepo = learning.UserAchievementRepo

type SyncRunRepo = audit.SyncRunRepo

func NewUserRepo(db *gorm.DB, log *logger.Logger) UserRepo { return user.NewUserRepo(db, log) }

func NewProgressRepo(db *gorm.DB, log *logger.Logger) ProgressRepo {
	return learning.NewProgressRepo(db, log)
}

func NewUserAchievementRepo(db *gorm.DB, log *logger.Logger) UserAchievementRepo {
	return learning.NewUserAchievementRepo(db, log)
}

func NewSyncRunRepo(db *gorm.DB, log *logger.Logger) SyncRunRepo { return audit.NewSyncRunRepo(db, log) }
