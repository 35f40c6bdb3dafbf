package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/beliefpath-sync/internal/data/repos"
	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
)

type Repos struct {
	Users        repos.UserRepo
	Progress     repos.ProgressRepo
	Achievements repos.UserAchievementRepo
	SyncRuns     repos.SyncRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Users:        repos.NewUserRepo(db, log),
		Progress:     repos.NewProgressRepo(db, log),
		Achievements: repos.NewUserAchievementRepo(db, log),
		SyncRuns:     repos.NewSyncRunRepo(db, log),
	}
}
