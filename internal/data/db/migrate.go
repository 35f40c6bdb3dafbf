package db

import (
	"fmt"

	"github.com/yungbote/beliefpath-sync/internal/domain/audit"
	"github.com/yungbote/beliefpath-sync/internal/domain/learning"
	"github.com/yungbote/beliefpath-sync/internal/domain/user"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&user.User{},
		&learning.Progress{},
		&learning.UserAchievement{},
		&audit.SyncRun{},
	); err != nil {
		return err
	}
	return EnsureSyncIndexes(db)
}

// EnsureSyncIndexes creates the indexes gorm tags cannot express. A nil
// lesson id is its own key, so the index folds NULL into ''.
func EnsureSyncIndexes(db *gorm.DB) error {
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_progress_user_belief_lesson ON progress (user_id, belief_system_id, COALESCE(lesson_id, ''))`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("ensure index: %w", err)
		}
	}
	return nil
}
