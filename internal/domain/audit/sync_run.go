package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SyncRun records the outcome of one reconciliation for a user. Summary holds
// per-entity insert/update/keep counts; Collisions lists the records where
// the client lost a tie or tried to regress achievement progress.
type SyncRun struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID               uuid.UUID      `gorm:"type:uuid;not null;index;column:user_id" json:"user_id"`
	IncomingProgress     int            `gorm:"not null;default:0;column:incoming_progress" json:"incoming_progress"`
	IncomingAchievements int            `gorm:"not null;default:0;column:incoming_achievements" json:"incoming_achievements"`
	CollisionCount       int            `gorm:"not null;default:0;column:collision_count" json:"collision_count"`
	Summary              datatypes.JSON `gorm:"column:summary" json:"summary"`
	Collisions           datatypes.JSON `gorm:"column:collisions" json:"collisions"`
	Attempts             int            `gorm:"not null;default:1;column:attempts" json:"attempts"`
	CreatedAt            time.Time      `gorm:"not null" json:"created_at"`
}

func (SyncRun) TableName() string { return "sync_run" }
