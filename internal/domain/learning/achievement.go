package learning

import (
	"time"

	"github.com/google/uuid"
)

// UserAchievement tracks progress toward one achievement definition.
// Progress is a fraction in [0, 1] and only ever moves up through sync.
type UserAchievement struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID  `gorm:"type:uuid;not null;column:user_id;uniqueIndex:idx_user_achievement_user_achievement,priority:1" json:"user_id"`
	AchievementID string     `gorm:"not null;column:achievement_id;uniqueIndex:idx_user_achievement_user_achievement,priority:2" json:"achievement_id"`
	Progress      float64    `gorm:"not null;default:0;column:progress" json:"progress"`
	IsCompleted   bool       `gorm:"not null;default:false;column:is_completed" json:"is_completed"`
	CompletedAt   *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt     time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null" json:"updated_at"`
}

func (UserAchievement) TableName() string { return "user_achievement" }
