package user

import (
	"time"

	"github.com/google/uuid"
)

// User is one learner. ExternalID is the token issuer's subject and is
// immutable once the row exists.
type User struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID     string     `gorm:"not null;column:external_id;uniqueIndex:idx_user_external_id" json:"-"`
	Name           string     `gorm:"not null;default:'';column:name" json:"name"`
	Email          string     `gorm:"not null;default:'';column:email" json:"email"`
	TotalXP        int        `gorm:"not null;default:0;column:total_xp" json:"total_xp"`
	CurrentLevel   int        `gorm:"not null;default:1;column:current_level" json:"current_level"`
	StreakCount    int        `gorm:"not null;default:0;column:streak_count" json:"streak_count"`
	LastActiveDate *time.Time `gorm:"column:last_active_date" json:"last_active_date,omitempty"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "user" }

const xpPerLevel = 100

// LevelForXP derives the level shown to the learner from total XP.
func LevelForXP(totalXP int) int {
	level := totalXP/xpPerLevel + 1
	if totalXP < 0 || level < 1 {
		return 1
	}
	return level
}
