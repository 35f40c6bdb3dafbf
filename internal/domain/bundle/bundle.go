// Package bundle holds the sync envelope exchanged with mobile clients. The
// same shape is used for request and response.
package bundle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/beliefpath-sync/internal/domain/learning"
	"github.com/yungbote/beliefpath-sync/internal/platform/isotime"
)

type Bundle struct {
	User         *User         `json:"user" binding:"omitempty"`
	Progress     []Progress    `json:"progress" binding:"omitempty,dive"`
	Achievements []Achievement `json:"achievements" binding:"omitempty,dive"`
	LastSyncDate *isotime.Time `json:"lastSyncDate"`
}

// User is the client's view of the learner profile. Nil numeric fields were
// not supplied by the client.
type User struct {
	ID             string        `json:"id,omitempty"`
	Name           string        `json:"name"`
	Email          string        `json:"email"`
	TotalXP        *int          `json:"totalXP" binding:"omitempty,gte=0"`
	CurrentLevel   *int          `json:"currentLevel" binding:"omitempty,gte=1"`
	StreakCount    *int          `json:"streakCount" binding:"omitempty,gte=0"`
	LastActiveDate *isotime.Time `json:"lastActiveDate"`
	CreatedAt      *isotime.Time `json:"createdAt,omitempty"`
	UpdatedAt      *isotime.Time `json:"updatedAt"`
}

type Progress struct {
	ID             string                  `json:"id,omitempty"`
	UserID         string                  `json:"userId,omitempty"`
	BeliefSystemID string                  `json:"beliefSystemId" binding:"required"`
	LessonID       *string                 `json:"lessonId"`
	Status         learning.ProgressStatus `json:"status" binding:"omitempty,oneof=not_started in_progress completed mastered"`
	Score          *float64                `json:"score"`
	EarnedXP       int                     `json:"earnedXP" binding:"gte=0"`
	CompletedAt    *isotime.Time           `json:"completedAt"`
	CreatedAt      *isotime.Time           `json:"createdAt,omitempty"`
	UpdatedAt      *isotime.Time           `json:"updatedAt"`
}

type Achievement struct {
	ID            string        `json:"id,omitempty"`
	UserID        string        `json:"userId,omitempty"`
	AchievementID string        `json:"achievementId" binding:"required"`
	Progress      float64       `json:"progress" binding:"gte=0,lte=1"`
	IsCompleted   bool          `json:"isCompleted"`
	CompletedAt   *isotime.Time `json:"completedAt"`
	CreatedAt     *isotime.Time `json:"createdAt,omitempty"`
	UpdatedAt     *isotime.Time `json:"updatedAt"`
}

var ErrInvalid = errors.New("invalid sync bundle")

// Validate covers the rules binding tags cannot express. It is also safe to
// call on bundles that never went through gin binding.
func (b *Bundle) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: empty body", ErrInvalid)
	}
	if b.User != nil {
		if b.User.TotalXP != nil && *b.User.TotalXP < 0 {
			return fmt.Errorf("%w: user.totalXP must be >= 0", ErrInvalid)
		}
		if b.User.StreakCount != nil && *b.User.StreakCount < 0 {
			return fmt.Errorf("%w: user.streakCount must be >= 0", ErrInvalid)
		}
	}
	for i := range b.Progress {
		p := &b.Progress[i]
		if strings.TrimSpace(p.BeliefSystemID) == "" {
			return fmt.Errorf("%w: progress[%d].beliefSystemId is required", ErrInvalid, i)
		}
		if p.Status != "" && !p.Status.Valid() {
			return fmt.Errorf("%w: progress[%d].status %q is not a known status", ErrInvalid, i, p.Status)
		}
		if p.EarnedXP < 0 {
			return fmt.Errorf("%w: progress[%d].earnedXP must be >= 0", ErrInvalid, i)
		}
	}
	for i := range b.Achievements {
		a := &b.Achievements[i]
		if strings.TrimSpace(a.AchievementID) == "" {
			return fmt.Errorf("%w: achievements[%d].achievementId is required", ErrInvalid, i)
		}
		if a.Progress < 0 || a.Progress > 1 {
			return fmt.Errorf("%w: achievements[%d].progress must be within [0, 1]", ErrInvalid, i)
		}
	}
	return nil
}

// StatusOrDefault treats an omitted status as not started.
func (p *Progress) StatusOrDefault() learning.ProgressStatus {
	if p.Status == "" {
		return learning.ProgressNotStarted
	}
	return p.Status
}

func (p *Progress) Key() learning.ProgressKey {
	return learning.NewProgressKey(p.BeliefSystemID, p.LessonID)
}

func (a *Achievement) Key() string {
	return strings.TrimSpace(a.AchievementID)
}
