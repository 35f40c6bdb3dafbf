package learning

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not_started"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
	// Mastered exists on the mobile client model; stored as-is.
	ProgressMastered ProgressStatus = "mastered"
)

func (s ProgressStatus) Valid() bool {
	switch s {
	case ProgressNotStarted, ProgressInProgress, ProgressCompleted, ProgressMastered:
		return true
	default:
		return false
	}
}

// Progress is a learner's state in one lesson, or in a whole belief-system
// path when LessonID is nil. (UserID, BeliefSystemID, LessonID) is unique,
// with a nil LessonID being its own key.
type Progress struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index;column:user_id" json:"user_id"`
	BeliefSystemID string         `gorm:"not null;column:belief_system_id" json:"belief_system_id"`
	LessonID       *string        `gorm:"column:lesson_id" json:"lesson_id,omitempty"`
	Status         ProgressStatus `gorm:"not null;default:'not_started';column:status" json:"status"`
	Score          *float64       `gorm:"column:score" json:"score,omitempty"`
	EarnedXP       int            `gorm:"not null;default:0;column:earned_xp" json:"earned_xp"`
	CompletedAt    *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (Progress) TableName() string { return "progress" }

// ProgressKey is the logical identity of a Progress row for one user.
type ProgressKey struct {
	BeliefSystemID string
	LessonID       string
	HasLesson      bool
}

func NewProgressKey(beliefSystemID string, lessonID *string) ProgressKey {
	k := ProgressKey{BeliefSystemID: strings.TrimSpace(beliefSystemID)}
	if lessonID != nil && strings.TrimSpace(*lessonID) != "" {
		k.LessonID = strings.TrimSpace(*lessonID)
		k.HasLesson = true
	}
	return k
}

func (p *Progress) Key() ProgressKey {
	return NewProgressKey(p.BeliefSystemID, p.LessonID)
}

// LessonPtr returns the lesson id as stored: nil for path-level progress.
func (k ProgressKey) LessonPtr() *string {
	if !k.HasLesson {
		return nil
	}
	v := k.LessonID
	return &v
}

func (k ProgressKey) String() string {
	if !k.HasLesson {
		return k.BeliefSystemID + "/-"
	}
	return k.BeliefSystemID + "/" + k.LessonID
}
