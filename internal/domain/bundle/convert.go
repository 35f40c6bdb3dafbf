package bundle

import (
	"github.com/yungbote/beliefpath-sync/internal/domain/learning"
	"github.com/yungbote/beliefpath-sync/internal/domain/user"
	"github.com/yungbote/beliefpath-sync/internal/platform/isotime"
)

func FromUser(u *user.User) *User {
	if u == nil {
		return nil
	}
	totalXP, level, streak := u.TotalXP, u.CurrentLevel, u.StreakCount
	createdAt, updatedAt := isotime.New(u.CreatedAt), isotime.New(u.UpdatedAt)
	return &User{
		ID:             u.ID.String(),
		Name:           u.Name,
		Email:          u.Email,
		TotalXP:        &totalXP,
		CurrentLevel:   &level,
		StreakCount:    &streak,
		LastActiveDate: isotime.Ptr(u.LastActiveDate),
		CreatedAt:      &createdAt,
		UpdatedAt:      &updatedAt,
	}
}

func FromProgress(p *learning.Progress) Progress {
	createdAt, updatedAt := isotime.New(p.CreatedAt), isotime.New(p.UpdatedAt)
	return Progress{
		ID:             p.ID.String(),
		UserID:         p.UserID.String(),
		BeliefSystemID: p.BeliefSystemID,
		LessonID:       p.LessonID,
		Status:         p.Status,
		Score:          p.Score,
		EarnedXP:       p.EarnedXP,
		CompletedAt:    isotime.Ptr(p.CompletedAt),
		CreatedAt:      &createdAt,
		UpdatedAt:      &updatedAt,
	}
}

func FromAchievement(a *learning.UserAchievement) Achievement {
	createdAt, updatedAt := isotime.New(a.CreatedAt), isotime.New(a.UpdatedAt)
	return Achievement{
		ID:            a.ID.String(),
		UserID:        a.UserID.String(),
		AchievementID: a.AchievementID,
		Progress:      a.Progress,
		IsCompleted:   a.IsCompleted,
		CompletedAt:   isotime.Ptr(a.CompletedAt),
		CreatedAt:     &createdAt,
		UpdatedAt:     &updatedAt,
	}
}

// New builds a response bundle. Slices are never nil so they encode as [].
// lastSyncDate is always null on the way out.
func New(u *user.User, progress []learning.Progress, achievements []learning.UserAchievement) Bundle {
	out := Bundle{
		User:         FromUser(u),
		Progress:     make([]Progress, 0, len(progress)),
		Achievements: make([]Achievement, 0, len(achievements)),
	}
	for i := range progress {
		out.Progress = append(out.Progress, FromProgress(&progress[i]))
	}
	for i := range achievements {
		out.Achievements = append(out.Achievements, FromAchievement(&achievements[i]))
	}
	return out
}
