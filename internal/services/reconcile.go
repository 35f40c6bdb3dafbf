package services

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/beliefpath-sync/internal/domain/bundle"
	"github.com/yungbote/beliefpath-sync/internal/domain/learning"
	"github.com/yungbote/beliefpath-sync/internal/domain/user"
	"github.com/yungbote/beliefpath-sync/internal/platform/isotime"
)

type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionKeep   Action = "keep"
)

type CollisionReason string

const (
	// CollisionTie: equal updatedAt but a different payload. The stored row
	// wins and the client's edit is dropped.
	CollisionTie CollisionReason = "equal_timestamp"
	// CollisionStaleProgress: the client reported lower achievement progress
	// than is stored.
	CollisionStaleProgress CollisionReason = "progress_regression"
)

// Decision is the outcome of merging one incoming record.
type Decision struct {
	Action    Action
	Collision CollisionReason
}

func (d Decision) Changed() bool { return d.Action == ActionInsert || d.Action == ActionUpdate }

// UserSeed is what the verified identity contributes to a new user row.
type UserSeed struct {
	ExternalID string
	Email      string
}

// ReconcileUser merges the client's profile against the stored row. A nil
// stored row produces a new user; incoming may be nil.
func ReconcileUser(incoming *bundle.User, stored *user.User, seed UserSeed, now time.Time) (user.User, Decision) {
	now = isotime.Normalize(now)
	if stored == nil {
		out := user.User{
			ID:           uuid.New(),
			ExternalID:   seed.ExternalID,
			Email:        seed.Email,
			CurrentLevel: 1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if incoming != nil {
			out.Name = strings.TrimSpace(incoming.Name)
			if email := strings.TrimSpace(incoming.Email); email != "" {
				out.Email = email
			}
			out.TotalXP = intOr(incoming.TotalXP, 0)
			out.CurrentLevel = intOr(incoming.CurrentLevel, 1)
			out.StreakCount = intOr(incoming.StreakCount, 0)
			out.LastActiveDate = incoming.LastActiveDate.TimePtr()
			if ts := incoming.UpdatedAt.TimePtr(); ts != nil {
				out.UpdatedAt = *ts
			}
		}
		return out, Decision{Action: ActionInsert}
	}

	out := *stored
	if incoming == nil {
		return out, Decision{Action: ActionKeep}
	}
	incomingAt := incoming.UpdatedAt.TimePtr()
	storedAt := isotime.Normalize(stored.UpdatedAt)
	if incomingAt == nil {
		return out, Decision{Action: ActionKeep}
	}
	if !incomingAt.After(storedAt) {
		d := Decision{Action: ActionKeep}
		if incomingAt.Equal(storedAt) && userDiffers(incoming, stored) {
			d.Collision = CollisionTie
		}
		return out, d
	}

	out.Name = strings.TrimSpace(incoming.Name)
	if email := strings.TrimSpace(incoming.Email); email != "" {
		out.Email = email
	}
	out.TotalXP = intOr(incoming.TotalXP, stored.TotalXP)
	out.CurrentLevel = intOr(incoming.CurrentLevel, stored.CurrentLevel)
	out.StreakCount = intOr(incoming.StreakCount, stored.StreakCount)
	out.LastActiveDate = incoming.LastActiveDate.TimePtr()
	out.UpdatedAt = *incomingAt
	return out, Decision{Action: ActionUpdate}
}

// ReconcileProgress applies last-writer-wins on updatedAt. Ties go to the
// stored row.
func ReconcileProgress(incoming *bundle.Progress, stored *learning.Progress, userID uuid.UUID, now time.Time) (learning.Progress, Decision) {
	now = isotime.Normalize(now)
	incomingAt := incoming.UpdatedAt.TimePtr()
	if stored == nil {
		key := incoming.Key()
		out := learning.Progress{
			ID:             uuid.New(),
			UserID:         userID,
			BeliefSystemID: key.BeliefSystemID,
			LessonID:       key.LessonPtr(),
			Status:         incoming.StatusOrDefault(),
			Score:          incoming.Score,
			EarnedXP:       incoming.EarnedXP,
			CompletedAt:    incoming.CompletedAt.TimePtr(),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if incomingAt != nil {
			out.UpdatedAt = *incomingAt
		}
		return out, Decision{Action: ActionInsert}
	}

	out := *stored
	storedAt := isotime.Normalize(stored.UpdatedAt)
	if incomingAt == nil || !incomingAt.After(storedAt) {
		d := Decision{Action: ActionKeep}
		if incomingAt != nil && incomingAt.Equal(storedAt) && progressDiffers(incoming, stored) {
			d.Collision = CollisionTie
		}
		return out, d
	}
	out.Status = incoming.StatusOrDefault()
	out.Score = incoming.Score
	out.EarnedXP = incoming.EarnedXP
	out.CompletedAt = incoming.CompletedAt.TimePtr()
	out.UpdatedAt = *incomingAt
	return out, Decision{Action: ActionUpdate}
}

// ReconcileAchievement ratchets progress: the client wins only with strictly
// greater progress. Completion never reverts.
func ReconcileAchievement(incoming *bundle.Achievement, stored *learning.UserAchievement, userID uuid.UUID, now time.Time) (learning.UserAchievement, Decision) {
	now = isotime.Normalize(now)
	if stored == nil {
		out := learning.UserAchievement{
			ID:            uuid.New(),
			UserID:        userID,
			AchievementID: incoming.Key(),
			Progress:      incoming.Progress,
			IsCompleted:   incoming.IsCompleted,
			CompletedAt:   incoming.CompletedAt.TimePtr(),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if ts := incoming.UpdatedAt.TimePtr(); ts != nil {
			out.UpdatedAt = *ts
		}
		if out.IsCompleted && out.CompletedAt == nil {
			out.CompletedAt = &now
		}
		return out, Decision{Action: ActionInsert}
	}

	out := *stored
	if incoming.Progress <= stored.Progress {
		d := Decision{Action: ActionKeep}
		if incoming.Progress < stored.Progress {
			d.Collision = CollisionStaleProgress
		}
		return out, d
	}
	out.Progress = incoming.Progress
	out.IsCompleted = stored.IsCompleted || incoming.IsCompleted
	if out.CompletedAt == nil {
		out.CompletedAt = incoming.CompletedAt.TimePtr()
	}
	if out.IsCompleted && out.CompletedAt == nil {
		out.CompletedAt = &now
	}
	out.UpdatedAt = now
	return out, Decision{Action: ActionUpdate}
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return isotime.Normalize(*a).Equal(isotime.Normalize(*b))
}

func floatsEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func userDiffers(in *bundle.User, stored *user.User) bool {
	return strings.TrimSpace(in.Name) != stored.Name ||
		(strings.TrimSpace(in.Email) != "" && strings.TrimSpace(in.Email) != stored.Email) ||
		intOr(in.StreakCount, stored.StreakCount) != stored.StreakCount ||
		!timesEqual(in.LastActiveDate.TimePtr(), stored.LastActiveDate)
}

func progressDiffers(in *bundle.Progress, stored *learning.Progress) bool {
	return in.StatusOrDefault() != stored.Status ||
		in.EarnedXP != stored.EarnedXP ||
		!floatsEqual(in.Score, stored.Score) ||
		!timesEqual(in.CompletedAt.TimePtr(), stored.CompletedAt)
}
