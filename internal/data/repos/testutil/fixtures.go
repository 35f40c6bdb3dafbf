package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/beliefpath-sync/internal/domain/learning"
	"github.com/yungbote/beliefpath-sync/internal/domain/user"
)

// Ts builds a UTC timestamp on 2024-01-01 at the given hour and minute.
func Ts(hour, minute int) time.Time {
	return time.Date(2024, 1, 1, hour, minute, 0, 0, time.UTC)
}

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, externalID string, updatedAt time.Time) *user.User {
	tb.Helper()
	u := &user.User{
		ID:           uuid.New(),
		ExternalID:   externalID,
		Name:         "Seed",
		Email:        externalID + "@example.com",
		CurrentLevel: 1,
		CreatedAt:    updatedAt,
		UpdatedAt:    updatedAt,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedProgress(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, beliefSystemID string, lessonID *string, earnedXP int, updatedAt time.Time) *learning.Progress {
	tb.Helper()
	p := &learning.Progress{
		ID:             uuid.New(),
		UserID:         userID,
		BeliefSystemID: beliefSystemID,
		LessonID:       lessonID,
		Status:         learning.ProgressInProgress,
		EarnedXP:       earnedXP,
		CreatedAt:      updatedAt,
		UpdatedAt:      updatedAt,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed progress: %v", err)
	}
	return p
}

func SeedAchievement(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, achievementID string, progress float64, updatedAt time.Time) *learning.UserAchievement {
	tb.Helper()
	a := &learning.UserAchievement{
		ID:            uuid.New(),
		UserID:        userID,
		AchievementID: achievementID,
		Progress:      progress,
		IsCompleted:   progress >= 1,
		CreatedAt:     updatedAt,
		UpdatedAt:     updatedAt,
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed achievement: %v", err)
	}
	return a
}

func StrPtr(s string) *string { return &s }
