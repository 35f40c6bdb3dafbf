package services

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/beliefpath-sync/internal/domain/bundle"
	"github.com/yungbote/beliefpath-sync/internal/domain/learning"
	"github.com/yungbote/beliefpath-sync/internal/domain/user"
	"github.com/yungbote/beliefpath-sync/internal/platform/isotime"
)

func at(h, m int) time.Time { return time.Date(2024, 1, 1, h, m, 0, 0, time.UTC) }

func wire(t time.Time) *isotime.Time {
	v := isotime.New(t)
	return &v
}

func intp(v int) *int { return &v }

func storedProgress(updatedAt time.Time, xp int) *learning.Progress {
	lesson := "l1"
	return &learning.Progress{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		BeliefSystemID: "stoicism",
		LessonID:       &lesson,
		Status:         learning.ProgressInProgress,
		EarnedXP:       xp,
		CreatedAt:      at(8, 0),
		UpdatedAt:      updatedAt,
	}
}

func TestReconcileProgressLastWriterWins(t *testing.T) {
	now := at(13, 0)
	lesson := "l1"
	cases := []struct {
		name      string
		incoming  time.Time
		xp        int
		action    Action
		collision CollisionReason
		wantXP    int
	}{
		{"newer wins", at(12, 0), 50, ActionUpdate, "", 50},
		{"older loses", at(9, 0), 50, ActionKeep, "", 10},
		{"tie keeps stored and flags", at(10, 0), 50, ActionKeep, CollisionTie, 10},
		{"tie with same payload is quiet", at(10, 0), 10, ActionKeep, "", 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stored := storedProgress(at(10, 0), 10)
			in := &bundle.Progress{
				BeliefSystemID: "stoicism",
				LessonID:       &lesson,
				Status:         learning.ProgressInProgress,
				EarnedXP:       tc.xp,
				UpdatedAt:      wire(tc.incoming),
			}
			got, d := ReconcileProgress(in, stored, stored.UserID, now)
			if d.Action != tc.action || d.Collision != tc.collision {
				t.Fatalf("decision: want=%s/%q got=%s/%q", tc.action, tc.collision, d.Action, d.Collision)
			}
			if got.EarnedXP != tc.wantXP {
				t.Fatalf("earnedXP: want=%d got=%d", tc.wantXP, got.EarnedXP)
			}
			if got.ID != stored.ID || got.CreatedAt != stored.CreatedAt {
				t.Fatalf("identity fields must survive a merge")
			}
			if tc.action == ActionUpdate && !got.UpdatedAt.Equal(tc.incoming) {
				t.Fatalf("updatedAt: want=%s got=%s", tc.incoming, got.UpdatedAt)
			}
		})
	}
}

func TestReconcileProgressMissingTimestampNeverOverwrites(t *testing.T) {
	stored := storedProgress(at(10, 0), 10)
	lesson := "l1"
	_, d := ReconcileProgress(&bundle.Progress{BeliefSystemID: "stoicism", LessonID: &lesson, EarnedXP: 99}, stored, stored.UserID, at(13, 0))
	if d.Action != ActionKeep {
		t.Fatalf("decision: want=keep got=%s", d.Action)
	}
}

func TestReconcileProgressInsert(t *testing.T) {
	userID := uuid.New()
	now := at(13, 0)

	got, d := ReconcileProgress(&bundle.Progress{BeliefSystemID: " stoicism ", EarnedXP: 5, UpdatedAt: wire(at(10, 0))}, nil, userID, now)
	if d.Action != ActionInsert {
		t.Fatalf("decision: want=insert got=%s", d.Action)
	}
	if got.UserID != userID || got.BeliefSystemID != "stoicism" || got.LessonID != nil {
		t.Fatalf("key fields: got=%+v", got)
	}
	if got.Status != learning.ProgressNotStarted {
		t.Fatalf("status default: got=%s", got.Status)
	}
	if !got.UpdatedAt.Equal(at(10, 0)) || !got.CreatedAt.Equal(now) {
		t.Fatalf("timestamps: created=%s updated=%s", got.CreatedAt, got.UpdatedAt)
	}

	got, _ = ReconcileProgress(&bundle.Progress{BeliefSystemID: "stoicism"}, nil, userID, now)
	if !got.UpdatedAt.Equal(now) {
		t.Fatalf("missing updatedAt should default to now, got=%s", got.UpdatedAt)
	}
}

func TestReconcileAchievementRatchets(t *testing.T) {
	now := at(13, 0)
	done := at(11, 0)
	base := func() *learning.UserAchievement {
		return &learning.UserAchievement{
			ID:            uuid.New(),
			UserID:        uuid.New(),
			AchievementID: "streak_7",
			Progress:      0.5,
			CreatedAt:     at(8, 0),
			UpdatedAt:     at(9, 0),
		}
	}

	// Lower progress with a newer timestamp still loses.
	stored := base()
	got, d := ReconcileAchievement(&bundle.Achievement{AchievementID: "streak_7", Progress: 0.3, UpdatedAt: wire(at(12, 0))}, stored, stored.UserID, now)
	if d.Action != ActionKeep || d.Collision != CollisionStaleProgress || got.Progress != 0.5 {
		t.Fatalf("regression: decision=%+v progress=%v", d, got.Progress)
	}

	// Equal progress is a quiet keep.
	_, d = ReconcileAchievement(&bundle.Achievement{AchievementID: "streak_7", Progress: 0.5}, stored, stored.UserID, now)
	if d.Action != ActionKeep || d.Collision != "" {
		t.Fatalf("equal: decision=%+v", d)
	}

	// Higher progress wins even with an older timestamp.
	got, d = ReconcileAchievement(&bundle.Achievement{AchievementID: "streak_7", Progress: 1, IsCompleted: true, UpdatedAt: wire(at(7, 0))}, stored, stored.UserID, now)
	if d.Action != ActionUpdate || got.Progress != 1 || !got.IsCompleted {
		t.Fatalf("advance: decision=%+v got=%+v", d, got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(now) {
		t.Fatalf("completedAt should default to now, got=%v", got.CompletedAt)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Fatalf("updatedAt: want=%s got=%s", now, got.UpdatedAt)
	}

	// Completion never reverts and the first completedAt sticks.
	stored = base()
	stored.IsCompleted = true
	stored.CompletedAt = &done
	got, _ = ReconcileAchievement(&bundle.Achievement{AchievementID: "streak_7", Progress: 0.9, IsCompleted: false, CompletedAt: wire(at(12, 30))}, stored, stored.UserID, now)
	if !got.IsCompleted || got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
		t.Fatalf("completion ratchet: got=%+v", got)
	}
}

func TestReconcileUser(t *testing.T) {
	now := at(13, 0)
	seed := UserSeed{ExternalID: "apple-1", Email: "token@example.com"}

	created, d := ReconcileUser(nil, nil, seed, now)
	if d.Action != ActionInsert || created.ExternalID != "apple-1" || created.Email != "token@example.com" || created.CurrentLevel != 1 {
		t.Fatalf("insert without profile: d=%+v u=%+v", d, created)
	}

	stored := &user.User{
		ID:           uuid.New(),
		ExternalID:   "apple-1",
		Name:         "Ada",
		Email:        "ada@example.com",
		TotalXP:      250,
		CurrentLevel: 3,
		StreakCount:  4,
		CreatedAt:    at(8, 0),
		UpdatedAt:    at(10, 0),
	}

	got, d := ReconcileUser(&bundle.User{Name: "Ada L.", Email: "", StreakCount: intp(5), UpdatedAt: wire(at(11, 0))}, stored, seed, now)
	if d.Action != ActionUpdate {
		t.Fatalf("newer profile: want=update got=%s", d.Action)
	}
	if got.Name != "Ada L." || got.Email != "ada@example.com" || got.StreakCount != 5 || got.TotalXP != 250 {
		t.Fatalf("merged: got=%+v", got)
	}

	_, d = ReconcileUser(&bundle.User{Name: "Someone else", UpdatedAt: wire(at(10, 0))}, stored, seed, now)
	if d.Action != ActionKeep || d.Collision != CollisionTie {
		t.Fatalf("tie: got=%+v", d)
	}

	// Client-reported XP does not make a tie a collision; aggregates are server-owned.
	_, d = ReconcileUser(&bundle.User{Name: "Ada", Email: "ada@example.com", TotalXP: intp(9999), StreakCount: intp(4), UpdatedAt: wire(at(10, 0))}, stored, seed, now)
	if d.Collision != "" {
		t.Fatalf("xp-only difference: got=%+v", d)
	}

	_, d = ReconcileUser(nil, stored, seed, now)
	if d.Action != ActionKeep {
		t.Fatalf("omitted profile: want=keep got=%s", d.Action)
	}
}

func TestDecisionChanged(t *testing.T) {
	for a, want := range map[Action]bool{ActionInsert: true, ActionUpdate: true, ActionKeep: false} {
		if got := (Decision{Action: a}).Changed(); got != want {
			t.Fatalf("%s: want=%v got=%v", a, want, got)
		}
	}
}
