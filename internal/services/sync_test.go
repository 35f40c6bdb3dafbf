package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yungbote/beliefpath-sync/internal/data/aggregates"
	aggtest "github.com/yungbote/beliefpath-sync/internal/data/aggregates/testutil"
	"github.com/yungbote/beliefpath-sync/internal/data/repos"
	"github.com/yungbote/beliefpath-sync/internal/data/repos/testutil"
	domainagg "github.com/yungbote/beliefpath-sync/internal/domain/aggregates"
	"github.com/yungbote/beliefpath-sync/internal/domain/bundle"
	"github.com/yungbote/beliefpath-sync/internal/domain/learning"
	"github.com/yungbote/beliefpath-sync/internal/domain/user"
	"github.com/yungbote/beliefpath-sync/internal/platform/ctxutil"
	"github.com/yungbote/beliefpath-sync/internal/platform/dbctx"
)

type syncFixture struct {
	db    *gorm.DB
	deps  SyncServiceDeps
	svc   SyncService
	hooks *aggtest.HooksRecorder
	now   time.Time
}

func newSyncFixture(t *testing.T, mutate func(*SyncServiceDeps)) *syncFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	f := &syncFixture{db: db, hooks: &aggtest.HooksRecorder{}, now: at(13, 0)}
	f.deps = SyncServiceDeps{
		DB:           db,
		Log:          log,
		Users:        repos.NewUserRepo(db, log),
		Progress:     repos.NewProgressRepo(db, log),
		Achievements: repos.NewUserAchievementRepo(db, log),
		SyncRuns:     repos.NewSyncRunRepo(db, log),
		Hooks:        f.hooks,
		Now:          func() time.Time { return f.now },
	}
	if mutate != nil {
		mutate(&f.deps)
	}
	svc, err := NewSyncService(f.deps)
	if err != nil {
		t.Fatalf("NewSyncService: %v", err)
	}
	f.svc = svc
	return f
}

func newIdentity() ctxutil.Identity {
	return ctxutil.Identity{ExternalID: "apple-" + uuid.NewString(), Email: "learner@example.com", Source: ctxutil.IdentityFromToken}
}

func (f *syncFixture) sync(t *testing.T, id ctxutil.Identity, in bundle.Bundle) bundle.Bundle {
	t.Helper()
	out, err := f.svc.SyncData(context.Background(), id, in)
	if err != nil {
		t.Fatalf("SyncData: %v", err)
	}
	return out
}

func progressIn(bs, lesson string, status learning.ProgressStatus, xp int, updatedAt time.Time) bundle.Progress {
	p := bundle.Progress{BeliefSystemID: bs, Status: status, EarnedXP: xp, UpdatedAt: wire(updatedAt)}
	if lesson != "" {
		p.LessonID = &lesson
	}
	return p
}

func findProgress(t *testing.T, b bundle.Bundle, bs, lesson string) bundle.Progress {
	t.Helper()
	for _, p := range b.Progress {
		l := ""
		if p.LessonID != nil {
			l = *p.LessonID
		}
		if p.BeliefSystemID == bs && l == lesson {
			return p
		}
	}
	t.Fatalf("progress %s/%s not in response", bs, lesson)
	return bundle.Progress{}
}

func (f *syncFixture) userID(t *testing.T, id ctxutil.Identity) uuid.UUID {
	t.Helper()
	u, err := f.deps.Users.GetByExternalID(dbctx.Context{Ctx: context.Background()}, id.ExternalID)
	if err != nil || u == nil {
		t.Fatalf("load user %s: %v", id.ExternalID, err)
	}
	return u.ID
}

func (f *syncFixture) countRows(t *testing.T, model any, userID uuid.UUID) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(model).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func (f *syncFixture) countUsers(t *testing.T, id ctxutil.Identity) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&user.User{}).Where("external_id = ?", id.ExternalID).Count(&n).Error; err != nil {
		t.Fatalf("count users: %v", err)
	}
	return n
}

func assertAggregates(t *testing.T, b bundle.Bundle) {
	t.Helper()
	sum := 0
	for _, p := range b.Progress {
		sum += p.EarnedXP
	}
	if b.User == nil || b.User.TotalXP == nil || *b.User.TotalXP != sum {
		t.Fatalf("totalXP: want=%d got=%+v", sum, b.User)
	}
	if want := sum/100 + 1; *b.User.CurrentLevel != want {
		t.Fatalf("currentLevel: want=%d got=%d", want, *b.User.CurrentLevel)
	}
}

func TestSyncStaleDeviceObservesNewerState(t *testing.T) {
	f := newSyncFixture(t, nil)
	id := newIdentity()

	stale := bundle.Bundle{Progress: []bundle.Progress{progressIn("buddhism", "l1", learning.ProgressInProgress, 10, at(10, 0))}}
	out := f.sync(t, id, stale)
	p := findProgress(t, out, "buddhism", "l1")
	if p.Status != learning.ProgressInProgress || p.EarnedXP != 10 || !p.UpdatedAt.Equal(at(10, 0)) {
		t.Fatalf("device A insert: got=%+v", p)
	}
	if *out.User.TotalXP != 10 || *out.User.CurrentLevel != 1 {
		t.Fatalf("after A: xp=%d level=%d", *out.User.TotalXP, *out.User.CurrentLevel)
	}

	out = f.sync(t, id, bundle.Bundle{Progress: []bundle.Progress{progressIn("buddhism", "l1", learning.ProgressCompleted, 50, at(12, 0))}})
	p = findProgress(t, out, "buddhism", "l1")
	if p.Status != learning.ProgressCompleted || p.EarnedXP != 50 {
		t.Fatalf("device B update: got=%+v", p)
	}
	if *out.User.TotalXP != 50 {
		t.Fatalf("after B: xp=%d", *out.User.TotalXP)
	}

	out = f.sync(t, id, stale)
	p = findProgress(t, out, "buddhism", "l1")
	if p.Status != learning.ProgressCompleted || p.EarnedXP != 50 || !p.UpdatedAt.Equal(at(12, 0)) {
		t.Fatalf("device A resync should see B's row, got=%+v", p)
	}
	if n := f.countRows(t, &learning.Progress{}, f.userID(t, id)); n != 1 {
		t.Fatalf("progress rows: want=1 got=%d", n)
	}
	assertAggregates(t, out)
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newSyncFixture(t, nil)
	id := newIdentity()
	in := bundle.Bundle{
		User: &bundle.User{Name: "Ada", UpdatedAt: wire(at(9, 0))},
		Progress: []bundle.Progress{
			progressIn("stoicism", "", learning.ProgressInProgress, 20, at(10, 0)),
			progressIn("stoicism", "l1", learning.ProgressCompleted, 75, at(10, 0)),
			progressIn("taoism", "l1", learning.ProgressMastered, 120, at(11, 0)),
		},
		Achievements: []bundle.Achievement{{AchievementID: "first_lesson", Progress: 1, IsCompleted: true}},
	}

	first, err := json.Marshal(f.sync(t, id, in))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f.now = f.now.Add(time.Hour)
	second, err := json.Marshal(f.sync(t, id, in))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("second sync differs:\nfirst =%s\nsecond=%s", first, second)
	}

	userID := f.userID(t, id)
	if n := f.countRows(t, &learning.Progress{}, userID); n != 3 {
		t.Fatalf("progress rows: want=3 got=%d", n)
	}
	if n := f.countRows(t, &learning.UserAchievement{}, userID); n != 1 {
		t.Fatalf("achievement rows: want=1 got=%d", n)
	}

	var out bundle.Bundle
	if err := json.Unmarshal(second, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	assertAggregates(t, out)
	if *out.User.TotalXP != 215 || *out.User.CurrentLevel != 3 {
		t.Fatalf("aggregates: xp=%d level=%d", *out.User.TotalXP, *out.User.CurrentLevel)
	}
	if out.LastSyncDate != nil {
		t.Fatalf("lastSyncDate should be null")
	}
}

func TestSyncEqualTimestampKeepsStoredAndRecordsCollision(t *testing.T) {
	f := newSyncFixture(t, nil)
	id := newIdentity()
	f.sync(t, id, bundle.Bundle{Progress: []bundle.Progress{progressIn("stoicism", "l1", learning.ProgressInProgress, 10, at(10, 0))}})

	f.now = f.now.Add(time.Minute)
	out := f.sync(t, id, bundle.Bundle{Progress: []bundle.Progress{progressIn("stoicism", "l1", learning.ProgressCompleted, 90, at(10, 0))}})
	p := findProgress(t, out, "stoicism", "l1")
	if p.EarnedXP != 10 || p.Status != learning.ProgressInProgress {
		t.Fatalf("tie must keep stored row, got=%+v", p)
	}

	runs, err := f.deps.SyncRuns.ListByUserID(dbctx.Context{Ctx: context.Background()}, f.userID(t, id), 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("sync runs: want=2 got=%d", len(runs))
	}
	latest := runs[0]
	if latest.CollisionCount != 1 {
		t.Fatalf("collision count: want=1 got=%d", latest.CollisionCount)
	}
	var collisions []Collision
	if err := json.Unmarshal(latest.Collisions, &collisions); err != nil {
		t.Fatalf("collisions json: %v", err)
	}
	if len(collisions) != 1 || collisions[0].Entity != "progress" || collisions[0].Reason != CollisionTie || collisions[0].Key != "stoicism/l1" {
		t.Fatalf("collisions: got=%+v", collisions)
	}
	var summary SyncSummary
	if err := json.Unmarshal(latest.Summary, &summary); err != nil {
		t.Fatalf("summary json: %v", err)
	}
	if summary.Progress.Keep != 1 || summary.Progress.Insert != 0 || summary.Progress.Update != 0 {
		t.Fatalf("summary: got=%+v", summary)
	}
}

func TestSyncAchievementProgressNeverDecreases(t *testing.T) {
	f := newSyncFixture(t, nil)
	id := newIdentity()

	steps := []struct {
		progress float64
		want     float64
	}{
		{0.4, 0.4},
		{0.2, 0.4},
		{0.7, 0.7},
		{0.7, 0.7},
		{0.1, 0.7},
		{1, 1},
	}
	for i, s := range steps {
		out := f.sync(t, id, bundle.Bundle{Achievements: []bundle.Achievement{{
			AchievementID: "streak_7",
			Progress:      s.progress,
			IsCompleted:   s.progress >= 1,
			UpdatedAt:     wire(at(10+i, 0)),
		}}})
		if len(out.Achievements) != 1 {
			t.Fatalf("step %d: achievements=%d", i, len(out.Achievements))
		}
		if got := out.Achievements[0].Progress; got != s.want {
			t.Fatalf("step %d: want=%v got=%v", i, s.want, got)
		}
	}
}

func TestSyncPreservesServerOnlyRows(t *testing.T) {
	f := newSyncFixture(t, nil)
	id := newIdentity()
	first := f.sync(t, id, bundle.Bundle{
		Progress: []bundle.Progress{
			progressIn("stoicism", "l1", learning.ProgressCompleted, 30, at(10, 0)),
			progressIn("stoicism", "l2", learning.ProgressInProgress, 5, at(10, 0)),
		},
		Achievements: []bundle.Achievement{{AchievementID: "a1", Progress: 0.5}, {AchievementID: "a2", Progress: 1, IsCompleted: true}},
	})
	l2 := findProgress(t, first, "stoicism", "l2")

	out := f.sync(t, id, bundle.Bundle{
		Progress:     []bundle.Progress{progressIn("stoicism", "l1", learning.ProgressMastered, 40, at(11, 0))},
		Achievements: []bundle.Achievement{{AchievementID: "a1", Progress: 0.6}},
	})
	if len(out.Progress) != 2 || len(out.Achievements) != 2 {
		t.Fatalf("rows: progress=%d achievements=%d", len(out.Progress), len(out.Achievements))
	}
	if out.Progress[0].LessonID == nil || *out.Progress[0].LessonID != "l1" {
		t.Fatalf("incoming rows come first, got=%+v", out.Progress[0])
	}
	got := findProgress(t, out, "stoicism", "l2")
	a, _ := json.Marshal(l2)
	b, _ := json.Marshal(got)
	if string(a) != string(b) {
		t.Fatalf("server-only row changed:\nbefore=%s\nafter =%s", a, b)
	}
	if out.Achievements[1].AchievementID != "a2" || !out.Achievements[1].IsCompleted {
		t.Fatalf("server-only achievement: got=%+v", out.Achievements[1])
	}
	assertAggregates(t, out)
}

func TestSyncDuplicateKeysInOneBundle(t *testing.T) {
	f := newSyncFixture(t, nil)
	id := newIdentity()
	out := f.sync(t, id, bundle.Bundle{
		Progress: []bundle.Progress{
			progressIn("stoicism", "l1", learning.ProgressInProgress, 10, at(10, 0)),
			progressIn("stoicism", "l1", learning.ProgressCompleted, 60, at(11, 0)),
			progressIn("stoicism", "l1", learning.ProgressInProgress, 15, at(10, 30)),
			progressIn("stoicism", "", learning.ProgressInProgress, 1, at(10, 0)),
		},
	})
	if len(out.Progress) != 2 {
		t.Fatalf("one row per key: got=%d", len(out.Progress))
	}
	if p := findProgress(t, out, "stoicism", "l1"); p.EarnedXP != 60 || !p.UpdatedAt.Equal(at(11, 0)) {
		t.Fatalf("latest timestamp wins within a bundle: got=%+v", p)
	}
	if n := f.countRows(t, &learning.Progress{}, f.userID(t, id)); n != 2 {
		t.Fatalf("progress rows: want=2 got=%d", n)
	}
	assertAggregates(t, out)
}

func TestSyncUserProfileLastWriterWins(t *testing.T) {
	f := newSyncFixture(t, nil)
	id := newIdentity()

	out := f.sync(t, id, bundle.Bundle{})
	if out.User == nil || out.User.Email != id.Email || *out.User.CurrentLevel != 1 {
		t.Fatalf("first contact: got=%+v", out.User)
	}
	created := out.User.UpdatedAt

	streak := 3
	out = f.sync(t, id, bundle.Bundle{User: &bundle.User{Name: "Ada", StreakCount: &streak, UpdatedAt: wire(f.now.Add(time.Minute))}})
	if out.User.Name != "Ada" || *out.User.StreakCount != 3 {
		t.Fatalf("newer profile: got=%+v", out.User)
	}

	out = f.sync(t, id, bundle.Bundle{User: &bundle.User{Name: "Old name", UpdatedAt: created}})
	if out.User.Name != "Ada" {
		t.Fatalf("older profile must lose: got=%+v", out.User)
	}

	// XP bookkeeping must not advance updatedAt, or a later client edit
	// could lose against the server's own write.
	before := *out.User.UpdatedAt
	out = f.sync(t, id, bundle.Bundle{Progress: []bundle.Progress{progressIn("stoicism", "l1", learning.ProgressCompleted, 40, at(10, 0))}})
	if !out.User.UpdatedAt.Equal(before.Time) {
		t.Fatalf("aggregate recompute bumped updatedAt: before=%s after=%s", before, out.User.UpdatedAt)
	}
	if *out.User.TotalXP != 40 {
		t.Fatalf("totalXP: got=%d", *out.User.TotalXP)
	}
}

func TestSyncUsersAreIsolated(t *testing.T) {
	f := newSyncFixture(t, nil)
	a, b := newIdentity(), newIdentity()
	f.sync(t, a, bundle.Bundle{Progress: []bundle.Progress{progressIn("stoicism", "l1", learning.ProgressCompleted, 70, at(10, 0))}})
	out := f.sync(t, b, bundle.Bundle{})
	if len(out.Progress) != 0 || *out.User.TotalXP != 0 {
		t.Fatalf("user b sees user a's data: %+v", out)
	}
}

func TestSyncRejectsInvalidInput(t *testing.T) {
	f := newSyncFixture(t, nil)

	_, err := f.svc.SyncData(context.Background(), ctxutil.Identity{}, bundle.Bundle{})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("missing identity: want validation, got %v", err)
	}
	_, err = f.svc.SyncData(context.Background(), newIdentity(), bundle.Bundle{Progress: []bundle.Progress{{BeliefSystemID: " "}}})
	if !domainagg.IsCode(err, domainagg.CodeValidation) || !errors.Is(err, bundle.ErrInvalid) {
		t.Fatalf("blank belief system: want validation, got %v", err)
	}
}

func TestSyncRetriesSerializationFailures(t *testing.T) {
	var runner *aggtest.FlakyTxRunner
	f := newSyncFixture(t, func(d *SyncServiceDeps) {
		runner = &aggtest.FlakyTxRunner{
			Inner:       aggregates.NewGormTxRunner(d.DB, nil),
			CommitErr:   &pgconn.PgError{Code: "40001", Message: "could not serialize access"},
			FailCommits: 2,
		}
		d.Runner = runner
		d.MaxAttempts = 3
	})
	id := newIdentity()

	out := f.sync(t, id, bundle.Bundle{Progress: []bundle.Progress{progressIn("stoicism", "l1", learning.ProgressCompleted, 30, at(10, 0))}})
	if attempts, commits, rollbacks := runner.Counts(); attempts != 3 || commits != 1 || rollbacks != 2 {
		t.Fatalf("runner: attempts=%d commits=%d rollbacks=%d", attempts, commits, rollbacks)
	}
	if f.hooks.Retries() != 2 {
		t.Fatalf("retry hooks: want=2 got=%d", f.hooks.Retries())
	}
	userID := f.userID(t, id)
	if n := f.countRows(t, &learning.Progress{}, userID); n != 1 {
		t.Fatalf("rolled-back attempts must not leave rows: got=%d", n)
	}
	runs, err := f.deps.SyncRuns.ListByUserID(dbctx.Context{Ctx: context.Background()}, userID, 0)
	if err != nil || len(runs) != 1 || runs[0].Attempts != 3 {
		t.Fatalf("sync runs: err=%v runs=%d", err, len(runs))
	}
	assertAggregates(t, out)
}

func TestSyncRollsBackWhenRetriesExhausted(t *testing.T) {
	id := newIdentity()
	f := newSyncFixture(t, func(d *SyncServiceDeps) {
		d.Runner = &aggtest.FlakyTxRunner{Inner: aggregates.NewGormTxRunner(d.DB, nil), CommitErr: &pgconn.PgError{Code: "40P01"}}
		d.MaxAttempts = 2
	})

	_, err := f.svc.SyncData(context.Background(), id, bundle.Bundle{Progress: []bundle.Progress{progressIn("stoicism", "l1", learning.ProgressCompleted, 30, at(10, 0))}})
	if !domainagg.IsCode(err, domainagg.CodeRetryable) {
		t.Fatalf("want retryable, got %v", err)
	}
	if n := f.countUsers(t, id); n != 0 {
		t.Fatalf("nothing may persist: users=%d", n)
	}
}

func TestSyncDoesNotRetryPermanentFailures(t *testing.T) {
	runner := &aggtest.FlakyTxRunner{BeginErr: errors.New("connection refused")}
	f := newSyncFixture(t, func(d *SyncServiceDeps) { d.Runner = runner })

	_, err := f.svc.SyncData(context.Background(), newIdentity(), bundle.Bundle{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts, _, _ := runner.Counts(); attempts != 1 {
		t.Fatalf("attempts: want=1 got=%d", attempts)
	}
	if len(f.hooks.Writes) != 1 || f.hooks.Writes[0].Status == "success" || f.hooks.Retries() != 0 {
		t.Fatalf("hooks: writes=%+v failures=%+v", f.hooks.Writes, f.hooks.Failures)
	}
}

type busyLocker struct{ keys []string }

func (l *busyLocker) Lock(_ context.Context, key string) (func(context.Context) error, error) {
	l.keys = append(l.keys, key)
	return nil, ErrSyncLockBusy
}

func TestSyncLockBusyFailsWithoutWriting(t *testing.T) {
	locker := &busyLocker{}
	f := newSyncFixture(t, func(d *SyncServiceDeps) { d.Locker = locker })
	id := newIdentity()

	_, err := f.svc.SyncData(context.Background(), id, bundle.Bundle{})
	if !errors.Is(err, ErrSyncLockBusy) {
		t.Fatalf("want ErrSyncLockBusy, got %v", err)
	}
	if len(locker.keys) != 1 || locker.keys[0] != fmt.Sprintf("beliefpath:sync:%s", id.ExternalID) {
		t.Fatalf("lock keys: got=%v", locker.keys)
	}
	if n := f.countUsers(t, id); n != 0 {
		t.Fatalf("users: want=0 got=%d", n)
	}
}

func TestLearnerSyncContractOwnsSyncTables(t *testing.T) {
	for _, table := range []string{"user", "progress", "user_achievement", "sync_run"} {
		if !LearnerSyncContract.Owns(table) {
			t.Fatalf("contract should own %s", table)
		}
	}
}
