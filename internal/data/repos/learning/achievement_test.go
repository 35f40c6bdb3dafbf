package learning

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/yungbote/beliefpath-sync/internal/data/repos/testutil"
	"github.com/yungbote/beliefpath-sync/internal/platform/dbctx"
)

func TestUserAchievementRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewUserAchievementRepo(db, testutil.Logger(t))

	u := testutil.SeedUser(t, ctx, tx, "ach-"+uuid.NewString(), testutil.Ts(8, 0))
	seeded := testutil.SeedAchievement(t, ctx, tx, u.ID, "first-lesson", 0.5, testutil.Ts(9, 0))

	got, err := repo.GetByKey(dbc, u.ID, " first-lesson ")
	if err != nil {
		t.Fatalf("GetByKey: %v", err)
	}
	if got == nil || got.ID != seeded.ID {
		t.Fatalf("GetByKey: unexpected %+v", got)
	}

	for _, p := range []float64{0.2, 0.5} {
		lower := *seeded
		lower.Progress = p
		if ok, err := repo.UpdateIfGreater(dbc, &lower); err != nil || ok {
			t.Fatalf("UpdateIfGreater(%v): want false,nil got %v,%v", p, ok, err)
		}
	}
	higher := *seeded
	higher.Progress = 1
	higher.IsCompleted = true
	higher.UpdatedAt = testutil.Ts(10, 0)
	if ok, err := repo.UpdateIfGreater(dbc, &higher); err != nil || !ok {
		t.Fatalf("UpdateIfGreater(1): want true,nil got %v,%v", ok, err)
	}

	rows, err := repo.ListByUserID(dbc, u.ID)
	if err != nil {
		t.Fatalf("ListByUserID: %v", err)
	}
	if len(rows) != 1 || rows[0].Progress != 1 || !rows[0].IsCompleted {
		t.Fatalf("ListByUserID: unexpected %+v", rows)
	}
}
