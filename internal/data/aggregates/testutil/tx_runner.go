package testutil

import (
	"context"
	"sync"

	"github.com/yungbote/beliefpath-sync/internal/data/aggregates"
	"github.com/yungbote/beliefpath-sync/internal/platform/dbctx"
)

// FlakyTxRunner wraps Inner (a real runner, or a bare pass-through when nil)
// and injects failures. BeginErr fails every attempt before the body runs.
// CommitErr fails an attempt after its body succeeded, which makes Inner roll
// back; FailCommits limits that to the first n attempts (0 = every attempt).
type FlakyTxRunner struct {
	Inner       aggregates.TxRunner
	BeginErr    error
	CommitErr   error
	FailCommits int

	mu        sync.Mutex
	attempts  int
	commits   int
	rollbacks int
}

var _ aggregates.TxRunner = (*FlakyTxRunner)(nil)

func (r *FlakyTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.attempts++
	attempt := r.attempts
	r.mu.Unlock()

	if r.BeginErr != nil {
		return r.BeginErr
	}
	var inner aggregates.TxRunner = passThrough{}
	if r.Inner != nil {
		inner = r.Inner
	}
	err := inner.InTx(ctx, func(dbc dbctx.Context) error {
		if fn != nil {
			if err := fn(dbc); err != nil {
				return err
			}
		}
		if r.CommitErr != nil && (r.FailCommits == 0 || attempt <= r.FailCommits) {
			return r.CommitErr
		}
		return nil
	})

	r.mu.Lock()
	if err != nil {
		r.rollbacks++
	} else {
		r.commits++
	}
	r.mu.Unlock()
	return err
}

// Counts reports attempts started, and how many committed or rolled back.
func (r *FlakyTxRunner) Counts() (attempts, commits, rollbacks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts, r.commits, r.rollbacks
}

type passThrough struct{}

func (passThrough) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	return fn(dbctx.Context{Ctx: ctx})
}
