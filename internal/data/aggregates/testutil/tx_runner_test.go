package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/beliefpath-sync/internal/data/aggregates"
	domainagg "github.com/yungbote/beliefpath-sync/internal/domain/aggregates"
	"github.com/yungbote/beliefpath-sync/internal/platform/dbctx"
)

func TestFlakyTxRunner(t *testing.T) {
	commitErr := errors.New("could not serialize access")
	bodyErr := errors.New("boom")
	cases := []struct {
		name                        string
		runner                      *FlakyTxRunner
		body                        error
		calls                       int
		wantErrs                    []error
		attempts, commits, rollback int
	}{
		{name: "clean", runner: &FlakyTxRunner{}, calls: 1, wantErrs: []error{nil}, attempts: 1, commits: 1},
		{name: "body error", runner: &FlakyTxRunner{}, body: bodyErr, calls: 1, wantErrs: []error{bodyErr}, attempts: 1, rollback: 1},
		{name: "first commit fails", runner: &FlakyTxRunner{CommitErr: commitErr, FailCommits: 1}, calls: 2, wantErrs: []error{commitErr, nil}, attempts: 2, commits: 1, rollback: 1},
		{name: "always fails", runner: &FlakyTxRunner{CommitErr: commitErr}, calls: 3, wantErrs: []error{commitErr, commitErr, commitErr}, attempts: 3, rollback: 3},
	}
	for _, tc := range cases {
		for i := 0; i < tc.calls; i++ {
			err := tc.runner.InTx(context.Background(), func(_ dbctx.Context) error { return tc.body })
			if want := tc.wantErrs[i]; !errors.Is(err, want) {
				t.Fatalf("%s call %d: want err=%v got=%v", tc.name, i+1, want, err)
			}
		}
		attempts, commits, rollbacks := tc.runner.Counts()
		if attempts != tc.attempts || commits != tc.commits || rollbacks != tc.rollback {
			t.Fatalf("%s: attempts=%d commits=%d rollbacks=%d", tc.name, attempts, commits, rollbacks)
		}
	}
}

func TestFlakyTxRunnerBeginErrSkipsBody(t *testing.T) {
	begin := errors.New("connection refused")
	r := &FlakyTxRunner{BeginErr: begin}
	ran := false
	if err := r.InTx(context.Background(), func(_ dbctx.Context) error { ran = true; return nil }); !errors.Is(err, begin) {
		t.Fatalf("want begin error, got %v", err)
	}
	if ran {
		t.Fatalf("body must not run when begin fails")
	}
}

func TestHooksRecorderCounts(t *testing.T) {
	h := &HooksRecorder{}
	h.AttemptFailed(attempt(1, true, "conflict"))
	h.AttemptFailed(attempt(2, false, "retryable"))
	if h.Retries() != 1 || h.Conflicts() != 1 {
		t.Fatalf("retries=%d conflicts=%d", h.Retries(), h.Conflicts())
	}
}

func attempt(n int, retrying bool, code string) aggregates.AttemptEvent {
	return aggregates.AttemptEvent{Op: "test", Attempt: n, Retrying: retrying, Code: domainagg.Code(code)}
}
