package aggregates

import (
	"context"
	"strings"
	"time"

	domainagg "github.com/yungbote/beliefpath-sync/internal/domain/aggregates"
	"github.com/yungbote/beliefpath-sync/internal/platform/dbctx"
	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
	"gorm.io/gorm"
)

const defaultMaxAttempts = 3

type BaseDeps struct {
	DB     *gorm.DB
	Log    *logger.Logger
	Runner TxRunner
	Hooks  Hooks
	// MaxAttempts bounds how often a whole unit is replayed after a
	// retryable failure. Values < 1 mean the default.
	MaxAttempts int
}

func (d BaseDeps) WithDefaults() BaseDeps {
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB, nil)
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.MaxAttempts < 1 {
		d.MaxAttempts = defaultMaxAttempts
	}
	return d
}

// UnitFunc is one attempt at an aggregate write. attempt starts at 1.
type UnitFunc func(dbc dbctx.Context, attempt int) error

// ExecuteWrite runs fn inside one transaction. Retryable failures (and
// unique-key conflicts, which on first contact mean a concurrent writer
// created the row first) replay the whole unit up to MaxAttempts. It
// reports how many attempts ran.
func ExecuteWrite(ctx context.Context, deps BaseDeps, op string, fn UnitFunc) (int, error) {
	start := time.Now()
	deps = deps.WithDefaults()
	op = strings.TrimSpace(op)
	if op == "" {
		op = "aggregate.write"
	}

	var (
		mapped  error
		attempt int
	)
	for attempt = 1; attempt <= deps.MaxAttempts; attempt++ {
		n := attempt
		err := deps.Runner.InTx(ctx, func(dbc dbctx.Context) error {
			return fn(dbc, n)
		})
		mapped = MapError(op, err)
		if mapped == nil {
			break
		}
		retrying := shouldRetry(ctx, mapped) && attempt < deps.MaxAttempts
		deps.Hooks.AttemptFailed(AttemptEvent{Op: op, Attempt: attempt, Code: domainagg.CodeOf(mapped), Retrying: retrying})
		if !retrying {
			break
		}
		deps.Log.Warn("aggregate write retry", "op", op, "attempt", attempt, "error", mapped)
	}

	deps.Hooks.Finished(WriteEvent{Op: op, Attempts: attempt, Status: aggregateErrorStatus(mapped), Duration: time.Since(start)})
	return attempt, mapped
}

func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return domainagg.CodeOf(err).Transient()
}

func aggregateErrorStatus(err error) string {
	if err == nil {
		return "success"
	}
	if code := domainagg.CodeOf(err); code != "" {
		return string(code)
	}
	return string(classify(err))
}
