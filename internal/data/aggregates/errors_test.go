package aggregates

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	domainagg "github.com/yungbote/beliefpath-sync/internal/domain/aggregates"
	"gorm.io/gorm"
)

func TestMapErrorUnknownIsInternal(t *testing.T) {
	boom := errors.New("syntax error at or near")
	err := MapError("op", boom)
	if !domainagg.IsCode(err, domainagg.CodeInternal) || !errors.Is(err, boom) {
		t.Fatalf("expected internal wrapping the cause, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_NotFound(t *testing.T) {
	err := MapError("op", gorm.ErrRecordNotFound)
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("expected not_found code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_PassthroughAggregateError(t *testing.T) {
	in := domainagg.NewError(domainagg.CodeRetryable, "op", "retry", errors.New("boom"))
	out := MapError("other", in)
	if out != in {
		t.Fatalf("expected passthrough aggregate error")
	}
}

func TestMapError_PostgresCodes(t *testing.T) {
	cases := map[string]domainagg.Code{
		"23505": domainagg.CodeConflict,
		"23503": domainagg.CodePreconditionFailed,
		"40001": domainagg.CodeRetryable,
		"40P01": domainagg.CodeRetryable,
		"55P03": domainagg.CodeRetryable,
		"42P01": domainagg.CodeInternal,
	}
	for code, want := range cases {
		err := MapError("op", fmt.Errorf("exec: %w", &pgconn.PgError{Code: code}))
		if got := domainagg.CodeOf(err); got != want {
			t.Fatalf("pg code %s: want=%s got=%s", code, want, got)
		}
	}
}

func TestMapError_SQLiteMessages(t *testing.T) {
	if err := MapError("op", errors.New("UNIQUE constraint failed: user.external_id")); !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("unique: got %q", domainagg.CodeOf(err))
	}
	if err := MapError("op", errors.New("database is locked")); !domainagg.IsCode(err, domainagg.CodeRetryable) {
		t.Fatalf("locked: got %q", domainagg.CodeOf(err))
	}
	if err := MapError("op", errors.New("ERROR: could not serialize access due to concurrent update")); !domainagg.IsCode(err, domainagg.CodeRetryable) {
		t.Fatalf("untyped serialization failure: got %q", domainagg.CodeOf(err))
	}
}

func TestMapError_ContextAndNil(t *testing.T) {
	if MapError("op", nil) != nil {
		t.Fatalf("nil should stay nil")
	}
	if err := MapError("op", context.DeadlineExceeded); !domainagg.IsCode(err, domainagg.CodeRetryable) {
		t.Fatalf("deadline: got %q", domainagg.CodeOf(err))
	}
}

func TestMapError_PassthroughWrappedAggregateError(t *testing.T) {
	in := domainagg.NewError(domainagg.CodeValidation, "op", "bad", nil)
	out := MapError("other", fmt.Errorf("ctx: %w", in))
	if !domainagg.IsCode(out, domainagg.CodeValidation) {
		t.Fatalf("expected validation code to survive wrapping, got %q", domainagg.CodeOf(out))
	}
}
