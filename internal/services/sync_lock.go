package services

import (
	"context"
	"errors"
)

// ErrSyncLockBusy means another sync for the same user held the lock for
// longer than the caller was willing to wait.
var ErrSyncLockBusy = errors.New("sync already in progress for this user")

// SyncLocker serializes syncs for one user across instances. The returned
// release func must be called once the sync finished.
type SyncLocker interface {
	Lock(ctx context.Context, key string) (func(context.Context) error, error)
}

type noopSyncLocker struct{}

// NewNoopSyncLocker is used when no Redis is configured; correctness then
// rests on the transaction and the guarded writes alone.
func NewNoopSyncLocker() SyncLocker { return noopSyncLocker{} }

func (noopSyncLocker) Lock(context.Context, string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}
