package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeSweeperStore struct {
	deleted int64
	calls   int
	err     error
}

func (f *fakeSweeperStore) DeleteExpiredTokens(_ context.Context, _ time.Time) (int64, error) {
	f.calls++
	return f.deleted, f.err
}

type fakeLocker struct {
	acquired  bool
	released  int
	lockCalls int
}

func (f *fakeLocker) AcquireLock(_ context.Context, _ string, _ time.Duration) (bool, error) {
	f.lockCalls++
	return f.acquired, nil
}

func (f *fakeLocker) ReleaseLock(_ context.Context, _ string) error {
	f.released++
	return nil
}

func TestSweepDeletesUnderLock(t *testing.T) {
	store := &fakeSweeperStore{deleted: 3}
	locks := &fakeLocker{acquired: true}

	sweeper := NewTokenSweeper(store, locks, time.Hour)
	sweeper.sweep(context.Background())

	assert.Equal(t, 1, store.calls)
	assert.Equal(t, 1, locks.released)
}

func TestSweepSkipsWhenLockHeldElsewhere(t *testing.T) {
	store := &fakeSweeperStore{}
	locks := &fakeLocker{acquired: false}

	sweeper := NewTokenSweeper(store, locks, time.Hour)
	sweeper.sweep(context.Background())

	assert.Zero(t, store.calls)
	assert.Zero(t, locks.released)
}

func TestSweepReleasesLockOnError(t *testing.T) {
	store := &fakeSweeperStore{err: errors.New("connection reset")}
	locks := &fakeLocker{acquired: true}

	sweeper := NewTokenSweeper(store, locks, time.Hour)
	sweeper.sweep(context.Background())

	assert.Equal(t, 1, store.calls)
	assert.Equal(t, 1, locks.released)
}
