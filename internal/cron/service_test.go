package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/scrapco/scrapco-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLock struct {
	acquired   bool
	acquireErr error
	releases   int
}

func (l *stubLock) Acquire(ctx context.Context) (bool, error) {
	return l.acquired, l.acquireErr
}

func (l *stubLock) Release(ctx context.Context) error {
	l.releases++
	return nil
}

func newTestCronService(t *testing.T, registry *Registry, lock Lock) *Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{Level: zerolog.Disabled}),
		Registry: registry,
		Lock:     lock,
		Interval: time.Hour,
	})
	require.NoError(t, err)
	return svc
}

func TestServiceRunCycle(t *testing.T) {
	t.Run("runs every job when the lock is held", func(t *testing.T) {
		a := &namedJob{name: "a"}
		b := &namedJob{name: "b", err: errors.New("boom")}
		c := &namedJob{name: "c"}
		lock := &stubLock{acquired: true}
		svc := newTestCronService(t, NewRegistry(a, b, c), lock)

		require.NoError(t, svc.runCycle(context.Background()))

		assert.Equal(t, 1, a.runs)
		assert.Equal(t, 1, b.runs)
		// A failing job never stops the ones behind it.
		assert.Equal(t, 1, c.runs)
		assert.Equal(t, 1, lock.releases)
	})

	t.Run("skips the cycle when another instance holds the lock", func(t *testing.T) {
		job := &namedJob{name: "a"}
		lock := &stubLock{acquired: false}
		svc := newTestCronService(t, NewRegistry(job), lock)

		require.NoError(t, svc.runCycle(context.Background()))

		assert.Zero(t, job.runs)
		assert.Zero(t, lock.releases)
	})

	t.Run("lock errors surface", func(t *testing.T) {
		lock := &stubLock{acquireErr: errors.New("redis down")}
		svc := newTestCronService(t, NewRegistry(&namedJob{name: "a"}), lock)

		assert.Error(t, svc.runCycle(context.Background()))
	})
}

func TestServiceRunStopsOnContextCancel(t *testing.T) {
	lock := &stubLock{acquired: true}
	svc := newTestCronService(t, NewRegistry(), lock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
