package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	name    string
	calls   atomic.Int32
	err     error
	release chan struct{}
	done    chan struct{}
}

func (j *fakeJob) Name() string { return j.name }

func (j *fakeJob) Run(ctx context.Context) error {
	j.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("missing deadline")
	}
	if j.release != nil {
		<-j.release
	}
	if j.done != nil {
		j.done <- struct{}{}
	}
	return j.err
}

func newTestScheduler() *Scheduler {
	return NewScheduler(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestScheduler_Add(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.Add("30 6 * * *", &fakeJob{name: "sync"}))

	err := s.Add("30 6 * * *", &fakeJob{name: "sync"})
	assert.ErrorContains(t, err, "already registered")

	err = s.Add("not a schedule", &fakeJob{name: "other"})
	assert.ErrorContains(t, err, "failed to schedule")
}

func TestScheduler_RunNow(t *testing.T) {
	t.Run("runs registered job", func(t *testing.T) {
		s := newTestScheduler()
		job := &fakeJob{name: "sync", done: make(chan struct{}, 1)}
		require.NoError(t, s.Add("30 6 * * *", job))

		require.NoError(t, s.RunNow("sync"))

		select {
		case <-job.done:
		case <-time.After(5 * time.Second):
			t.Fatal("job did not run")
		}
		assert.Equal(t, int32(1), job.calls.Load())
	})

	t.Run("unknown job", func(t *testing.T) {
		s := newTestScheduler()
		assert.ErrorContains(t, s.RunNow("missing"), "unknown job")
	})

	t.Run("failing job is logged, not propagated", func(t *testing.T) {
		s := newTestScheduler()
		job := &fakeJob{name: "sync", err: errors.New("boom"), done: make(chan struct{}, 1)}
		require.NoError(t, s.Add("30 6 * * *", job))

		require.NoError(t, s.RunNow("sync"))

		select {
		case <-job.done:
		case <-time.After(5 * time.Second):
			t.Fatal("job did not run")
		}
	})
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := newTestScheduler()
	job := &fakeJob{name: "sync", release: make(chan struct{})}
	require.NoError(t, s.Add("30 6 * * *", job))

	go s.run(job)
	require.Eventually(t, func() bool { return job.calls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	s.run(job) // returns immediately, first run still holds the slot
	assert.Equal(t, int32(1), job.calls.Load())

	close(job.release)
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return !s.busy["sync"]
	}, 5*time.Second, 10*time.Millisecond)
}

func TestScheduler_StartStop(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Add("@every 1h", &fakeJob{name: "sync"}))

	s.Start()
	ctx := s.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
