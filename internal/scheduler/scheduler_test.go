package scheduler

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

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (e *countingExpirer) ExpireStaleReferrals(ctx context.Context) (int64, error) {
	e.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("sweep must run with a deadline")
	}
	return 3, e.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerRunsSweep(t *testing.T) {
	exp := &countingExpirer{}
	s := New(exp, discardLogger())

	require.NoError(t, s.Start("@every 1s"))
	defer s.Stop()

	assert.Eventually(t, func() bool { return exp.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := New(&countingExpirer{}, discardLogger())
	require.Error(t, s.Start("every now and then"))
}

func TestSweepLogsFailures(t *testing.T) {
	exp := &countingExpirer{err: errors.New("db down")}
	s := New(exp, discardLogger())

	s.sweepExpired()
	assert.Equal(t, int32(1), exp.calls.Load())
}
