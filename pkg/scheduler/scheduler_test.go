package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/txtclock/pkg/logger"
)

func lowest(int64) int64    { return 0 }
func highest(n int64) int64 { return n - 1 }

func TestDrawInterval(t *testing.T) {
	assert.Equal(t, 50*time.Second, drawInterval(50*time.Second, 60*time.Second, lowest))
	assert.Equal(t, 60*time.Second, drawInterval(50*time.Second, 60*time.Second, highest))
	assert.Equal(t, 30*time.Second, drawInterval(30*time.Second, 30*time.Second, highest), "fixed interval")
	assert.Equal(t, time.Second, drawInterval(0, 0, highest), "at least one second")

	for i := 0; i < 100; i++ {
		d := New(Options{IntervalMin: 50 * time.Second, IntervalMax: 60 * time.Second}, nil, nil).Interval()
		assert.GreaterOrEqual(t, d, 50*time.Second)
		assert.LessOrEqual(t, d, 60*time.Second)
	}
}

func TestDrawStartupDelay(t *testing.T) {
	assert.Equal(t, time.Second, drawStartupDelay(60*time.Second, lowest))
	assert.Equal(t, 60*time.Second, drawStartupDelay(60*time.Second, highest))
	assert.Equal(t, time.Duration(0), drawStartupDelay(0, highest), "zero disables the delay")
}

func newTestScheduler(job Job, delay time.Duration, immediate bool) *Scheduler {
	return &Scheduler{
		job:          job,
		interval:     time.Second,
		startupDelay: delay,
		immediate:    immediate,
		log:          logger.Discard(),
	}
}

func TestRun_CancelDuringStartupDelay(t *testing.T) {
	var calls atomic.Int32
	s := newTestScheduler(func(context.Context) error { calls.Add(1); return nil }, time.Hour, true)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Zero(t, calls.Load())
}

func TestRun_FatalJobStopsScheduler(t *testing.T) {
	boom := errors.New("zone unresolved")
	s := newTestScheduler(func(context.Context) error { return boom }, 0, true)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, boom)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop on a fatal job error")
	}
}

func TestRun_Ticks(t *testing.T) {
	ticked := make(chan struct{}, 8)
	s := newTestScheduler(func(context.Context) error {
		ticked <- struct{}{}
		return nil
	}, 0, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-ticked:
		case <-time.After(5 * time.Second):
			t.Fatalf("tick %d never fired", i+1)
		}
	}
	cancel()
	require.NoError(t, <-done)
}

func TestRun_SkipsOverlappingTicks(t *testing.T) {
	var running, overlaps atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 8)
	s := newTestScheduler(func(context.Context) error {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		defer running.Add(-1)
		started <- struct{}{}
		<-release
		return nil
	}, 0, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-started
	// Let at least two ticks fire while the first run is blocked.
	time.Sleep(2500 * time.Millisecond)
	cancel()
	close(release)
	require.NoError(t, <-done)
	assert.Zero(t, overlaps.Load())
}
