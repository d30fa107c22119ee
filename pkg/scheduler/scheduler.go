// Package scheduler runs the agent job on a fixed, randomized interval.
//
// The interval is drawn once per process from [IntervalMin, IntervalMax]
// so a fleet started together spreads out. Before the first tick the
// scheduler sleeps a random startup delay. Ticks never overlap: a tick
// that fires while the previous run is still going is skipped.
package scheduler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/daviddao/txtclock/pkg/logger"
)

// Job is one scheduled run. A non-nil error stops the scheduler and is
// returned from Run.
type Job func(ctx context.Context) error

// Options configures a Scheduler.
type Options struct {
	IntervalMin time.Duration
	IntervalMax time.Duration
	// StartupDelayMax bounds the sleep before the first tick. The delay is
	// drawn from [1s, StartupDelayMax]; zero disables it.
	StartupDelayMax time.Duration
	// Immediate runs the job once right after the startup delay instead
	// of waiting a full interval.
	Immediate bool
}

// Scheduler drives a Job with robfig/cron.
type Scheduler struct {
	job          Job
	interval     time.Duration
	startupDelay time.Duration
	immediate    bool
	log          logger.Logger

	mu    sync.Mutex
	fatal error
}

// New draws the interval and startup delay and returns a Scheduler.
func New(opts Options, job Job, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Discard()
	}
	return &Scheduler{
		job:          job,
		interval:     drawInterval(opts.IntervalMin, opts.IntervalMax, rand.Int64N),
		startupDelay: drawStartupDelay(opts.StartupDelayMax, rand.Int64N),
		immediate:    opts.Immediate,
		log:          log,
	}
}

// Interval returns the tick interval drawn for this process.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// StartupDelay returns the delay before the first tick.
func (s *Scheduler) StartupDelay() time.Duration { return s.startupDelay }

// Run blocks until ctx is done or the job returns an error. It returns
// nil on cancellation and the job's error otherwise.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("Scheduler starting",
		"interval", s.interval.String(),
		"startup-delay", s.startupDelay.String(),
	)
	if s.startupDelay > 0 {
		timer := time.NewTimer(s.startupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := cron.FuncJob(func() {
		if err := s.job(ctx); err != nil {
			s.setFatal(err)
			cancel()
		}
	})

	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id := c.Schedule(cron.Every(s.interval), run)
	c.Start()
	var first sync.WaitGroup
	if s.immediate {
		first.Add(1)
		go func() {
			defer first.Done()
			c.Entry(id).WrappedJob.Run()
		}()
	}

	<-ctx.Done()
	<-c.Stop().Done()
	first.Wait()
	s.log.Info("Scheduler stopped")

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

func (s *Scheduler) setFatal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal == nil {
		s.fatal = err
	}
}

// drawInterval picks a whole number of seconds in [min, max]. cron.Every
// rounds to seconds and enforces at least one.
func drawInterval(minD, maxD time.Duration, int64n func(int64) int64) time.Duration {
	lo := int64(minD / time.Second)
	hi := int64(maxD / time.Second)
	if lo < 1 {
		lo = 1
	}
	if hi <= lo {
		return time.Duration(lo) * time.Second
	}
	return time.Duration(lo+int64n(hi-lo+1)) * time.Second
}

// drawStartupDelay picks a whole number of seconds in [1, max].
func drawStartupDelay(maxD time.Duration, int64n func(int64) int64) time.Duration {
	hi := int64(maxD / time.Second)
	if hi < 1 {
		return maxD
	}
	return time.Duration(1+int64n(hi)) * time.Second
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(fmt.Sprintf("cron: %s", msg), append(keysAndValues, logger.Err(err))...)
}
