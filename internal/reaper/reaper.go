// Package reaper aborts import jobs whose progress stopped, so no job stays
// in processing after its request died.
package reaper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// JobAborter marks stale jobs aborted.
type JobAborter interface {
	AbortStaleJobs(ctx context.Context, before time.Time) (int64, error)
}

// Reaper sweeps jobs that have not reported progress within StaleAfter.
type Reaper struct {
	jobs       JobAborter
	staleAfter time.Duration
	now        func() time.Time
}

// New creates a Reaper. A non-positive staleAfter defaults to 30 minutes.
func New(jobs JobAborter, staleAfter time.Duration) *Reaper {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &Reaper{jobs: jobs, staleAfter: staleAfter, now: time.Now}
}

// Sweep aborts every stale job once and returns how many were aborted.
func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	before := r.now().Add(-r.staleAfter)
	n, err := r.jobs.AbortStaleJobs(ctx, before)
	if err != nil {
		return 0, eris.Wrap(err, "reaper: abort stale jobs")
	}
	if n > 0 {
		zap.L().Warn("reaper: aborted stale jobs",
			zap.Int64("count", n),
			zap.Time("before", before),
		)
	}
	return n, nil
}

// Scheduler runs Sweep on a cron schedule. A tick that fires while the
// previous sweep still runs is skipped.
type Scheduler struct {
	cron   *cron.Cron
	reaper *Reaper
	ctx    context.Context
}

// NewScheduler parses schedule (five fields or a descriptor such as "@every 5m").
func NewScheduler(r *Reaper, schedule string) (*Scheduler, error) {
	logger := cronLogger{zap.L().Named("reaper").Sugar()}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		reaper: r,
		ctx:    context.Background(),
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, eris.Wrapf(err, "reaper: schedule %q", schedule)
	}
	return s, nil
}

// Start begins the schedule. Sweeps run with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	zap.L().Info("reaper: scheduled", zap.Duration("stale_after", s.reaper.staleAfter))
}

// Stop halts the schedule and waits for a running sweep.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) tick() {
	if _, err := s.reaper.Sweep(s.ctx); err != nil {
		zap.L().Error("reaper: sweep failed", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
