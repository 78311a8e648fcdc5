// Package scheduler runs the reminder sweep on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/and161185/garage-keeper/internal/model"
	"github.com/and161185/garage-keeper/internal/service"
)

// Config holds sweep scheduling parameters.
type Config struct {
	Schedule string        // cron expression, seconds field optional
	Grace    time.Duration // how far back a missed trigger may still fire
	Budget   time.Duration // wall-clock ceiling of one sweep
	Location *time.Location
}

// Scheduler triggers service.SweepService.Sweep on Config.Schedule.
// Ticks that arrive while a sweep is still running are skipped.
type Scheduler struct {
	cron    *cron.Cron
	sweeper service.SweepService
	cfg     Config
	log     *zap.Logger
	now     func() time.Time

	stopOnce sync.Once
}

// New validates cfg and registers the sweep job. Call Start to begin ticking.
func New(cfg Config, sweeper service.SweepService, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Grace < 0 {
		return nil, errors.New("scheduler: negative grace window")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	cronLog := cron.PrintfLogger(zap.NewStdLog(log.Named("cron")))
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(cfg.Location),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		sweeper: sweeper,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, func() { _, _ = s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start begins ticking and stops when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.log.Info("sweep scheduler started",
		zap.String("schedule", s.cfg.Schedule),
		zap.Duration("grace", s.cfg.Grace),
		zap.Duration("budget", s.cfg.Budget),
	)
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts ticking and waits for a running sweep to finish. Safe to call
// more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
		s.log.Info("sweep scheduler stopped")
	})
}

// RunOnce performs one sweep bounded by the configured budget.
func (s *Scheduler) RunOnce(ctx context.Context) (model.SweepResult, error) {
	if s.cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Budget)
		defer cancel()
	}

	started := time.Now()
	res, err := s.sweeper.Sweep(ctx, s.now(), s.cfg.Grace)
	fields := []zap.Field{
		zap.Int("candidates", res.Candidates),
		zap.Int("created", res.Created),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("failed", res.Failed),
		zap.Bool("truncated", res.Truncated),
		zap.Duration("took", time.Since(started)),
	}
	if err != nil {
		s.log.Error("scheduled sweep failed", append(fields, zap.Error(err))...)
		return res, err
	}
	s.log.Info("scheduled sweep done", fields...)
	return res, nil
}
