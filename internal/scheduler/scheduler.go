// Package scheduler runs the recurring jobs: periodic pattern detection
// and the automatic backup cycle.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/openclinic/healthdesk/internal/exchange"
	"github.com/openclinic/healthdesk/internal/pattern"
	"github.com/openclinic/healthdesk/internal/record"
	"github.com/openclinic/healthdesk/internal/shared/config"
)

// Scheduler owns the cron runner and the two recurring jobs.
type Scheduler struct {
	cron     *cron.Cron
	detector *pattern.Detector
	exchange *exchange.Service
	store    *record.Store
	log      *zap.Logger
}

// New creates a scheduler. Jobs are registered by Start.
func New(detector *pattern.Detector, exch *exchange.Service, store *record.Store, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cron:     cron.New(),
		detector: detector,
		exchange: exch,
		store:    store,
		log:      log,
	}
}

// Start registers the jobs and launches the cron runner. The detection
// schedule comes from configuration; the backup check runs daily and
// consults the stored settings each time, so preference changes take
// effect without a restart.
func (s *Scheduler) Start(cfg config.SchedulerConfig) error {
	if _, err := s.cron.AddFunc(cfg.DetectionSchedule, s.runDetection); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@daily", s.runAutoBackup); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("scheduler started",
		zap.String("detection_schedule", cfg.DetectionSchedule))
	return nil
}

// Stop halts the runner and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) runDetection() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	alerts, err := s.detector.Run(ctx)
	if err != nil {
		s.log.Error("scheduled detection failed", zap.Error(err))
		return
	}
	s.log.Info("scheduled detection finished", zap.Int("alerts_raised", len(alerts)))
}

// runAutoBackup creates a backup when the configured interval has
// elapsed since the last one. Disabled or up-to-date means a no-op.
func (s *Scheduler) runAutoBackup() {
	settings := s.store.Settings()
	if !settings.AutoBackup {
		return
	}

	interval := time.Duration(settings.BackupInterval.Int()) * 24 * time.Hour
	if last, err := time.Parse(time.RFC3339, settings.LastBackup); err == nil {
		if time.Since(last) < interval {
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := s.exchange.CreateBackup(ctx); err != nil {
		s.log.Error("automatic backup failed", zap.Error(err))
		return
	}
	s.log.Info("automatic backup created")
}
