package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/pharmacy/internal/config"
)

const jobTimeout = 2 * time.Minute

// HistoryPurger deletes audit entries older than a cutoff.
type HistoryPurger interface {
	Purge(ctx context.Context, cutoff time.Time) (int, error)
}

// AlertSender delivers the stock alert digest.
type AlertSender interface {
	SendDigest(ctx context.Context) (int, error)
}

// LedgerExporter writes the stock ledger of a period to the spreadsheet.
type LedgerExporter interface {
	ExportStockHistory(ctx context.Context, start, end time.Time) (int, error)
}

// Jobs groups the job targets. Nil targets are not scheduled.
type Jobs struct {
	History  HistoryPurger
	Alerts   AlertSender
	Exporter LedgerExporter
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron   *cron.Cron
	jobs   Jobs
	cfg    config.Config
	logger *zap.Logger
	now    func() time.Time
}

// NewScheduler creates a new scheduler instance running in the configured timezone.
func NewScheduler(cfg config.Config, jobs Jobs, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Standard 5-field cron expressions (min, hour, dom, month, dow).
	c := cron.New(cron.WithLocation(cfg.Location()))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start registers the enabled jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler")

	if s.jobs.History != nil && s.cfg.History.RetentionDays > 0 {
		if err := s.add("history retention", s.cfg.History.CronSchedule, s.purgeHistory); err != nil {
			return err
		}
	}
	if s.jobs.Alerts != nil {
		if err := s.add("stock alerts", s.cfg.Alerts.CronSchedule, s.sendAlerts); err != nil {
			return err
		}
	}
	if s.jobs.Exporter != nil {
		if err := s.add("stock export", s.cfg.Sheets.CronSchedule, s.exportLedger); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) add(name, spec string, job func(context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		job(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.logger.Info("job scheduled", zap.String("job", name), zap.String("schedule", spec))
	return nil
}

func (s *Scheduler) purgeHistory(ctx context.Context) {
	cutoff := s.now().AddDate(0, 0, -s.cfg.History.RetentionDays)
	n, err := s.jobs.History.Purge(ctx, cutoff)
	if err != nil {
		s.logger.Error("history retention failed", zap.Error(err), zap.Int("purged", n))
		return
	}
	s.logger.Info("history retention done", zap.Int("purged", n), zap.Time("cutoff", cutoff))
}

func (s *Scheduler) sendAlerts(ctx context.Context) {
	n, err := s.jobs.Alerts.SendDigest(ctx)
	if err != nil {
		s.logger.Error("failed to send stock alerts", zap.Error(err))
		return
	}
	s.logger.Info("stock alert job done", zap.Int("alerts", n))
}

// exportLedger exports the seven days preceding the run.
func (s *Scheduler) exportLedger(ctx context.Context) {
	end := s.now()
	start := end.AddDate(0, 0, -7)
	n, err := s.jobs.Exporter.ExportStockHistory(ctx, start, end)
	if err != nil {
		s.logger.Error("failed to export stock history", zap.Error(err))
		return
	}
	s.logger.Info("stock export job done", zap.Int("rows", n))
}
