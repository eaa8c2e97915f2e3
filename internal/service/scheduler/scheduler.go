package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"SessionScope/internal/usecase"
	applogger "SessionScope/pkg/logger"
	"SessionScope/pkg/queue"
	"SessionScope/pkg/util"
)

// Scheduler fires report builds on a cron spec. Each tick covers the previous
// UTC day for every configured symbol. Builds go through the job queue when
// one is wired so cron and HTTP enqueues share the same retry path; without a
// queue the job runs inline.
type Scheduler struct {
	cron *cron.Cron
	q    queue.QueueService
	job  *usecase.ReportJob
	l    *applogger.Logger

	spec     string
	symbols  []string
	sessions []string
	interval string
}

// New creates a scheduler for the given cron spec (with seconds field).
func New(spec string, symbols, sessions []string, interval string, q queue.QueueService, job *usecase.ReportJob, l *applogger.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		q:        q,
		job:      job,
		l:        l,
		spec:     spec,
		symbols:  symbols,
		sessions: sessions,
		interval: interval,
	}
}

// Register adds the report task to the cron table. A bad spec fails here, at
// startup, not at first fire.
func (s *Scheduler) Register() error {
	if _, err := s.cron.AddFunc(s.spec, s.buildPreviousDay); err != nil {
		return fmt.Errorf("register report task: %w", err)
	}
	return nil
}

// Start begins firing registered tasks.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.l.Info("scheduler started",
		applogger.String("cron", s.spec),
		applogger.Strings("symbols", s.symbols),
	)
}

// Stop halts the cron table and waits for a running task, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.l.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.l.Warn("timeout waiting for scheduled task", applogger.Error(ctx.Err()))
		return ctx.Err()
	}
}

// RunNow fires the report task immediately, outside the cron table.
func (s *Scheduler) RunNow() { s.buildPreviousDay() }

func (s *Scheduler) buildPreviousDay() {
	date := util.DayFloor(time.Now().UTC()).AddDate(0, 0, -1).Format(util.DateLayout)

	for _, symbol := range s.symbols {
		err := s.dispatch(usecase.ReportJobPayload{
			Symbol:   symbol,
			Sessions: s.sessions,
			From:     date,
			To:       date,
			Interval: s.interval,
			Publish:  true,
		})
		if err != nil {
			s.l.Error("scheduled report failed",
				applogger.String("symbol", symbol),
				applogger.String("date", date),
				applogger.Error(err),
			)
			continue
		}
		s.l.Info("scheduled report dispatched",
			applogger.String("symbol", symbol),
			applogger.String("date", date),
		)
	}
}

func (s *Scheduler) dispatch(p usecase.ReportJobPayload) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if s.q != nil {
		return s.q.PublishMessage(ctx, usecase.ReportJobType, p)
	}
	return s.job.Handle(ctx, p)
}
