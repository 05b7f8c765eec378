package pkg

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Schedule fires at StartAt and then every Interval.
type Schedule struct {
	Interval time.Duration
	StartAt  time.Time
}

func (s Schedule) Next(t time.Time) time.Time {
	if t.Before(s.StartAt) {
		return s.StartAt
	}
	periods := t.Sub(s.StartAt)/s.Interval + 1
	return s.StartAt.Add(periods * s.Interval)
}

type Scheduler struct {
	cron       *cron.Cron
	entry      cron.EntryID
	pipeline   *Pipeline
	schedule   Schedule
	runOnStart bool
	startup    sync.WaitGroup
	logger     *zerolog.Logger
}

func NewScheduler(pipeline *Pipeline, schedule Schedule, logger *zerolog.Logger) (*Scheduler, error) {
	if schedule.Interval <= 0 {
		return nil, errors.New("schedule interval must be positive")
	}
	// Without a start time the first run happens as soon as the scheduler starts.
	runOnStart := schedule.StartAt.IsZero()
	if runOnStart {
		schedule.StartAt = time.Now()
	}
	cronLogger := CronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(
				cron.SkipIfStillRunning(cronLogger),
				cron.Recover(cronLogger),
			),
		),
		pipeline:   pipeline,
		schedule:   schedule,
		runOnStart: runOnStart,
		logger:     logger,
	}
	s.entry = s.cron.Schedule(schedule, cron.FuncJob(s.runJob))
	return s, nil
}

func (s *Scheduler) runJob() {
	report, err := s.pipeline.Run(context.Background())
	if err != nil {
		s.logger.Err(err).Msg("Scheduled run failed")
		return
	}
	s.logger.Info().Time("captured_at", report.CapturedAt).Time("next", s.Next()).
		Msg("Scheduled run succeeded")
}

// Next returns the time of the upcoming run.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) Start() {
	s.logger.Info().Time("start_at", s.schedule.StartAt).Dur("interval", s.schedule.Interval).
		Msg("Starting scheduler")
	s.cron.Start()
	if s.runOnStart {
		s.startup.Add(1)
		go func() {
			defer s.startup.Done()
			s.cron.Entry(s.entry).WrappedJob.Run()
		}()
	}
}

// Stop stops scheduling and waits for running jobs, the start-up run included,
// until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.startup.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CronLogger adapts zerolog to cron.Logger.
type CronLogger struct {
	logger *zerolog.Logger
}

func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Err(err).Fields(keysAndValues).Msg(msg)
}
