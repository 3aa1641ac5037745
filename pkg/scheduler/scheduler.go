package scheduler

import (
	"time"

	"FinPulse/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Job is a unit of periodic background work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler runs jobs on cron schedules.
type Scheduler struct {
	cron *cron.Cron
	log  *logger.Logger
}

// New creates a scheduler whose specs accept an optional seconds field.
func New(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		log: log.With(logger.String("component", "scheduler")),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

// AddJob registers job under schedule, e.g. "@every 30s" or "0 */5 * * * *".
// Overlapping runs of the same job are skipped.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		start := time.Now()
		if err := job.Run(); err != nil {
			s.log.Error("job failed", logger.String("job", job.Name()), logger.Error(err))
			return
		}
		s.log.Debug("job completed", logger.String("job", job.Name()), logger.Duration("took_ms", time.Since(start)))
	}))

	if _, err := s.cron.AddJob(schedule, wrapped); err != nil {
		return err
	}
	s.log.Info("job registered", logger.String("schedule", schedule), logger.String("job", job.Name()))
	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	return job.Run()
}
