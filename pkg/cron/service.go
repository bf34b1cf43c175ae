package cron

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var parser = cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor)

// ValidateSchedule checks a five-field cron expression or a descriptor such as "@every 6h".
func ValidateSchedule(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return fmt.Errorf("schedule is empty")
	}
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// NextRun returns the first activation of expr after now.
func NextRun(expr string, now time.Time) (time.Time, error) {
	sched, err := parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(now), nil
}

// Service runs periodic maintenance jobs.
type Service struct {
	c   *cronlib.Cron
	log zerolog.Logger

	mu   sync.Mutex
	jobs map[string]cronlib.EntryID
}

// NewService creates a job service. Jobs don't run until Run is called.
func NewService(log zerolog.Logger) *Service {
	log = log.With().Str("component", "cron").Logger()
	logger := zerologAdapter{log: log}
	return &Service{
		c: cronlib.New(
			cronlib.WithParser(parser),
			cronlib.WithLogger(logger),
			cronlib.WithChain(cronlib.Recover(logger), cronlib.SkipIfStillRunning(logger)),
		),
		log:  log,
		jobs: make(map[string]cronlib.EntryID),
	}
}

// Add registers fn under name. Adding a name twice replaces the earlier job.
func (s *Service) Add(name, expr string, fn func()) error {
	if err := ValidateSchedule(expr); err != nil {
		return err
	}
	id, err := s.c.AddFunc(strings.TrimSpace(expr), func() {
		start := time.Now()
		fn()
		s.log.Debug().Str("job", name).Dur("duration", time.Since(start)).Msg("Job finished")
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	if old, ok := s.jobs[name]; ok {
		s.c.Remove(old)
	}
	s.jobs[name] = id
	s.mu.Unlock()
	s.log.Debug().Str("job", name).Str("schedule", expr).Msg("Registered job")
	return nil
}

// Len returns the number of registered jobs.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Run starts the scheduler and blocks until ctx is done, then waits for running jobs.
func (s *Service) Run(ctx context.Context) error {
	s.c.Start()
	<-ctx.Done()
	<-s.c.Stop().Done()
	return nil
}

type zerologAdapter struct {
	log zerolog.Logger
}

func (a zerologAdapter) Info(msg string, keysAndValues ...any) {
	a.log.Trace().Fields(keysAndValues).Msg(msg)
}

func (a zerologAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
