package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Reindexer refreshes the search index from the primary store.
type Reindexer interface {
	ReindexAllFromPG(ctx context.Context)
}

// Scheduler runs periodic maintenance jobs.
type Scheduler struct {
	scheduler gocron.Scheduler
	runner    *Runner
	reindexer Reindexer
}

func NewScheduler(runner *Runner, reindexer Reindexer) (*Scheduler, error) {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, runner: runner, reindexer: reindexer}, nil
}

// Start registers the periodic jobs and begins running them.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(func() {
			s.runner.CleanupDanglingVotes(ctx)
		}),
		gocron.WithName("cleanup-dangling-votes"),
	)
	if err != nil {
		return fmt.Errorf("register vote cleanup job: %w", err)
	}

	if s.reindexer != nil {
		_, err = s.scheduler.NewJob(
			gocron.DurationJob(6*time.Hour),
			gocron.NewTask(func() {
				s.reindexer.ReindexAllFromPG(ctx)
			}),
			gocron.WithName("search-reindex"),
		)
		if err != nil {
			return fmt.Errorf("register reindex job: %w", err)
		}
	}

	s.scheduler.Start()
	log.Printf("jobs: scheduler started with %d jobs", len(s.scheduler.Jobs()))
	return nil
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.scheduler.Shutdown()
}
