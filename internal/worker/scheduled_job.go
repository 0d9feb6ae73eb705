package worker

import (
	"context"
	"log"
	"time"
)

// JobScheduler fires its jobs into the pool on a fixed interval. The
// assessment cycle is its only tenant today; jobs are expected to handle
// their own overlap protection.
type JobScheduler struct {
	Name     string
	Interval time.Duration
	Jobs     []Job
	Pool     *WorkingPool
}

func NewJobScheduler(name string, interval time.Duration, pool *WorkingPool) *JobScheduler {
	return &JobScheduler{
		Name:     name,
		Interval: interval,
		Jobs:     make([]Job, 0),
		Pool:     pool,
	}
}

func (s *JobScheduler) AddJob(job Job) {
	s.Jobs = append(s.Jobs, job)
}

func (s *JobScheduler) Run(ctx context.Context) {
	log.Printf("[Scheduler %s] Running every %v\n", s.Name, s.Interval)
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			log.Printf("[Scheduler %s] Ticker fired. Submitting %d jobs.\n", s.Name, len(s.Jobs))
			for _, job := range s.Jobs {
				if err := s.Pool.SubmitJob(ctx, job); err != nil {
					log.Printf("[Scheduler %s] Failed to submit job: %s\n", s.Name, err)
				}
			}
		case <-ctx.Done():
			log.Printf("[Scheduler %s] Shutting down.\n", s.Name)
			return
		}
	}
}
