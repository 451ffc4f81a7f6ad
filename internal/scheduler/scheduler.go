// Package scheduler runs the periodic buffer sweep. Threshold flushes cover
// busy stations; the sweep covers quiet ones, so a trickle of readings
// below the threshold still reaches durable storage.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/fieldline/geostack/internal/logging"
	"github.com/fieldline/geostack/internal/service"
)

// Scheduler periodically flushes every non-empty station buffer.
type Scheduler struct {
	scheduler *gocron.Scheduler
	svc       *service.Service
	interval  time.Duration
	log       *slog.Logger
}

// New creates a scheduler sweeping at the given interval.
func New(interval time.Duration, svc *service.Service) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		svc:       svc,
		interval:  interval,
		log:       logging.Component("scheduler"),
	}
}

// Start schedules the sweep job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	interval := s.interval
	if interval <= 0 {
		interval = time.Minute
	}

	_, err := s.scheduler.Every(interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s.svc.SweepBuffers(ctx)
		s.log.Debug("sweep completed")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
