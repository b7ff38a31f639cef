package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/mfields/weathervane/internal/weather"
)

// Scheduler periodically re-runs full queries for configured cities so that
// interactive lookups hit the session cache instead of burning provider rate
// limits.
type Scheduler struct {
	scheduler    *gocron.Scheduler
	orchestrator *weather.Orchestrator
	cities       []string
	units        weather.Units
	interval     time.Duration
}

// New creates a new Scheduler.
func New(cities []string, units weather.Units, interval time.Duration, orchestrator *weather.Orchestrator) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler:    s,
		orchestrator: orchestrator,
		cities:       cities,
		units:        units,
		interval:     interval,
	}
}

// Start schedules the periodic warm-up job and starts the underlying
// scheduler.
func (s *Scheduler) Start() error {
	if len(s.cities) == 0 {
		log.Println("scheduler: no cities configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		log.Println("scheduler: running cache warm-up job")

		var wg sync.WaitGroup
		for _, city := range s.cities {
			city := city
			wg.Add(1)
			go func() {
				defer wg.Done()

				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				q := weather.Query{City: city, Units: s.units, Kind: weather.KindAll}
				if _, err := s.orchestrator.Perform(ctx, q); err != nil {
					log.Printf("scheduler: warm-up failed for %s: %v", city, err)
				}
			}()
		}
		wg.Wait()
		log.Println("scheduler: completed cache warm-up job")
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
