// Package scheduler runs the task set (sites × consent modes) with
// bounded parallelism against one shared browser process. Tasks are
// independent; retries rerun the whole task with a fresh browser context.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/semaphore"

	"github.com/footprintcz/footprint/internal/common"
	"github.com/footprintcz/footprint/internal/engine"
	"github.com/footprintcz/footprint/internal/models"
)

// defaultRetryBackoff is the pause between attempts of a failing task.
const defaultRetryBackoff = 2 * time.Second

// Crawler runs one task attempt. It always returns an observation, even
// on failure; the status field carries the outcome.
type Crawler interface {
	Crawl(ctx context.Context, site models.Site, mode models.ConsentMode, onProgress engine.ProgressFunc) *models.Observation
}

// Store is the persistence surface the scheduler needs.
type Store interface {
	UpsertSite(ctx context.Context, site models.Site) (int64, error)
	HasSuccessfulSession(ctx context.Context, domain string, mode models.ConsentMode) (bool, error)
	SaveObservation(ctx context.Context, obs *models.Observation) (int64, error)
}

// Display receives task lifecycle events. Implementations must be safe
// for concurrent use; events for different tasks interleave.
type Display interface {
	UpdateActive(taskKey, phase, detail string)
	RemoveActive(taskKey string)
	PrintResult(obs *models.Observation)
}

// Scheduler owns the run loop: resume filtering, admission, retries,
// persistence and pacing.
type Scheduler struct {
	cfg     *common.Config
	crawler Crawler
	store   Store
	display Display
	logger  arbor.ILogger

	retryBackoff time.Duration
}

func New(cfg *common.Config, crawler Crawler, store Store, display Display, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		crawler:      crawler,
		store:        store,
		display:      display,
		logger:       logger,
		retryBackoff: defaultRetryBackoff,
	}
}

// BuildTasks expands sites × modes in site-then-mode order. Sites are
// registered in the store up front so resume queries and session rows
// share site IDs. With resume set, tasks that already have a successful
// session are skipped; the skip count is returned.
func BuildTasks(ctx context.Context, store Store, sites []models.Site, modes []models.ConsentMode, resume bool) ([]models.Task, int, error) {
	for _, site := range sites {
		if _, err := store.UpsertSite(ctx, site); err != nil {
			return nil, 0, fmt.Errorf("failed to register site %s: %w", site.Domain, err)
		}
	}

	var tasks []models.Task
	skipped := 0
	for _, site := range sites {
		for _, mode := range modes {
			if resume {
				done, err := store.HasSuccessfulSession(ctx, site.Domain, mode)
				if err != nil {
					return nil, 0, fmt.Errorf("failed to query resume state for %s: %w", site.Domain, err)
				}
				if done {
					skipped++
					continue
				}
			}
			tasks = append(tasks, models.Task{Site: site, Mode: mode})
		}
	}
	return tasks, skipped, nil
}

// Run executes every task and blocks until all have finished. Cancelling
// ctx stops admission of new tasks; in-flight tasks run their current
// attempt to an error and are persisted where possible. A task that
// panics is logged and dropped without taking down the run.
func (s *Scheduler) Run(ctx context.Context, tasks []models.Task) {
	sem := semaphore.NewWeighted(int64(s.cfg.Crawler.Concurrency))
	var wg sync.WaitGroup

	for _, task := range tasks {
		if err := sem.Acquire(ctx, 1); err != nil {
			s.logger.Warn().Int("remaining", len(tasks)).Err(err).Msg("Run interrupted; no new tasks will start")
			break
		}

		wg.Add(1)
		common.SafeGo(s.logger, task.Key(), func() {
			defer wg.Done()
			defer sem.Release(1)

			s.runTask(ctx, task)

			// Rate limit before releasing the slot.
			s.sleep(ctx, time.Duration(s.cfg.Crawler.InterSiteDelayMs)*time.Millisecond)
		})
	}

	wg.Wait()
}

// runTask drives one task through its retry loop and persists the final
// observation. A store failure is logged and never aborts the run.
func (s *Scheduler) runTask(ctx context.Context, task models.Task) {
	key := task.Key()
	log := s.logger.WithCorrelationId(key)

	onProgress := func(phase, detail string) {
		s.display.UpdateActive(key, phase, detail)
	}

	var obs *models.Observation
	for attempt := 0; attempt <= s.cfg.Crawler.MaxRetries; attempt++ {
		if attempt == 0 {
			s.display.UpdateActive(key, "loading", "")
		} else {
			s.display.UpdateActive(key, fmt.Sprintf("retry #%d", attempt+1), "")
		}

		obs = s.crawler.Crawl(ctx, task.Site, task.Mode, onProgress)
		if obs.Status == models.StatusSuccess || attempt >= s.cfg.Crawler.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			break
		}

		log.Debug().
			Str("status", string(obs.Status)).
			Int("attempt", attempt+1).
			Msg("Task failed, retrying")
		if !s.sleep(ctx, s.retryBackoff) {
			break
		}
	}

	// Persist with a fresh context so an interrupted run still records
	// the final attempt.
	if _, err := s.store.SaveObservation(context.Background(), obs); err != nil {
		log.Error().Err(err).Msg("Failed to save crawl result")
	}

	s.display.RemoveActive(key)
	s.display.PrintResult(obs)
}

// sleep waits for d or until ctx is cancelled. Returns false on cancel.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
