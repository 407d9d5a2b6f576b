package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/vrsandeep/mango-scraper/internal/config"
)

const (
	CheckSources     = "check-sources"
	ReconcileStorage = "reconcile-storage"
	Cleanup          = "cleanup"
	ResetStale       = "reset-stale"
)

// RegisterDefaults adds the built-in jobs to jm.
func RegisterDefaults(jm *JobManager) {
	jm.Register(CheckSources, "Check due sources", RunCheckSources)
	jm.Register(ReconcileStorage, "Reconcile storage usage", RunReconcileStorage)
	jm.Register(Cleanup, "Prune old logs and queue items", RunCleanup)
	jm.Register(ResetStale, "Reset stale queue items", RunResetStale)
}

// StartScheduler schedules the built-in jobs at their configured intervals.
// Ticks go through the manager so they never overlap a manual run.
func StartScheduler(app JobContext, jm *JobManager) *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	cfg := app.Config().Scheduler
	schedule(s, jm, CheckSources, cfg.CheckInterval)
	schedule(s, jm, ReconcileStorage, cfg.ReconcileInterval)
	schedule(s, jm, Cleanup, cfg.CleanupInterval)
	schedule(s, jm, ResetStale, cfg.StaleCheckInterval)

	log.Println("Starting background job scheduler...")
	s.StartAsync()
	return s
}

func schedule(s *gocron.Scheduler, jm *JobManager, jobID string, minutes int) {
	if minutes <= 0 {
		log.Printf("Interval for '%s' is 0, scheduled runs are disabled.", jobID)
		return
	}
	log.Printf("Scheduling job: '%s' to run every %d minutes.", jobID, minutes)
	_, err := s.Every(minutes).Minutes().Do(func() {
		if err := jm.RunJob(context.Background(), jobID); err != nil {
			log.Printf("Scheduled job '%s' could not start: %v", jobID, err)
		}
	})
	if err != nil {
		log.Printf("Error scheduling '%s' job: %v", jobID, err)
	}
}

func RunCheckSources(ctx context.Context, app JobContext) (string, error) {
	summary, err := app.Checker().CheckDue(ctx)
	if err != nil {
		return "", err
	}
	if summary.Disabled {
		return "Scraping is disabled.", nil
	}
	return fmt.Sprintf("Checked %d source(s), %d failed, %d chapter(s) queued.",
		summary.Checked, summary.Failed, summary.Enqueued), nil
}

func RunReconcileStorage(ctx context.Context, app JobContext) (string, error) {
	results, err := app.StorageBackend().Reconcile(ctx)
	if err != nil {
		return "", err
	}
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	return fmt.Sprintf("Reconciled %d account(s), %d failed.", len(results)-failed, failed), nil
}

func RunCleanup(ctx context.Context, app JobContext) (string, error) {
	cfg := app.Config().Retention
	now := time.Now()
	var logs, items int64
	var err error
	if cfg.LogDays > 0 {
		logs, err = app.Store().PruneCheckLogs(ctx, now.AddDate(0, 0, -cfg.LogDays))
		if err != nil {
			return "", fmt.Errorf("prune check logs: %w", err)
		}
	}
	if cfg.CompletedQueueDays > 0 {
		items, err = app.Store().CleanupCompletedQueueItems(ctx, now.AddDate(0, 0, -cfg.CompletedQueueDays))
		if err != nil {
			return "", fmt.Errorf("clean up queue: %w", err)
		}
	}
	return fmt.Sprintf("Removed %d check log(s) and %d completed item(s).", logs, items), nil
}

func RunResetStale(ctx context.Context, app JobContext) (string, error) {
	cutoff := time.Now().Add(-config.Minutes(app.Config().Queue.StaleAfter))
	n, err := app.Store().ResetStaleQueueItems(ctx, cutoff)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Returned %d stale item(s) to the queue.", n), nil
}
