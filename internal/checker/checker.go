// Package checker runs discovery passes over due scrape sources and enqueues
// the chapters found above each source's watermark.
package checker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vrsandeep/mango-scraper/internal/adapters"
	"github.com/vrsandeep/mango-scraper/internal/config"
	"github.com/vrsandeep/mango-scraper/internal/lock"
	"github.com/vrsandeep/mango-scraper/internal/models"
	"github.com/vrsandeep/mango-scraper/internal/sources"
	"github.com/vrsandeep/mango-scraper/internal/store"
)

// Notifier receives events for connected admin clients.
type Notifier interface {
	BroadcastJSON(v any)
}

type Options struct {
	DiscoveryTimeout time.Duration
	LockTTL          time.Duration
	MaxAttempts      int
}

func OptionsFromConfig(cfg *config.Config) Options {
	timeout := config.Seconds(cfg.Discovery.Timeout)
	return Options{
		DiscoveryTimeout: timeout,
		LockTTL:          timeout + time.Minute,
		MaxAttempts:      cfg.Queue.MaxAttempts,
	}
}

// Result is the outcome of checking one source.
type Result struct {
	SourceID      int64              `json:"source_id"`
	Skipped       bool               `json:"skipped,omitempty"`
	Status        models.CheckStatus `json:"status,omitempty"`
	ChaptersFound int                `json:"chapters_found"`
	Enqueued      int                `json:"enqueued"`
	MaxChapter    float64            `json:"max_chapter,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// PassSummary aggregates one CheckDue run.
type PassSummary struct {
	RunID    string    `json:"run_id"`
	Disabled bool      `json:"disabled,omitempty"`
	Checked  int       `json:"checked"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	Enqueued int       `json:"enqueued"`
	Results  []*Result `json:"results"`
}

type Checker struct {
	st       *store.Store
	sources  *sources.Manager
	locker   lock.Locker
	notifier Notifier
	opts     Options
	now      func() time.Time
}

func New(st *store.Store, mgr *sources.Manager, locker lock.Locker, notifier Notifier, opts Options) *Checker {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	return &Checker{st: st, sources: mgr, locker: locker, notifier: notifier, opts: opts, now: time.Now}
}

// CheckDue checks every due source once. It does nothing while scraping is
// disabled in the settings.
func (c *Checker) CheckDue(ctx context.Context) (*PassSummary, error) {
	settings, err := c.st.GetScrapingSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load scraping settings: %w", err)
	}
	if !settings.ScrapingEnabled {
		log.Println("Checker: scraping is disabled, skipping pass")
		return &PassSummary{Disabled: true, Results: []*Result{}}, nil
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	summary := &PassSummary{RunID: runID.String(), Results: []*Result{}}

	due, err := c.sources.DueSources(ctx, c.now().UTC())
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return summary, nil
	}
	log.Printf("Checker: run %s checking %d due source(s)", summary.RunID, len(due))

	limit := settings.MaxConcurrentScrapes
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	results := make([]*Result, len(due))
	var wg sync.WaitGroup
	for i, src := range due {
		wg.Add(1)
		go func(i int, src *models.ScrapeSource) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = &Result{SourceID: src.ID, Skipped: true, Error: ctx.Err().Error()}
				return
			}
			defer func() { <-sem }()
			results[i] = c.checkSafely(ctx, src, summary.RunID)
		}(i, src)
	}
	wg.Wait()

	for _, res := range results {
		summary.Results = append(summary.Results, res)
		switch {
		case res.Skipped:
			summary.Skipped++
		case res.Status == models.CheckFailed:
			summary.Checked++
			summary.Failed++
		default:
			summary.Checked++
		}
		summary.Enqueued += res.Enqueued
	}
	log.Printf("Checker: run %s done, %d checked, %d failed, %d skipped, %d chapter(s) enqueued",
		summary.RunID, summary.Checked, summary.Failed, summary.Skipped, summary.Enqueued)
	return summary, nil
}

// checkSafely keeps one misbehaving source from taking the pass down.
func (c *Checker) checkSafely(ctx context.Context, src *models.ScrapeSource, runID string) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Checker: panic while checking source %d: %v", src.ID, r)
			res = &Result{SourceID: src.ID, Status: models.CheckFailed, Error: fmt.Sprint(r)}
		}
	}()
	res, err := c.CheckSource(ctx, src, runID)
	if err != nil {
		return &Result{SourceID: src.ID, Status: models.CheckFailed, Error: err.Error()}
	}
	return res
}

// CheckSourceByID checks a single source right away, regardless of its interval.
func (c *Checker) CheckSourceByID(ctx context.Context, id int64) (*Result, error) {
	src, err := c.sources.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	runID, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return c.CheckSource(ctx, src, runID.String())
}

// CheckSource discovers the chapters of one source and enqueues those above
// its watermark. Adapter failures are recorded in the check log and returned
// in the result, not as an error. The returned error is reserved for failures
// to reach the database or the lock.
func (c *Checker) CheckSource(ctx context.Context, src *models.ScrapeSource, runID string) (*Result, error) {
	unlock, ok, err := c.locker.TryLock(ctx, lockKey(src.ID), c.opts.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("lock source %d: %w", src.ID, err)
	}
	if !ok {
		log.Printf("Checker: source %d is already being checked, skipping", src.ID)
		return &Result{SourceID: src.ID, Skipped: true}, nil
	}
	defer unlock()

	started := c.now()
	res := &Result{SourceID: src.ID}
	outcome := models.CheckOutcome{RunID: runID, CheckedAt: started.UTC()}

	chapters, err := c.discover(ctx, src)
	if err == nil {
		var fresh []models.DiscoveredChapter
		fresh, err = c.enqueueNew(ctx, src, chapters, res)
		if err == nil && len(fresh) > 0 {
			c.notify(src, fresh, res.Enqueued)
		}
	}

	switch {
	case err != nil:
		outcome.Status = models.CheckFailed
		outcome.Err = err
		res.Error = err.Error()
		log.Printf("Checker: source %d (%s) failed: %v", src.ID, src.SiteType, err)
	case res.ChaptersFound == 0:
		outcome.Status = models.CheckNoNewChapters
	default:
		outcome.Status = models.CheckSuccess
		outcome.MaxChapter = res.MaxChapter
	}
	outcome.ChaptersFound = res.ChaptersFound
	outcome.ChaptersScraped = res.Enqueued
	outcome.Duration = c.now().Sub(started)
	res.Status = outcome.Status

	// The outcome is written even when the caller has given up, so the
	// interval restarts.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := c.sources.RecordCheck(recordCtx, src.ID, outcome); err != nil {
		return res, err
	}
	return res, nil
}

func (c *Checker) discover(ctx context.Context, src *models.ScrapeSource) ([]models.DiscoveredChapter, error) {
	adapter, err := adapters.Lookup(src.SiteType)
	if err != nil {
		return nil, err
	}
	if c.opts.DiscoveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.DiscoveryTimeout)
		defer cancel()
	}
	chapters, err := adapter.Discover(ctx, src.SourceURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("discovery timed out after %s: %w", c.opts.DiscoveryTimeout, err)
		}
		return nil, fmt.Errorf("discover: %w", err)
	}
	return chapters, nil
}

// enqueueNew enqueues every chapter above the watermark. An enqueue error
// stops the source; the watermark is then left alone so the rest is picked up
// on the next check.
func (c *Checker) enqueueNew(ctx context.Context, src *models.ScrapeSource, chapters []models.DiscoveredChapter, res *Result) ([]models.DiscoveredChapter, error) {
	var fresh []models.DiscoveredChapter
	for _, ch := range chapters {
		if ch.Number <= src.LastChapterScraped {
			continue
		}
		fresh = append(fresh, ch)
	}
	res.ChaptersFound = len(fresh)

	for _, ch := range fresh {
		_, inserted, err := c.st.EnqueueChapter(ctx, models.NewQueueItem{
			SourceID:      src.ID,
			ChapterNumber: ch.Number,
			ChapterURL:    ch.URL,
			ChapterTitle:  ch.Title,
			Priority:      src.EnqueuePriority(),
			MaxAttempts:   c.opts.MaxAttempts,
		})
		if err != nil {
			return nil, err
		}
		if inserted {
			res.Enqueued++
		}
		if ch.Number > res.MaxChapter {
			res.MaxChapter = ch.Number
		}
	}
	return fresh, nil
}

func (c *Checker) notify(src *models.ScrapeSource, fresh []models.DiscoveredChapter, enqueued int) {
	if c.notifier == nil {
		return
	}
	numbers := make([]float64, len(fresh))
	for i, ch := range fresh {
		numbers[i] = ch.Number
	}
	c.notifier.BroadcastJSON(models.Notification{
		Type:     "new_chapters",
		Title:    "New chapters found",
		Message:  fmt.Sprintf("%d new chapter(s) on %s, %d queued", len(fresh), src.SiteType, enqueued),
		SourceID: src.ID,
		MangaID:  src.MangaID,
		Chapters: numbers,
	})
}

func lockKey(sourceID int64) string {
	return "source:" + strconv.FormatInt(sourceID, 10)
}
