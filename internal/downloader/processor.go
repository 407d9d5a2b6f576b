// Package downloader drains the scraping queue: it claims items, fetches and
// normalizes their pages, stores them and finalizes the chapter.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/vrsandeep/mango-scraper/internal/config"
	"github.com/vrsandeep/mango-scraper/internal/fetcher"
	"github.com/vrsandeep/mango-scraper/internal/imaging"
	"github.com/vrsandeep/mango-scraper/internal/ingest"
	"github.com/vrsandeep/mango-scraper/internal/models"
	"github.com/vrsandeep/mango-scraper/internal/storage"
	"github.com/vrsandeep/mango-scraper/internal/store"
)

var ErrNoPages = errors.New("chapter has no pages")

// ImageFetcher downloads one page image.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) (*fetcher.Image, error)
}

// ImageStore persists one normalized page.
type ImageStore interface {
	Store(ctx context.Context, data []byte, t storage.Target) (*storage.StoredImage, error)
}

// Notifier receives progress updates for connected admin clients.
type Notifier interface {
	BroadcastJSON(v any)
}

type Options struct {
	Workers         int
	PollInterval    time.Duration
	RetryBackoff    time.Duration
	PageConcurrency int
	PageRetries     int
	PageRetryDelay  time.Duration
	Imaging         imaging.Options
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Workers:         cfg.Queue.Workers,
		PollInterval:    config.Seconds(cfg.Queue.PollInterval),
		RetryBackoff:    config.Seconds(cfg.Queue.RetryBackoff),
		PageConcurrency: cfg.Queue.PageConcurrency,
		PageRetries:     cfg.Queue.PageRetries,
		PageRetryDelay:  config.Seconds(cfg.Queue.PageRetryDelay),
		Imaging:         imaging.OptionsFromConfig(cfg),
	}
}

type Processor struct {
	st       *store.Store
	images   ImageFetcher
	storage  ImageStore
	notifier Notifier
	opts     Options
	now      func() time.Time

	paused atomic.Bool
	once   sync.Once
	wg     sync.WaitGroup
}

func NewProcessor(st *store.Store, images ImageFetcher, storage ImageStore, notifier Notifier, opts Options) *Processor {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.PageConcurrency <= 0 {
		opts.PageConcurrency = 1
	}
	if opts.PageRetries <= 0 {
		opts.PageRetries = 1
	}
	return &Processor{st: st, images: images, storage: storage, notifier: notifier, opts: opts, now: time.Now}
}

// Start launches the workers. They stop when ctx is cancelled; an item being
// processed at that moment stays claimed until the stale reset returns it.
func (p *Processor) Start(ctx context.Context) {
	p.once.Do(func() {
		log.Printf("Downloader: starting %d worker(s)", p.opts.Workers)
		for i := 1; i <= p.opts.Workers; i++ {
			p.wg.Add(1)
			go p.workerLoop(ctx, i)
		}
	})
}

// Wait blocks until every worker has returned.
func (p *Processor) Wait() {
	p.wg.Wait()
}

func (p *Processor) Pause() {
	p.paused.Store(true)
	log.Println("Downloader: queue paused")
}

func (p *Processor) Resume() {
	p.paused.Store(false)
	log.Println("Downloader: queue resumed")
}

func (p *Processor) IsPaused() bool {
	return p.paused.Load()
}

func (p *Processor) workerLoop(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		if p.IsPaused() {
			if !sleepWithContext(ctx, p.opts.PollInterval) {
				return
			}
			continue
		}

		worked, err := p.ProcessNext(ctx)
		if err != nil {
			log.Printf("Downloader: worker %d: %v", id, err)
		}
		if !worked {
			if !sleepWithContext(ctx, p.opts.PollInterval) {
				return
			}
			continue
		}

		settings, err := p.st.GetScrapingSettings(ctx)
		if err == nil && settings.ScrapingDelay > 0 {
			if !sleepWithContext(ctx, config.Seconds(settings.ScrapingDelay)) {
				return
			}
		}
	}
}

// ProcessNext claims the next eligible item and processes it. It reports
// false when the queue had nothing to claim.
func (p *Processor) ProcessNext(ctx context.Context) (bool, error) {
	item, err := p.st.ClaimNextQueueItem(ctx, p.now())
	if err != nil {
		return false, fmt.Errorf("claim next queue item: %w", err)
	}
	if item == nil {
		return false, nil
	}
	return true, p.processSafely(ctx, item)
}

// processSafely turns a panic while processing into a failed attempt.
func (p *Processor) processSafely(ctx context.Context, item *models.QueueItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = p.fail(ctx, item, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := p.ProcessItem(ctx, item); err != nil {
		return p.fail(ctx, item, err)
	}
	return nil
}

func (p *Processor) fail(ctx context.Context, item *models.QueueItem, cause error) error {
	if ctx.Err() != nil {
		log.Printf("Downloader: item %d interrupted by shutdown, leaving it for the stale reset", item.ID)
		return cause
	}
	updated, err := p.st.FailQueueItem(context.WithoutCancel(ctx), item.ID, truncateReason(cause.Error()), p.opts.RetryBackoff, p.now())
	if err != nil {
		return fmt.Errorf("item %d failed (%v); recording the failure: %w", item.ID, cause, err)
	}
	status := string(updated.Status)
	if updated.Status == models.QueuePending {
		status = "retrying"
	}
	p.progress(item.ID, fmt.Sprintf("Chapter %v failed: %v", item.ChapterNumber, cause), status, 0, updated.Status == models.QueueFailed)
	return fmt.Errorf("item %d (attempt %d/%d): %w", item.ID, updated.Attempts, updated.MaxAttempts, cause)
}

// ProcessItem downloads and finalizes one claimed item. It does not record
// failures; the caller does.
func (p *Processor) ProcessItem(ctx context.Context, item *models.QueueItem) error {
	src, err := p.st.GetSource(ctx, item.SourceID)
	if err != nil {
		return err
	}

	existing, err := p.st.FindFinalizedChapter(ctx, src.MangaID, item.ChapterNumber)
	if err != nil {
		return err
	}
	if existing != nil {
		log.Printf("Downloader: chapter %v of manga %d already exists, completing item %d", item.ChapterNumber, src.MangaID, item.ID)
		if err := p.st.CompleteQueueItem(ctx, item.ID, &existing.ID); err != nil {
			return err
		}
		p.progress(item.ID, "Chapter already present", string(models.QueueCompleted), 100, true)
		return nil
	}

	chapterID, err := p.st.EnsureChapter(ctx, src.MangaID, item.ChapterNumber, item.ChapterTitle, !src.AutoPublish, item.ID)
	if err != nil {
		return err
	}

	loader, err := p.loaderFor(src, item)
	if err != nil {
		return err
	}
	refs, err := loader.pageRefs(ctx)
	if err != nil {
		return fmt.Errorf("list pages: %w", err)
	}
	if len(refs) == 0 {
		return ErrNoPages
	}

	staged, err := p.st.GetStagedPages(ctx, item.ID)
	if err != nil {
		return err
	}
	settings, err := p.st.GetScrapingSettings(ctx)
	if err != nil {
		return err
	}
	imgOpts := p.opts.Imaging
	imgOpts.CheckQuality = src.QualityCheck && settings.QualityCheckEnabled

	job := &chapterJob{
		item:      item,
		mangaID:   src.MangaID,
		chapterID: chapterID,
		loader:    loader,
		staged:    staged,
		imaging:   imgOpts,
		total:     len(refs),
	}
	pages, err := p.processPages(ctx, job, refs)
	if err != nil {
		return err
	}

	if err := p.st.FinalizeChapter(ctx, chapterID, item.ID, pages); err != nil {
		return fmt.Errorf("finalize chapter: %w", err)
	}
	loader.done()
	log.Printf("Downloader: item %d finalized chapter %v of manga %d with %d page(s)", item.ID, item.ChapterNumber, src.MangaID, len(pages))
	p.progress(item.ID, fmt.Sprintf("Chapter %v finished", item.ChapterNumber), string(models.QueueCompleted), 100, true)
	return nil
}

type chapterJob struct {
	item      *models.QueueItem
	mangaID   int64
	chapterID int64
	loader    pageLoader
	staged    map[int]models.StagedPage
	imaging   imaging.Options
	total     int
	done      atomic.Int32
}

// processPages handles every page with bounded concurrency. The first failure
// cancels the pages still running; results keep their declared order.
func (p *Processor) processPages(ctx context.Context, job *chapterJob, refs []string) ([]models.PageImage, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	pages := make([]models.PageImage, len(refs))
	sem := make(chan struct{}, p.opts.PageConcurrency)
	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func(number int, ref string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			page, err := p.processPage(ctx, job, number, ref)
			if err != nil {
				cancel(fmt.Errorf("page %d: %w", number, err))
				return
			}
			pages[number-1] = *page
			n := job.done.Add(1)
			p.progress(job.item.ID, fmt.Sprintf("Stored page %d of %d", n, job.total),
				string(models.QueueProcessing), float64(n)/float64(job.total)*100, false)
		}(i+1, ref)
	}
	wg.Wait()

	if err := context.Cause(ctx); err != nil {
		return nil, err
	}
	return pages, nil
}

func (p *Processor) processPage(ctx context.Context, job *chapterJob, number int, ref string) (page *models.PageImage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if staged, ok := job.staged[number]; ok && pageKey(staged.PageURL) == pageKey(ref) {
		return &models.PageImage{
			PageNumber: number,
			ImageURL:   staged.ImageURL,
			PublicID:   staged.PublicID,
			Width:      staged.Width,
			Height:     staged.Height,
		}, nil
	}

	data, err := p.loadWithRetry(ctx, job.loader, ref)
	if err != nil {
		return nil, err
	}
	normalized, err := imaging.Normalize(data, job.imaging)
	if err != nil {
		return nil, err
	}
	stored, err := p.storage.Store(ctx, normalized.Data, storage.Target{
		MangaID:    job.mangaID,
		ChapterID:  job.chapterID,
		PageNumber: number,
	})
	if err != nil {
		return nil, err
	}

	err = p.st.SaveStagedPage(ctx, models.StagedPage{
		QueueItemID: job.item.ID,
		PageNumber:  number,
		PageURL:     ref,
		ImageURL:    stored.URL,
		PublicID:    stored.PublicID,
		AccountID:   stored.AccountID,
		Width:       normalized.Width,
		Height:      normalized.Height,
		Bytes:       stored.Bytes,
	})
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	return &models.PageImage{
		PageNumber: number,
		ImageURL:   stored.URL,
		PublicID:   stored.PublicID,
		Width:      normalized.Width,
		Height:     normalized.Height,
	}, nil
}

// loadWithRetry retries a page download with a linearly growing delay.
func (p *Processor) loadWithRetry(ctx context.Context, loader pageLoader, ref string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= p.opts.PageRetries; attempt++ {
		data, err := loader.load(ctx, ref)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == p.opts.PageRetries {
			break
		}
		if !sleepWithContext(ctx, p.opts.PageRetryDelay*time.Duration(attempt)) {
			break
		}
	}
	return nil, lastErr
}

func (p *Processor) progress(itemID int64, message, status string, progress float64, done bool) {
	if p.notifier == nil {
		return
	}
	p.notifier.BroadcastJSON(models.ProgressUpdate{
		JobID:    "downloader",
		Message:  message,
		Progress: progress,
		ItemID:   itemID,
		Status:   status,
		Done:     done,
	})
}

func (p *Processor) removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Downloader: could not remove ingested file %s: %v", path, err)
	}
}

// loaderFor picks where the pages of an item come from.
func (p *Processor) loaderFor(src *models.ScrapeSource, item *models.QueueItem) (pageLoader, error) {
	if strings.HasPrefix(item.ChapterURL, "file://") {
		path, err := ingest.PathFromURL(item.ChapterURL)
		if err != nil {
			return nil, err
		}
		return &fileLoader{path: path, onDone: p.removeFile}, nil
	}
	return newAdapterLoader(src.SiteType, item.ChapterURL, p.images)
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func truncateReason(reason string) string {
	const maxLen = 1000
	reason = strings.TrimSpace(reason)
	if len(reason) <= maxLen {
		return reason
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

// pageKey identifies a page image across retries. Query strings and the node
// prefix before a /data/ or /data-saver/ segment carry per-request tokens.
func pageKey(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	for _, marker := range []string{"/data/", "/data-saver/"} {
		if i := strings.Index(u.Path, marker); i >= 0 {
			return u.Path[i:]
		}
	}
	return u.Host + u.Path
}
