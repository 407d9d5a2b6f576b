package ingest

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher enqueues chapter files as they appear in the inbox directory.
// Events for a file are debounced so a file still being copied is only
// picked up once it has stopped changing.
type Watcher struct {
	inbox         *Inbox
	watcher       *fsnotify.Watcher
	mu            sync.Mutex
	pending       map[string]*time.Timer
	debounceDelay time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

func NewWatcher(inbox *Inbox) *Watcher {
	return &Watcher{
		inbox:         inbox,
		pending:       make(map[string]*time.Timer),
		debounceDelay: 2 * time.Second,
	}
}

// Start begins watching the inbox. Files already present are enqueued too.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.inbox.Dir(), 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.inbox.Dir()); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher
	w.ctx, w.cancel = context.WithCancel(ctx)

	entries, err := os.ReadDir(w.inbox.Dir())
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				w.schedule(filepath.Join(w.inbox.Dir(), e.Name()))
			}
		}
	}

	log.Printf("Ingest: watching inbox %s", w.inbox.Dir())
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops the watcher and drops any file still waiting out its debounce.
func (w *Watcher) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Ingest: watcher error: %v", err)
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	w.schedule(event.Name)
}

func (w *Watcher) schedule(path string) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || !IsSupported(base) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.debounceDelay)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounceDelay, func() { w.enqueue(path) })
}

func (w *Watcher) enqueue(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()

	if w.ctx.Err() != nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	item, inserted, err := w.inbox.Enqueue(w.ctx, path)
	if err != nil {
		log.Printf("Ingest: skipping %s: %v", filepath.Base(path), err)
		return
	}
	if inserted {
		log.Printf("Ingest: queued %s as item %d (source %d, chapter %v)",
			filepath.Base(path), item.ID, item.SourceID, item.ChapterNumber)
	}
}
