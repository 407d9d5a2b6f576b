package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vrsandeep/mango-scraper/internal/api"
	"github.com/vrsandeep/mango-scraper/internal/config"
	"github.com/vrsandeep/mango-scraper/internal/core"
	"github.com/vrsandeep/mango-scraper/internal/ingest"
	"github.com/vrsandeep/mango-scraper/internal/jobs"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		log.Fatalf("Fatal error during application setup: %v", err)
	}
	defer app.Close()

	if app.Config().Auth.JWTSecret == "" {
		log.Println("Warning: auth.jwt_secret is empty, every admin API request will be rejected.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Items left in processing by a previous run go back to the queue.
	cutoff := time.Now().Add(-config.Minutes(app.Config().Queue.StaleAfter))
	if n, err := app.Store().ResetStaleQueueItems(ctx, cutoff); err != nil {
		log.Printf("Warning: could not reset stale queue items: %v", err)
	} else if n > 0 {
		log.Printf("Returned %d stale queue item(s) to the queue.", n)
	}

	app.RegisterAdapters()

	// Start the download workers
	app.Processor().Start(ctx)

	scheduler := jobs.StartScheduler(app, app.JobManager())

	var watcher *ingest.Watcher
	if inbox := app.Inbox(); inbox != nil {
		watcher = ingest.NewWatcher(inbox)
		if err := watcher.Start(ctx); err != nil {
			log.Printf("Warning: inbox watcher disabled: %v", err)
			watcher = nil
		}
	}

	// Setup the API server
	server := api.NewServer(app)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.Config().Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("Starting web server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	// Create a context with a timeout to allow existing connections to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	scheduler.Stop()
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			log.Printf("Inbox watcher: %v", err)
		}
	}
	app.Processor().Wait()

	log.Println("Server exiting.")
}
