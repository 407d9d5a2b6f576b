// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vrsandeep/mango-scraper/internal/core"
	"github.com/vrsandeep/mango-scraper/internal/store"
	"github.com/vrsandeep/mango-scraper/internal/websocket"
)

// Server holds the dependencies for our API.
type Server struct {
	app   *core.App
	store *store.Store
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	return &Server{app: app, store: app.Store()}
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)    // Logs requests to the console
	r.Use(middleware.Recoverer) // Recovers from panics

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/version", s.handleGetVersion)

	// Websocket connections are long-lived, so they stay outside the timeout group.
	r.Get("/ws/admin/progress", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.app.WsHub(), w, r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(s.AdminAuthMiddleware)

			// Scrape sources
			r.Get("/sources", s.handleListSources)
			r.Post("/sources", s.handleCreateSource)
			r.Get("/sources/{sourceID}", s.handleGetSource)
			r.Put("/sources/{sourceID}", s.handleUpdateSource)
			r.Delete("/sources/{sourceID}", s.handleDeleteSource)
			r.Post("/sources/{sourceID}/deactivate", s.handleDeactivateSource)
			r.Post("/sources/{sourceID}/check", s.handleCheckSource)
			r.Get("/sources/{sourceID}/logs", s.handleGetSourceLogs)

			// Download queue
			r.Get("/queue", s.handleListQueue)
			r.Post("/queue", s.handleEnqueue)
			r.Get("/queue/stats", s.handleQueueStats)
			r.Post("/queue/retry-failed", s.handleRetryAllFailed)
			r.Post("/queue/pause", s.handlePauseQueue)
			r.Post("/queue/resume", s.handleResumeQueue)
			r.Post("/queue/{itemID}/retry", s.handleRetryQueueItem)
			r.Delete("/queue/{itemID}", s.handleDeleteQueueItem)

			r.Get("/logs", s.handleListLogs)

			// Storage accounts
			r.Get("/storage-accounts", s.handleListStorageAccounts)
			r.Post("/storage-accounts", s.handleCreateStorageAccount)
			r.Put("/storage-accounts/{accountID}", s.handleUpdateStorageAccount)
			r.Post("/storage-accounts/{accountID}/toggle", s.handleToggleStorageAccount)
			r.Post("/storage-accounts/{accountID}/primary", s.handleSetPrimaryStorageAccount)
			r.Get("/storage-accounts/{accountID}/stats", s.handleGetStorageAccountStats)
			r.Post("/storage/reconcile", s.handleReconcileStorage)
			r.Delete("/storage/mangas/{mangaID}", s.handleDeleteMangaImages)
			r.Delete("/storage/mangas/{mangaID}/chapters/{chapterID}", s.handleDeleteChapterImages)

			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings", s.handleUpdateSettings)

			r.Get("/jobs/status", s.handleGetAdminJobsStatus)
			r.Post("/jobs/run", s.handleRunAdminJob)

			r.Get("/adapters", s.handleListAdapters)
			r.Post("/uploads", s.handleUpload)
		})

		// Images stored on the local provider.
		cfg := s.app.Config().Storage
		if cfg.LocalPath != "" && strings.HasPrefix(cfg.LocalBaseURL, "/") {
			FileServer(r, strings.TrimSuffix(cfg.LocalBaseURL, "/")+"/", http.Dir(cfg.LocalPath))
		}
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DB().PingContext(r.Context()); err != nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"queue_paused": s.app.Processor().IsPaused(),
		"ws_clients":   s.app.WsHub().ClientCount(),
	})
}

// FileServer conveniently sets up a static file server that doesn't list directories.
func FileServer(r chi.Router, path string, root http.FileSystem) {
	fs := http.StripPrefix(path, http.FileServer(noDirFS{root}))
	r.Get(path+"*", func(w http.ResponseWriter, r *http.Request) {
		fs.ServeHTTP(w, r)
	})
}

// noDirFS hides directory listings.
type noDirFS struct {
	fs http.FileSystem
}

func (n noDirFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	if stat, err := f.Stat(); err == nil && stat.IsDir() {
		f.Close()
		return nil, errNotFile
	}
	return f, nil
}
