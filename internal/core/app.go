package core

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/vrsandeep/mango-scraper/internal/assets"
	"github.com/vrsandeep/mango-scraper/internal/checker"
	"github.com/vrsandeep/mango-scraper/internal/config"
	"github.com/vrsandeep/mango-scraper/internal/db"
	"github.com/vrsandeep/mango-scraper/internal/downloader"
	"github.com/vrsandeep/mango-scraper/internal/fetcher"
	"github.com/vrsandeep/mango-scraper/internal/ingest"
	"github.com/vrsandeep/mango-scraper/internal/jobs"
	"github.com/vrsandeep/mango-scraper/internal/lock"
	"github.com/vrsandeep/mango-scraper/internal/sources"
	"github.com/vrsandeep/mango-scraper/internal/storage"
	"github.com/vrsandeep/mango-scraper/internal/store"
	"github.com/vrsandeep/mango-scraper/internal/websocket"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// App holds the core components of the application that are shared
// between the server and the CLI.
type App struct {
	config    *config.Config
	db        *sql.DB
	store     *store.Store
	hub       *websocket.Hub
	fetcher   *fetcher.Fetcher
	backend   *storage.Backend
	locker    lock.Locker
	redis     *redis.Client
	sources   *sources.Manager
	checker   *checker.Checker
	processor *downloader.Processor
	inbox     *ingest.Inbox
	jobs      *jobs.JobManager
}

// New loads the configuration, opens and migrates the database, and wires
// every component.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.RunMigrations(database, assets.MigrationsFS); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	var client *redis.Client
	if cfg.Redis.URL != "" {
		client, err = lock.NewRedisClient(context.Background(), cfg.Redis.URL)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	app := NewWithDB(cfg, database, client)
	log.Println("Core application setup complete.")
	return app, nil
}

// NewWithDB wires the components around an already migrated database.
// A nil client selects the in-process check lock.
func NewWithDB(cfg *config.Config, database *sql.DB, client *redis.Client) *App {
	st := store.New(database)
	hub := websocket.NewHub()
	go hub.Run()

	var locker lock.Locker = lock.NewLocal()
	if client != nil {
		locker = lock.NewRedis(client)
	}

	f := fetcher.New(fetcher.OptionsFromConfig(cfg))
	backend := storage.NewBackend(st, storage.NewFactory(cfg), storage.OptionsFromConfig(cfg))
	mgr := sources.NewManager(st)

	app := &App{
		config:    cfg,
		db:        database,
		store:     st,
		hub:       hub,
		fetcher:   f,
		backend:   backend,
		locker:    locker,
		redis:     client,
		sources:   mgr,
		checker:   checker.New(st, mgr, locker, hub, checker.OptionsFromConfig(cfg)),
		processor: downloader.NewProcessor(st, f, backend, hub, downloader.OptionsFromConfig(cfg)),
	}
	if cfg.Ingest.InboxPath != "" {
		app.inbox = ingest.NewInbox(cfg.Ingest.InboxPath, st, cfg.Queue.MaxAttempts)
	}

	app.jobs = jobs.NewManager(app)
	jobs.RegisterDefaults(app.jobs)
	return app
}

func (a *App) Config() *config.Config { return a.config }
func (a *App) DB() *sql.DB { return a.db }
func (a *App) Store() *store.Store { return a.store }
func (a *App) WsHub() *websocket.Hub { return a.hub }
func (a *App) Fetcher() *fetcher.Fetcher { return a.fetcher }
func (a *App) StorageBackend() *storage.Backend { return a.backend }
func (a *App) Sources() *sources.Manager { return a.sources }
func (a *App) Checker() *checker.Checker { return a.checker }
func (a *App) Processor() *downloader.Processor { return a.processor }
func (a *App) JobManager() *jobs.JobManager { return a.jobs }

// Inbox is nil when no inbox path is configured.
func (a *App) Inbox() *ingest.Inbox { return a.inbox }

// Close gracefully closes the application's resources, like the DB connection.
func (a *App) Close() {
	a.jobs.Wait()
	a.hub.Stop()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Printf("Core: closing redis: %v", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
