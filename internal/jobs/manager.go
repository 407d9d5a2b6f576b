package jobs

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/vrsandeep/mango-scraper/internal/checker"
	"github.com/vrsandeep/mango-scraper/internal/config"
	"github.com/vrsandeep/mango-scraper/internal/models"
	"github.com/vrsandeep/mango-scraper/internal/storage"
	"github.com/vrsandeep/mango-scraper/internal/store"
	"github.com/vrsandeep/mango-scraper/internal/websocket"
)

// JobContext provides the dependencies jobs run against.
// The core.App struct implements this interface.
type JobContext interface {
	Config() *config.Config
	Store() *store.Store
	Checker() *checker.Checker
	StorageBackend() *storage.Backend
	WsHub() *websocket.Hub
}

// jobTask returns a short summary for the job status.
type jobTask func(ctx context.Context, app JobContext) (string, error)

type JobStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // "idle", "running", "success", "failed"
	Message   string    `json:"message"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

type JobManager struct {
	mu      sync.Mutex
	jobs    map[string]jobTask
	status  map[string]*JobStatus
	running map[string]bool
	appCtx  JobContext
	wg      sync.WaitGroup
}

func NewManager(appCtx JobContext) *JobManager {
	return &JobManager{
		jobs:    make(map[string]jobTask),
		status:  make(map[string]*JobStatus),
		running: make(map[string]bool),
		appCtx:  appCtx,
	}
}

func (jm *JobManager) Register(id, name string, task jobTask) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.jobs[id] = task
	jm.status[id] = &JobStatus{ID: id, Name: name, Status: "idle"}
}

// RunJob starts a job in the background. Each job runs at most once at a
// time; different jobs may overlap. The job outlives ctx's cancellation but
// keeps its values.
func (jm *JobManager) RunJob(ctx context.Context, id string) error {
	jm.mu.Lock()
	task, ok := jm.jobs[id]
	if !ok {
		jm.mu.Unlock()
		return fmt.Errorf("job '%s' not found", id)
	}
	if jm.running[id] {
		jm.mu.Unlock()
		return fmt.Errorf("job '%s' is already running", id)
	}

	jm.running[id] = true
	status := jm.status[id]
	status.Status = "running"
	status.StartTime = time.Now()
	status.EndTime = time.Time{}
	status.Message = "Job started..."
	jm.mu.Unlock()

	log.Printf("Starting job: %s", id)
	jm.broadcast(id, "Job started...", false)

	jm.wg.Add(1)
	go func() {
		defer jm.wg.Done()
		var (
			message string
			err     error
		)
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Job '%s' panicked: %v", id, r)
				err = fmt.Errorf("job panicked: %v", r)
			}

			jm.mu.Lock()
			status.EndTime = time.Now()
			if err != nil {
				status.Status = "failed"
				status.Message = err.Error()
			} else {
				status.Status = "success"
				status.Message = message
				if message == "" {
					status.Message = "Job completed successfully."
				}
			}
			final := status.Message
			jm.running[id] = false
			jm.mu.Unlock()

			log.Printf("Finished job: %s (%s)", id, final)
			jm.broadcast(id, final, true)
		}()

		message, err = task(context.WithoutCancel(ctx), jm.appCtx)
	}()
	return nil
}

// Wait blocks until every job started so far has finished.
func (jm *JobManager) Wait() {
	jm.wg.Wait()
}

// GetStatus returns a snapshot of every registered job, ordered by id.
func (jm *JobManager) GetStatus() []JobStatus {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	statuses := make([]JobStatus, 0, len(jm.status))
	for _, s := range jm.status {
		statuses = append(statuses, *s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

func (jm *JobManager) broadcast(id, message string, done bool) {
	if jm.appCtx == nil || jm.appCtx.WsHub() == nil {
		return
	}
	jm.appCtx.WsHub().BroadcastJSON(models.ProgressUpdate{JobID: id, Message: message, Done: done})
}
