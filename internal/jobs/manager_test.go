package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-scraper/internal/checker"
	"github.com/vrsandeep/mango-scraper/internal/config"
	"github.com/vrsandeep/mango-scraper/internal/jobs"
	"github.com/vrsandeep/mango-scraper/internal/storage"
	"github.com/vrsandeep/mango-scraper/internal/store"
	"github.com/vrsandeep/mango-scraper/internal/websocket"
)

type fakeJobContext struct {
	cfg     *config.Config
	st      *store.Store
	checker *checker.Checker
	backend *storage.Backend
	ws      *websocket.Hub
}

func (f *fakeJobContext) Config() *config.Config { return f.cfg }
func (f *fakeJobContext) Store() *store.Store { return f.st }
func (f *fakeJobContext) Checker() *checker.Checker { return f.checker }
func (f *fakeJobContext) StorageBackend() *storage.Backend { return f.backend }
func (f *fakeJobContext) WsHub() *websocket.Hub { return f.ws }

func statusOf(t *testing.T, mgr *jobs.JobManager, id string) jobs.JobStatus {
	t.Helper()
	for _, s := range mgr.GetStatus() {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("job %s not registered", id)
	return jobs.JobStatus{}
}

func TestManager_NewManager(t *testing.T) {
	mgr := jobs.NewManager(&fakeJobContext{cfg: config.Default()})
	assert.NotNil(t, mgr)
	assert.Empty(t, mgr.GetStatus())
}

func TestManager_RegisterAndGetStatus(t *testing.T) {
	mgr := jobs.NewManager(&fakeJobContext{cfg: config.Default()})
	noop := func(context.Context, jobs.JobContext) (string, error) { return "", nil }
	mgr.Register("jobB", "Job B", noop)
	mgr.Register("jobA", "Job A", noop)

	statuses := mgr.GetStatus()
	require.Len(t, statuses, 2)
	assert.Equal(t, "jobA", statuses[0].ID)
	assert.Equal(t, "Job B", statuses[1].Name)
	assert.Equal(t, "idle", statuses[0].Status)
}

func TestManager_RunJob_SuccessAndStatus(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()
	mgr := jobs.NewManager(&fakeJobContext{cfg: config.Default(), ws: hub})

	var called bool
	mgr.Register("jobX", "Job X", func(ctx context.Context, app jobs.JobContext) (string, error) {
		called = true
		return "did the thing", nil
	})
	require.NoError(t, mgr.RunJob(context.Background(), "jobX"))
	mgr.Wait()

	assert.True(t, called)
	s := statusOf(t, mgr, "jobX")
	assert.Equal(t, "success", s.Status)
	assert.Equal(t, "did the thing", s.Message)
	assert.False(t, s.EndTime.IsZero())
}

func TestManager_RunJob_Error(t *testing.T) {
	mgr := jobs.NewManager(&fakeJobContext{cfg: config.Default()})
	mgr.Register("jobE", "Job E", func(context.Context, jobs.JobContext) (string, error) {
		return "", errors.New("provider down")
	})
	require.NoError(t, mgr.RunJob(context.Background(), "jobE"))
	mgr.Wait()

	s := statusOf(t, mgr, "jobE")
	assert.Equal(t, "failed", s.Status)
	assert.Equal(t, "provider down", s.Message)
}

func TestManager_RunJob_AlreadyRunning(t *testing.T) {
	mgr := jobs.NewManager(&fakeJobContext{cfg: config.Default()})
	block := make(chan struct{})
	mgr.Register("jobY", "Job Y", func(context.Context, jobs.JobContext) (string, error) { <-block; return "", nil })
	mgr.Register("jobZ", "Job Z", func(context.Context, jobs.JobContext) (string, error) { return "", nil })

	require.NoError(t, mgr.RunJob(context.Background(), "jobY"))
	assert.Error(t, mgr.RunJob(context.Background(), "jobY"))
	assert.NoError(t, mgr.RunJob(context.Background(), "jobZ"), "other jobs may run alongside")
	close(block)
	mgr.Wait()

	assert.NoError(t, mgr.RunJob(context.Background(), "jobY"), "a finished job can run again")
	mgr.Wait()
}

func TestManager_RunJob_NotFound(t *testing.T) {
	mgr := jobs.NewManager(&fakeJobContext{cfg: config.Default()})
	assert.Error(t, mgr.RunJob(context.Background(), "nojob"))
}

func TestManager_RunJob_Panic(t *testing.T) {
	mgr := jobs.NewManager(&fakeJobContext{cfg: config.Default()})
	mgr.Register("panicJob", "Panic Job", func(context.Context, jobs.JobContext) (string, error) { panic("fail") })
	require.NoError(t, mgr.RunJob(context.Background(), "panicJob"))
	mgr.Wait()

	s := statusOf(t, mgr, "panicJob")
	assert.Equal(t, "failed", s.Status)
	assert.Contains(t, s.Message, "panicked")
}

func TestManager_RunJob_OutlivesCallerContext(t *testing.T) {
	mgr := jobs.NewManager(&fakeJobContext{cfg: config.Default()})
	var sawCancel bool
	mgr.Register("jobCtx", "Job Ctx", func(ctx context.Context, _ jobs.JobContext) (string, error) {
		time.Sleep(20 * time.Millisecond)
		sawCancel = ctx.Err() != nil
		return "", nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, mgr.RunJob(ctx, "jobCtx"))
	cancel()
	mgr.Wait()
	assert.False(t, sawCancel)
}

func TestManager_Concurrency(t *testing.T) {
	mgr := jobs.NewManager(&fakeJobContext{cfg: config.Default()})
	var mu sync.Mutex
	var count int
	release := make(chan struct{})
	mgr.Register("jobC", "Job C", func(context.Context, jobs.JobContext) (string, error) {
		mu.Lock()
		count++
		mu.Unlock()
		<-release
		return "", nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.RunJob(context.Background(), "jobC")
		}()
	}
	wg.Wait()
	close(release)
	mgr.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "job should only run once concurrently")
}
