package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-scraper/internal/models"
	"github.com/vrsandeep/mango-scraper/internal/store"
	"github.com/vrsandeep/mango-scraper/internal/testutil"
)

func enqueue(t *testing.T, s *store.Store, sourceID int64, number float64, priority int) int64 {
	t.Helper()
	id, inserted, err := s.EnqueueChapter(context.Background(), models.NewQueueItem{
		SourceID: sourceID, ChapterNumber: number, ChapterURL: "https://example.com/c/x", Priority: priority, MaxAttempts: 3,
	})
	require.NoError(t, err)
	require.True(t, inserted)
	return id
}

func TestEnqueueIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := store.New(testutil.SetupTestDB(t))
	src := newSource(t, s, 1)

	first := enqueue(t, s, src.ID, 13.5, 0)
	id, inserted, err := s.EnqueueChapter(ctx, models.NewQueueItem{SourceID: src.ID, ChapterNumber: 13.5, ChapterURL: "https://example.com/other"})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first, id)

	items, _ := s.ListQueueItems(ctx, models.QueueFilter{SourceID: src.ID})
	assert.Len(t, items, 1)
	assert.Equal(t, models.QueuePending, items[0].Status)
	assert.Equal(t, 3, items[0].MaxAttempts)
}

func TestClaimOrdering(t *testing.T) {
	ctx := context.Background()
	s := store.New(testutil.SetupTestDB(t))
	src := newSource(t, s, 1)

	low := enqueue(t, s, src.ID, 1, 0)
	high := enqueue(t, s, src.ID, 2, 5)
	high2 := enqueue(t, s, src.ID, 3, 5)

	now := time.Now().UTC().Add(time.Second)
	var order []int64
	for {
		item, err := s.ClaimNextQueueItem(ctx, now)
		require.NoError(t, err)
		if item == nil {
			break
		}
		assert.Equal(t, models.QueueProcessing, item.Status)
		assert.NotNil(t, item.ClaimedAt)
		order = append(order, item.ID)
	}
	assert.Equal(t, []int64{high, high2, low}, order)
}

func TestClaimExclusivity(t *testing.T) {
	ctx := context.Background()
	s := store.New(testutil.SetupFileDB(t))
	src := newSource(t, s, 1)
	enqueue(t, s, src.ID, 1, 0)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan *models.QueueItem, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			item, err := s.ClaimNextQueueItem(ctx, time.Now().UTC().Add(time.Second))
			assert.NoError(t, err)
			results <- item
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	claimed := 0
	for item := range results {
		if item != nil {
			claimed++
		}
	}
	assert.Equal(t, 1, claimed, "exactly one worker must win the claim")
}

func TestClaimQueueItemRace(t *testing.T) {
	ctx := context.Background()
	s := store.New(testutil.SetupTestDB(t))
	src := newSource(t, s, 1)
	id := enqueue(t, s, src.ID, 1, 0)

	ok, err := s.ClaimQueueItem(ctx, id, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.ClaimQueueItem(ctx, id, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFailQueueItemAttemptBound(t *testing.T) {
	ctx := context.Background()
	s := store.New(testutil.SetupTestDB(t))
	src := newSource(t, s, 1)
	id := enqueue(t, s, src.ID, 1, 0)
	now := time.Now().UTC()

	for attempt := 1; attempt <= 3; attempt++ {
		item, err := s.ClaimNextQueueItem(ctx, now.Add(24*time.Hour*time.Duration(attempt)))
		require.NoError(t, err)
		require.NotNil(t, item, "attempt %d should be claimable", attempt)

		failed, err := s.FailQueueItem(ctx, id, "page 5: fetch failed", time.Minute, now)
		require.NoError(t, err)
		assert.Equal(t, attempt, failed.Attempts)
		if attempt < 3 {
			assert.Equal(t, models.QueuePending, failed.Status)
			require.NotNil(t, failed.NextAttemptAt)
			assert.WithinDuration(t, now.Add(time.Duration(attempt)*time.Minute), *failed.NextAttemptAt, time.Second)
		} else {
			assert.Equal(t, models.QueueFailed, failed.Status)
			assert.True(t, failed.Exhausted())
		}
	}

	// A terminal item is never claimed again automatically.
	item, err := s.ClaimNextQueueItem(ctx, now.Add(365*24*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, item)

	stored, _ := s.GetQueueItem(ctx, id)
	assert.Equal(t, 3, stored.Attempts)
	assert.Equal(t, "page 5: fetch failed", stored.ErrorMessage)

	// Failing an item that is not processing is rejected.
	_, err = s.FailQueueItem(ctx, id, "again", time.Minute, now)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestPendingRetryWaitsForBackoff(t *testing.T) {
	ctx := context.Background()
	s := store.New(testutil.SetupTestDB(t))
	src := newSource(t, s, 1)
	id := enqueue(t, s, src.ID, 1, 0)
	now := time.Now().UTC()

	_, err := s.ClaimNextQueueItem(ctx, now)
	require.NoError(t, err)
	_, err = s.FailQueueItem(ctx, id, "boom", 10*time.Minute, now)
	require.NoError(t, err)

	item, err := s.ClaimNextQueueItem(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, item, "item must not be retried before its backoff elapses")

	item, err = s.ClaimNextQueueItem(ctx, now.Add(11*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, id, item.ID)
}

func TestRetryAndDeleteQueueItem(t *testing.T) {
	ctx := context.Background()
	s := store.New(testutil.SetupTestDB(t))
	src := newSource(t, s, 1)
	id := enqueue(t, s, src.ID, 1, 0)

	// Only failed items can be retried.
	assert.True(t, errors.Is(s.RetryQueueItem(ctx, id), store.ErrNotFound))

	s.DB().Exec("UPDATE scraping_queue SET status = 'failed', attempts = 3, error_message = 'x' WHERE id = ?", id)
	require.NoError(t, s.RetryQueueItem(ctx, id))
	item, _ := s.GetQueueItem(ctx, id)
	assert.Equal(t, models.QueuePending, item.Status)
	assert.Zero(t, item.Attempts)
	assert.Empty(t, item.ErrorMessage)

	s.DB().Exec("UPDATE scraping_queue SET status = 'failed', attempts = 3 WHERE id = ?", id)
	n, err := s.RetryAllFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.ClaimNextQueueItem(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, errors.Is(s.DeleteQueueItem(ctx, id), store.ErrNotFound), "processing items cannot be deleted")

	require.NoError(t, s.CompleteQueueItem(ctx, id, nil))
	require.NoError(t, s.DeleteQueueItem(ctx, id))
}

func TestResetStaleAndCleanup(t *testing.T) {
	ctx := context.Background()
	s := store.New(testutil.SetupTestDB(t))
	src := newSource(t, s, 1)
	id := enqueue(t, s, src.ID, 1, 0)
	done := enqueue(t, s, src.ID, 2, 0)
	now := time.Now().UTC()

	s.ClaimQueueItem(ctx, id, now.Add(-time.Hour))
	n, err := s.ResetStaleQueueItems(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	item, _ := s.GetQueueItem(ctx, id)
	assert.Equal(t, models.QueuePending, item.Status)
	assert.Zero(t, item.Attempts)

	s.DB().Exec("UPDATE scraping_queue SET status = 'completed', processed_at = ? WHERE id = ?", now.AddDate(0, 0, -10), done)
	n, err = s.CleanupCompletedQueueItems(ctx, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stats, err := s.QueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Zero(t, stats.Completed)
}

func TestStagedPages(t *testing.T) {
	ctx := context.Background()
	s := store.New(testutil.SetupTestDB(t))
	src := newSource(t, s, 1)
	id := enqueue(t, s, src.ID, 1, 0)

	require.NoError(t, s.SaveStagedPage(ctx, models.StagedPage{QueueItemID: id, PageNumber: 2, PageURL: "u2", ImageURL: "https://cdn/2", PublicID: "p2", AccountID: 1}))
	require.NoError(t, s.SaveStagedPage(ctx, models.StagedPage{QueueItemID: id, PageNumber: 2, PageURL: "u2b", ImageURL: "https://cdn/2b", PublicID: "p2", AccountID: 1}))

	pages, err := s.GetStagedPages(ctx, id)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "u2b", pages[2].PageURL)
}
