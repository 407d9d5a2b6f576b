package api_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-scraper/internal/models"
)

func TestQueueHandlers(t *testing.T) {
	ts := setupTestServer(t)
	src := createSource(t, ts, "https://mockadex.test/series/q")

	enqueue := func(number float64, priority *int) *models.QueueItem {
		body := map[string]any{
			"source_id":      src.ID,
			"chapter_number": number,
			"chapter_url":    fmt.Sprintf("https://mockadex.test/series/q/chapter/%v", number),
		}
		if priority != nil {
			body["priority"] = *priority
		}
		rr := ts.do(t, "POST", "/api/admin/queue", body)
		require.Contains(t, []int{http.StatusCreated, http.StatusOK}, rr.Code, rr.Body.String())
		item := decode[models.QueueItem](t, rr)
		return &item
	}

	t.Run("Manual enqueue", func(t *testing.T) {
		seven := 7
		item := enqueue(4, &seven)
		assert.Equal(t, 7, item.Priority)
		assert.Equal(t, models.QueuePending, item.Status)
		assert.Equal(t, ts.app.Config().Queue.MaxAttempts, item.MaxAttempts)

		again := enqueue(4, nil)
		assert.Equal(t, item.ID, again.ID, "enqueue is idempotent")
		assert.Equal(t, 7, again.Priority)

		item = enqueue(5, nil)
		assert.Equal(t, 0, item.Priority, "source default without auto-publish")
	})

	t.Run("Manual enqueue rejects bad input", func(t *testing.T) {
		rr := ts.do(t, "POST", "/api/admin/queue", map[string]any{"source_id": src.ID, "chapter_number": 1})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		rr = ts.do(t, "POST", "/api/admin/queue", map[string]any{"source_id": 999, "chapter_number": 1, "chapter_url": "https://x.test/1"})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("List and stats", func(t *testing.T) {
		rr := ts.do(t, "GET", "/api/admin/queue?status=pending", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		items := decode[[]models.QueueItem](t, rr)
		require.Len(t, items, 2)
		assert.Equal(t, 5.0, items[0].ChapterNumber, "newest first")

		assert.Equal(t, http.StatusBadRequest, ts.do(t, "GET", "/api/admin/queue?status=bogus", nil).Code)

		rr = ts.do(t, "GET", "/api/admin/queue/stats", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		body := decode[struct {
			Stats  models.QueueStats `json:"stats"`
			Paused bool              `json:"paused"`
		}](t, rr)
		assert.Equal(t, 2, body.Stats.Pending)
		assert.False(t, body.Paused)
	})

	t.Run("Retry", func(t *testing.T) {
		items := decode[[]models.QueueItem](t, ts.do(t, "GET", "/api/admin/queue", nil))
		path := fmt.Sprintf("/api/admin/queue/%d/retry", items[0].ID)
		assert.Equal(t, http.StatusNotFound, ts.do(t, "POST", path, nil).Code, "only failed items can be retried")

		rr := ts.do(t, "POST", "/api/admin/queue/retry-failed", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, int64(0), decode[map[string]int64](t, rr)["retried"])
	})

	t.Run("Pause and resume", func(t *testing.T) {
		require.Equal(t, http.StatusOK, ts.do(t, "POST", "/api/admin/queue/pause", nil).Code)
		assert.True(t, ts.app.Processor().IsPaused())
		require.Equal(t, http.StatusOK, ts.do(t, "POST", "/api/admin/queue/resume", nil).Code)
		assert.False(t, ts.app.Processor().IsPaused())
	})

	t.Run("Delete", func(t *testing.T) {
		items := decode[[]models.QueueItem](t, ts.do(t, "GET", "/api/admin/queue", nil))
		path := fmt.Sprintf("/api/admin/queue/%d", items[0].ID)
		require.Equal(t, http.StatusNoContent, ts.do(t, "DELETE", path, nil).Code)
		assert.Equal(t, http.StatusNotFound, ts.do(t, "DELETE", path, nil).Code)
	})
}
