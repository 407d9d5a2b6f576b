package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-scraper/internal/models"
	"github.com/vrsandeep/mango-scraper/internal/store"
	"github.com/vrsandeep/mango-scraper/internal/testutil"
)

func newSource(t *testing.T, s *store.Store, mangaID int64) *models.ScrapeSource {
	t.Helper()
	src := &models.ScrapeSource{
		MangaID:       mangaID,
		SiteType:      "mockadex",
		SourceURL:     "https://example.com/manga/" + time.Now().Format("150405.000000000"),
		CheckInterval: 3600,
		IsActive:      true,
		QualityCheck:  true,
	}
	require.NoError(t, s.CreateSource(context.Background(), src))
	return src
}

func TestSourceCRUD(t *testing.T) {
	ctx := context.Background()
	s := store.New(testutil.SetupTestDB(t))

	src := newSource(t, s, 7)
	assert.NotZero(t, src.ID)

	got, err := s.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.MangaID)
	assert.Nil(t, got.LastCheck)
	assert.True(t, got.IsActive)

	got.CheckInterval = 600
	got.AutoPublish = true
	require.NoError(t, s.UpdateSource(ctx, got))
	got, _ = s.GetSource(ctx, src.ID)
	assert.Equal(t, 600, got.CheckInterval)
	assert.True(t, got.AutoPublish)

	require.NoError(t, s.SetSourceActive(ctx, src.ID, false))
	active, err := s.ListSources(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, _ := s.ListSources(ctx, false)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteSource(ctx, src.ID))
	_, err = s.GetSource(ctx, src.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.True(t, errors.Is(s.DeleteSource(ctx, src.ID), store.ErrNotFound))
}

func TestRecordCheck(t *testing.T) {
	ctx := context.Background()
	s := store.New(testutil.SetupTestDB(t))
	src := newSource(t, s, 1)
	now := time.Now().UTC()

	t.Run("success advances watermark", func(t *testing.T) {
		entry, err := s.RecordCheck(ctx, src.ID, models.CheckOutcome{
			RunID: "run-1", CheckedAt: now, Status: models.CheckSuccess,
			ChaptersFound: 3, ChaptersScraped: 3, MaxChapter: 14, Duration: 1500 * time.Millisecond,
		})
		require.NoError(t, err)
		assert.NotZero(t, entry.ID)
		assert.InDelta(t, 1.5, entry.ExecutionTime, 0.001)

		got, _ := s.GetSource(ctx, src.ID)
		assert.Equal(t, 14.0, got.LastChapterScraped)
		require.NotNil(t, got.LastCheck)
	})

	t.Run("watermark never regresses", func(t *testing.T) {
		_, err := s.RecordCheck(ctx, src.ID, models.CheckOutcome{
			CheckedAt: now.Add(time.Minute), Status: models.CheckSuccess, ChaptersFound: 1, MaxChapter: 10,
		})
		require.NoError(t, err)
		got, _ := s.GetSource(ctx, src.ID)
		assert.Equal(t, 14.0, got.LastChapterScraped)
	})

	t.Run("failure keeps watermark but updates last check", func(t *testing.T) {
		checked := now.Add(2 * time.Minute)
		_, err := s.RecordCheck(ctx, src.ID, models.CheckOutcome{
			CheckedAt: checked, Status: models.CheckFailed, MaxChapter: 99, Err: errors.New("site down"),
		})
		require.NoError(t, err)
		got, _ := s.GetSource(ctx, src.ID)
		assert.Equal(t, 14.0, got.LastChapterScraped)
		assert.WithinDuration(t, checked, *got.LastCheck, time.Second)
	})

	t.Run("no new chapters is logged distinctly", func(t *testing.T) {
		_, err := s.RecordCheck(ctx, src.ID, models.CheckOutcome{CheckedAt: now.Add(3 * time.Minute), Status: models.CheckNoNewChapters})
		require.NoError(t, err)

		logs, err := s.ListCheckLogs(ctx, models.LogFilter{SourceID: src.ID})
		require.NoError(t, err)
		require.Len(t, logs, 4)
		assert.Equal(t, models.CheckNoNewChapters, logs[0].Status)
		assert.Equal(t, models.CheckFailed, logs[1].Status)
		assert.Equal(t, "site down", logs[1].ErrorMessage)

		failed, _ := s.ListCheckLogs(ctx, models.LogFilter{Status: models.CheckFailed})
		assert.Len(t, failed, 1)
	})

	t.Run("unknown source", func(t *testing.T) {
		_, err := s.RecordCheck(ctx, 999, models.CheckOutcome{CheckedAt: now, Status: models.CheckSuccess})
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})
}

func TestPruneCheckLogs(t *testing.T) {
	ctx := context.Background()
	s := store.New(testutil.SetupTestDB(t))
	src := newSource(t, s, 1)
	now := time.Now().UTC()

	s.RecordCheck(ctx, src.ID, models.CheckOutcome{CheckedAt: now.AddDate(0, 0, -40), Status: models.CheckNoNewChapters})
	s.RecordCheck(ctx, src.ID, models.CheckOutcome{CheckedAt: now, Status: models.CheckNoNewChapters})

	n, err := s.PruneCheckLogs(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCreateSource_Duplicate(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))
	src := newSource(t, s, 3)

	dup := *src
	dup.ID = 0
	err := s.CreateSource(context.Background(), &dup)
	assert.ErrorIs(t, err, store.ErrConflict)

	dup.MangaID = 4
	assert.NoError(t, s.CreateSource(context.Background(), &dup), "same URL for another manga is allowed")
}
