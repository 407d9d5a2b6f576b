package ingest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-scraper/internal/models"
	"github.com/vrsandeep/mango-scraper/internal/store"
	"github.com/vrsandeep/mango-scraper/internal/testutil"
)

func TestExtractPagesFromCBZ(t *testing.T) {
	dir := t.TempDir()
	path := testutil.CreateTestCBZ(t, dir, "chapter.cbz", map[string][]byte{
		"p10.png":           []byte("ten"),
		"p2.png":            []byte("two"),
		"p1.png":            []byte("one"),
		"notes.txt":         []byte("skip me"),
		"__MACOSX/._p1.png": []byte("fork"),
	})

	pages, err := ExtractPages(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, "p1.png", pages[0].Name)
	assert.Equal(t, "p2.png", pages[1].Name)
	assert.Equal(t, "p10.png", pages[2].Name)
	assert.Equal(t, []byte("ten"), pages[2].Data)
}

func TestExtractPagesUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chapter.docx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, err := ExtractPages(context.Background(), path)
	assert.True(t, errors.Is(err, ErrUnsupportedFile))
}

func TestParseFileName(t *testing.T) {
	testCases := []struct {
		name    string
		want    FileName
		wantErr bool
	}{
		{"12_105.cbz", FileName{SourceID: 12, ChapterNumber: 105}, false},
		{"3_7.5_The_Last_Stand.zip", FileName{SourceID: 3, ChapterNumber: 7.5, Title: "The Last Stand"}, false},
		{"/inbox/4_1_x.pdf", FileName{SourceID: 4, ChapterNumber: 1, Title: "x"}, false},
		{"chapter_1.cbz", FileName{}, true},
		{"4_1.txt", FileName{}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseFileName(tc.name)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFileURLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1_2.cbz")
	got, err := PathFromURL(FileURL(path))
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = PathFromURL("https://example.com/1_2.cbz")
	assert.Error(t, err)
}

func newSource(t *testing.T, st *store.Store) *models.ScrapeSource {
	t.Helper()
	src := &models.ScrapeSource{MangaID: 1, SiteType: "mockadex", SourceURL: "https://mockadex.test/series/a", CheckInterval: 3600, IsActive: true}
	require.NoError(t, st.CreateSource(context.Background(), src))
	return src
}

func TestInboxSaveAndEnqueue(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	src := newSource(t, st)
	inbox := NewInbox(filepath.Join(t.TempDir(), "inbox"), st, 3)
	ctx := context.Background()

	item, inserted, err := inbox.Save(ctx, FileName{SourceID: src.ID, ChapterNumber: 4.5, Title: "Side Story!"}, "cbz", bytes.NewReader([]byte("zip")))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, InboxPriority, item.Priority)
	assert.Equal(t, "Side Story!", item.ChapterTitle)

	path, err := PathFromURL(item.ChapterURL)
	require.NoError(t, err)
	assert.Equal(t, "1_4.5_Side_Story.cbz", filepath.Base(path))
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, inserted, err = inbox.Enqueue(ctx, path)
	require.NoError(t, err)
	assert.False(t, inserted)

	_, _, err = inbox.Save(ctx, FileName{SourceID: 999, ChapterNumber: 1}, ".cbz", bytes.NewReader(nil))
	assert.True(t, errors.Is(err, store.ErrNotFound))

	_, _, err = inbox.Save(ctx, FileName{SourceID: src.ID, ChapterNumber: 1}, ".exe", bytes.NewReader(nil))
	assert.True(t, errors.Is(err, ErrUnsupportedFile))
}

func TestWatcherQueuesNewFiles(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	src := newSource(t, st)
	dir := t.TempDir()

	// A file that was already waiting before start-up.
	testutil.CreateTestCBZ(t, dir, "1_1.cbz", map[string][]byte{"a.png": []byte("a")})

	w := NewWatcher(NewInbox(dir, st, 3))
	w.debounceDelay = 20 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	testutil.CreateTestCBZ(t, dir, "1_2_Second.cbz", map[string][]byte{"a.png": []byte("a")})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignored"), 0o644))

	require.Eventually(t, func() bool {
		items, err := st.ListQueueItems(context.Background(), models.QueueFilter{SourceID: src.ID})
		return err == nil && len(items) == 2
	}, 3*time.Second, 20*time.Millisecond)
}
