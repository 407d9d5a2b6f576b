package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-scraper/internal/config"
	"github.com/vrsandeep/mango-scraper/internal/models"
)

func TestLocalProvider(t *testing.T) {
	root := t.TempDir()
	l := NewLocal(root, "/media/", 50)
	ctx := context.Background()

	res, err := l.Upload(ctx, []byte("abc"), "f/manga_1/chapter_2/page_001")
	require.NoError(t, err)
	assert.Equal(t, "/media/f/manga_1/chapter_2/page_001.jpg", res.URL)
	_, err = os.Stat(filepath.Join(root, "f", "manga_1", "chapter_2", "page_001.jpg"))
	require.NoError(t, err)

	_, err = l.Upload(ctx, []byte("defg"), "f/manga_1/chapter_2/page_002")
	require.NoError(t, err)

	usage, err := l.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), usage.MediaCount)
	assert.Equal(t, 50.0, usage.LimitMB)

	require.NoError(t, l.Destroy(ctx, "f/manga_1/chapter_2/page_001"))
	require.NoError(t, l.Destroy(ctx, "f/manga_1/chapter_2/page_001"), "destroying twice is fine")

	n, err := l.DeletePrefix(ctx, "f/manga_1/chapter_2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = l.Upload(ctx, []byte("a"), "f/manga_1/chapter_3/page_001")
	require.NoError(t, err)
	_, err = l.Upload(ctx, []byte("b"), "f/manga_10/chapter_1/page_001")
	require.NoError(t, err)
	n, err = l.DeletePrefix(ctx, "f/manga_1/")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = os.Stat(filepath.Join(root, "f", "manga_10", "chapter_1", "page_001.jpg"))
	assert.NoError(t, err, "sibling manga with a longer id survives")

	_, err = l.Upload(ctx, []byte("x"), "../escape")
	assert.Error(t, err)
}

func TestLocalUsageOfMissingRoot(t *testing.T) {
	usage, err := NewLocal(filepath.Join(t.TempDir(), "missing"), "/media", 10).Usage(context.Background())
	require.NoError(t, err)
	assert.Zero(t, usage.MediaCount)
}

func TestNewFactory(t *testing.T) {
	factory := NewFactory(config.Default())

	p, err := factory(&models.StorageAccount{Provider: models.ProviderCloudinary, CloudName: "demo", APIKey: "k", APISecret: "s"})
	require.NoError(t, err)
	assert.IsType(t, &Cloudinary{}, p)

	p, err = factory(&models.StorageAccount{Provider: models.ProviderLocal})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, p)

	_, err = factory(&models.StorageAccount{Provider: "s3"})
	assert.Error(t, err)
}
