package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-scraper/internal/config"
	"github.com/vrsandeep/mango-scraper/internal/testutil"
)

func newTestFetcher(maxBytes int64) *Fetcher {
	return New(Options{Timeout: 2 * time.Second, UserAgent: "test-agent", MaxBodyBytes: maxBytes})
}

func TestFetch(t *testing.T) {
	png := testutil.PNG(t, 4, 4)
	mux := http.NewServeMux()
	mux.HandleFunc("/typed.png", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "https://site.test/ch/1", r.Header.Get("Referer"))
		assert.NotContains(t, r.Header.Get("Accept"), "avif", "only decodable formats are advertised")
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})
	mux.HandleFunc("/sniffed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(png)
	})
	mux.HandleFunc("/html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write(png)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f := newTestFetcher(1 << 20)
	ctx := context.Background()

	t.Run("uses content type and caller headers", func(t *testing.T) {
		img, err := f.Fetch(ctx, server.URL+"/typed.png", map[string]string{"Referer": "https://site.test/ch/1"})
		require.NoError(t, err)
		assert.Equal(t, "png", img.Format)
		assert.Equal(t, png, img.Data)
	})

	t.Run("sniffs the body when content type is generic", func(t *testing.T) {
		img, err := f.Fetch(ctx, server.URL+"/sniffed", nil)
		require.NoError(t, err)
		assert.Equal(t, "png", img.Format)
	})

	t.Run("rejects non-image bodies", func(t *testing.T) {
		_, err := f.Fetch(ctx, server.URL+"/html", nil)
		assert.ErrorIs(t, err, ErrFetchFailed)
	})

	t.Run("non-2xx carries the status", func(t *testing.T) {
		_, err := f.Fetch(ctx, server.URL+"/missing", nil)
		require.ErrorIs(t, err, ErrFetchFailed)
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	})

	t.Run("oversized bodies fail", func(t *testing.T) {
		small := newTestFetcher(10)
		_, err := small.Fetch(ctx, server.URL+"/typed.png", nil)
		assert.ErrorIs(t, err, ErrFetchFailed)
	})

	t.Run("timeouts fail", func(t *testing.T) {
		quick := New(Options{Timeout: 50 * time.Millisecond})
		_, err := quick.Fetch(ctx, server.URL+"/slow", nil)
		assert.ErrorIs(t, err, ErrFetchFailed)
	})

	t.Run("invalid urls fail", func(t *testing.T) {
		_, err := f.Fetch(ctx, "ftp://example.com/a.png", nil)
		assert.ErrorIs(t, err, ErrFetchFailed)
	})
}

func TestGetBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	body, err := newTestFetcher(0).GetBody(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.Default())
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 2.0, opts.RequestsPerSecond)
	assert.Equal(t, int64(25<<20), opts.MaxBodyBytes)
}

func TestLimiterIsPerHost(t *testing.T) {
	f := New(Options{RequestsPerSecond: 1, Burst: 1})
	assert.Same(t, f.limiter("a.test"), f.limiter("a.test"))
	assert.NotSame(t, f.limiter("a.test"), f.limiter("b.test"))
}
