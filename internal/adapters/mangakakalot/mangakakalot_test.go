package mangakakalot

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-scraper/internal/fetcher"
)

const listingHTML = `<html><body>
<ul class="row-content-chapter">
  <li><a href="/manga/abc/chapter-12">Chapter 12: Storm</a></li>
  <li><a href="/manga/abc/chapter-11.5">Chapter 11.5</a></li>
  <li><a href="/manga/abc/chapter-11">Chapter 11</a></li>
  <li><a href="https://other.test/manga/abc/chapter-10">Vol.2 Chapter 10</a></li>
</ul>
<a href="/genre/action">Action</a>
</body></html>`

const readerHTML = `<html><body>
<img src="/logo.png">
<div class="container-chapter-reader">
  <img src="https://cdn.test/abc/12/1.jpg">
  <img src="https://cdn.test/abc/12/2.jpg">
</div>
</body></html>`

func TestMangakakalotAdapter(t *testing.T) {
	var seenReferer string
	mux := http.NewServeMux()
	mux.HandleFunc("/manga/abc", func(w http.ResponseWriter, r *http.Request) {
		seenReferer = r.Header.Get("Referer")
		fmt.Fprint(w, listingHTML)
	})
	mux.HandleFunc("/manga/abc/chapter-12", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, readerHTML)
	})
	mux.HandleFunc("/manga/abc/chapter-13", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>removed</p></body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	a := NewMangakakalot(fetcher.New(fetcher.Options{}))
	ctx := context.Background()

	t.Run("Discover", func(t *testing.T) {
		chapters, err := a.Discover(ctx, server.URL+"/manga/abc")
		require.NoError(t, err)
		require.Len(t, chapters, 4)
		assert.Equal(t, 10.0, chapters[0].Number)
		assert.Equal(t, "https://other.test/manga/abc/chapter-10", chapters[0].URL)
		assert.Equal(t, 11.5, chapters[2].Number)
		assert.Equal(t, server.URL+"/manga/abc/chapter-12", chapters[3].URL)
		assert.Equal(t, "Chapter 12: Storm", chapters[3].Title)
		assert.Equal(t, "https://mangakakalot.com/", seenReferer)
	})

	t.Run("FetchPages", func(t *testing.T) {
		pages, err := a.FetchPages(ctx, server.URL+"/manga/abc/chapter-12")
		require.NoError(t, err)
		assert.Equal(t, []string{"https://cdn.test/abc/12/1.jpg", "https://cdn.test/abc/12/2.jpg"}, pages)
	})

	t.Run("FetchPages without images", func(t *testing.T) {
		_, err := a.FetchPages(ctx, server.URL+"/manga/abc/chapter-13")
		assert.Error(t, err)
	})

	t.Run("Site types", func(t *testing.T) {
		assert.Equal(t, "mangakakalot", a.Info().SiteType)
		assert.Equal(t, "manganelo", NewManganelo(nil).Info().SiteType)
		assert.Equal(t, "https://manganelo.com/", NewManganelo(nil).PageHeaders("x")["Referer"])
	})
}
