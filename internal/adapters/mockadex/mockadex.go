// A mock adapter for development and testing purposes. It simulates
// discovering chapters on a real site without making network calls.
//
// Source URLs look like https://mockadex.test/series/<id>?chapters=25 and
// chapter URLs like https://mockadex.test/series/<id>/chapter/<n>?pages=20.
// The series id "broken" makes Discover fail.
package mockadex

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/vrsandeep/mango-scraper/internal/models"
	"github.com/vrsandeep/mango-scraper/internal/util"
)

const (
	SiteType        = "mockadex"
	defaultChapters = 25
	defaultPages    = 20
)

var ErrBrokenSeries = errors.New("mockadex: series markup changed")

type Adapter struct {
	pageBaseURL string
}

// New returns an adapter whose page URLs point at placeholder images.
func New() *Adapter {
	return &Adapter{}
}

// NewWithPageBase returns an adapter whose page URLs are served from base,
// as {base}/mockadex/<series>/<chapter>/<page>.png.
func NewWithPageBase(base string) *Adapter {
	return &Adapter{pageBaseURL: strings.TrimRight(base, "/")}
}

func (a *Adapter) Info() models.AdapterInfo {
	return models.AdapterInfo{SiteType: SiteType, Name: "Mockadex"}
}

func (a *Adapter) Discover(ctx context.Context, sourceURL string) ([]models.DiscoveredChapter, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return nil, err
	}
	series := seriesID(u)
	if series == "broken" {
		return nil, ErrBrokenSeries
	}
	count := intParam(u, "chapters", defaultChapters)

	chapters := make([]models.DiscoveredChapter, 0, count)
	for i := 1; i <= count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chapters = append(chapters, models.DiscoveredChapter{
			Number: float64(i),
			URL:    fmt.Sprintf("%s://%s/series/%s/chapter/%d", u.Scheme, u.Host, series, i),
			Title:  fmt.Sprintf("Chapter %d: The Mocking", i),
		})
	}
	return chapters, nil
}

func (a *Adapter) FetchPages(ctx context.Context, chapterURL string) ([]string, error) {
	u, err := url.Parse(chapterURL)
	if err != nil {
		return nil, err
	}
	number, ok := util.ParseChapterNumber(u.Path)
	if !ok {
		return nil, fmt.Errorf("mockadex: no chapter number in %q", chapterURL)
	}
	chapter := util.FormatChapterNumber(number)
	count := intParam(u, "pages", defaultPages)

	urls := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		if a.pageBaseURL == "" {
			urls = append(urls, fmt.Sprintf("https://placehold.co/800x1200.png?text=Chapter+%s+Page+%d", chapter, i))
		} else {
			urls = append(urls, fmt.Sprintf("%s/mockadex/%s/%s/%d.png", a.pageBaseURL, seriesID(u), chapter, i))
		}
	}
	return urls, nil
}

func seriesID(u *url.URL) string {
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "series" {
		return parts[1]
	}
	return "default"
}

func intParam(u *url.URL, key string, def int) int {
	if n, err := strconv.Atoi(u.Query().Get(key)); err == nil && n >= 0 {
		return n
	}
	return def
}
