// Package weebcentral scrapes WeebCentral. The site is htmx driven, so the
// chapter list and the page images come from fragment endpoints that expect
// HX-* request headers.
package weebcentral

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/vrsandeep/mango-scraper/internal/adapters"
	"github.com/vrsandeep/mango-scraper/internal/models"
	"github.com/vrsandeep/mango-scraper/internal/util"
)

const SiteType = "weebcentral"

var ErrNoPages = errors.New("weebcentral: no pages found")

type Adapter struct {
	http adapters.Getter
}

func New(getter adapters.Getter) *Adapter {
	return &Adapter{http: getter}
}

func (a *Adapter) Info() models.AdapterInfo {
	return models.AdapterInfo{SiteType: SiteType, Name: "WeebCentral"}
}

func (a *Adapter) PageHeaders(chapterURL string) map[string]string {
	return map[string]string{"Referer": chapterURL}
}

// idAfter returns the path segment following marker, e.g. the series id in
// /series/<id>/<slug>.
func idAfter(raw, marker string) (origin, id string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	parts := strings.Split(u.Path, "/"+marker+"/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("weebcentral: no %s id in %q", marker, raw)
	}
	id = strings.SplitN(parts[1], "/", 2)[0]
	if id == "" {
		return "", "", fmt.Errorf("weebcentral: no %s id in %q", marker, raw)
	}
	return u.Scheme + "://" + u.Host, id, nil
}

func (a *Adapter) fragment(ctx context.Context, fragmentURL string, headers map[string]string) (*goquery.Document, error) {
	body, err := a.http.GetBody(ctx, fragmentURL, headers)
	if err != nil {
		return nil, fmt.Errorf("weebcentral: %w", err)
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

func (a *Adapter) Discover(ctx context.Context, sourceURL string) ([]models.DiscoveredChapter, error) {
	origin, seriesID, err := idAfter(sourceURL, "series")
	if err != nil {
		return nil, err
	}
	seriesURL := fmt.Sprintf("%s/series/%s", origin, seriesID)
	doc, err := a.fragment(ctx, seriesURL+"/full-chapter-list", map[string]string{
		"HX-Request":     "true",
		"HX-Target":      "chapter-list",
		"HX-Current-URL": seriesURL,
		"Referer":        seriesURL,
	})
	if err != nil {
		return nil, err
	}

	var chapters []models.DiscoveredChapter
	doc.Find("div.flex.items-center").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a")
		href, ok := link.Attr("href")
		if !ok || !strings.Contains(href, "/chapters/") {
			return
		}
		title := strings.TrimSpace(link.Find("span.grow > span").First().Text())
		number, ok := util.ParseChapterNumber(title)
		if !ok {
			number, ok = util.ParseBareNumber(title)
		}
		if !ok {
			return
		}
		chapters = append(chapters, models.DiscoveredChapter{
			Number: number,
			URL:    adapters.ResolveURL(seriesURL, href),
			Title:  title,
		})
	})
	// The site lists newest first; NormalizeListing puts it in reading order.
	return util.NormalizeListing(chapters), nil
}

func (a *Adapter) FetchPages(ctx context.Context, chapterURL string) ([]string, error) {
	origin, chapterID, err := idAfter(chapterURL, "chapters")
	if err != nil {
		return nil, err
	}
	readerURL := fmt.Sprintf("%s/chapters/%s", origin, chapterID)
	doc, err := a.fragment(ctx, readerURL+"/images?is_prev=False&reading_style=long_strip", map[string]string{
		"HX-Request":     "true",
		"HX-Current-URL": readerURL,
		"Referer":        readerURL,
	})
	if err != nil {
		return nil, err
	}

	pages := adapters.CollectImages(readerURL, doc.Find("section.flex-1"))
	if len(pages) == 0 {
		pages = adapters.CollectImages(readerURL, doc.Selection)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w at %s", ErrNoPages, chapterURL)
	}
	return pages, nil
}
