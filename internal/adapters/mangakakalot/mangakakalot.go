// Package mangakakalot scrapes the Manganelo family of sites, which share
// one page layout under several domains.
package mangakakalot

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/vrsandeep/mango-scraper/internal/adapters"
	"github.com/vrsandeep/mango-scraper/internal/models"
	"github.com/vrsandeep/mango-scraper/internal/util"
)

type Adapter struct {
	http     adapters.Getter
	siteType string
	name     string
	referer  string
}

func NewManganelo(getter adapters.Getter) *Adapter {
	return &Adapter{http: getter, siteType: "manganelo", name: "Manganelo", referer: "https://manganelo.com/"}
}

func NewMangakakalot(getter adapters.Getter) *Adapter {
	return &Adapter{http: getter, siteType: "mangakakalot", name: "Mangakakalot", referer: "https://mangakakalot.com/"}
}

func (a *Adapter) Info() models.AdapterInfo {
	return models.AdapterInfo{SiteType: a.siteType, Name: a.name}
}

// PageHeaders sets the Referer the image CDN insists on.
func (a *Adapter) PageHeaders(chapterURL string) map[string]string {
	return map[string]string{"Referer": a.referer}
}

func (a *Adapter) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := a.http.GetBody(ctx, pageURL, map[string]string{"Referer": a.referer})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.siteType, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: parsing %s: %w", a.siteType, pageURL, err)
	}
	return doc, nil
}

func (a *Adapter) Discover(ctx context.Context, sourceURL string) ([]models.DiscoveredChapter, error) {
	doc, err := a.document(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	var chapters []models.DiscoveredChapter
	doc.Find(`a[href*="chapter"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		text := strings.TrimSpace(s.Text())
		number, ok := util.ParseChapterNumber(text)
		if !ok {
			number, ok = util.ParseChapterNumber(href)
		}
		if !ok {
			return
		}
		chapters = append(chapters, models.DiscoveredChapter{
			Number: number,
			URL:    adapters.ResolveURL(sourceURL, href),
			Title:  text,
		})
	})
	return util.NormalizeListing(chapters), nil
}

func (a *Adapter) FetchPages(ctx context.Context, chapterURL string) ([]string, error) {
	doc, err := a.document(ctx, chapterURL)
	if err != nil {
		return nil, err
	}

	var pages []string
	if reader := doc.Find("div.container-chapter-reader"); reader.Length() > 0 {
		pages = adapters.CollectImages(chapterURL, reader)
	}
	if len(pages) == 0 {
		pages = adapters.CollectImages(chapterURL, doc.Find("img.img-loading").Parent())
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%s: no page images found at %s", a.siteType, chapterURL)
	}
	return pages, nil
}
