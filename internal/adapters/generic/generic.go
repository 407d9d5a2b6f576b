// Package generic scrapes sites no dedicated adapter knows about, using
// link-text and image heuristics.
package generic

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

const SiteType = "generic"

var (
	chapterKeywords = []string{"chapter", "ch.", "cap"}

	// Reader containers, most specific first. The first one holding images wins.
	containerSelectors = []string{
		".chapter-content", ".reading-content", ".chapter-images", ".manga-images",
		".reader-content", ".chapter-body", "#chapter-content", "#reading-content", "#pages",
		".pages", ".page-break", `[class*="chapter"][class*="content"]`,
		`[class*="reading"][class*="content"]`, `[class*="page"][class*="container"]`, ".content",
	}
)

type Adapter struct {
	http adapters.Getter
}

func New(getter adapters.Getter) *Adapter {
	return &Adapter{http: getter}
}

func (a *Adapter) Info() models.AdapterInfo {
	return models.AdapterInfo{SiteType: SiteType, Name: "Generic"}
}

// PageHeaders sends the chapter page as Referer; most hotlink guards only check that.
func (a *Adapter) PageHeaders(chapterURL string) map[string]string {
	return map[string]string{"Referer": chapterURL}
}

func (a *Adapter) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := a.http.GetBody(ctx, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("generic: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("generic: parsing %s: %w", pageURL, err)
	}
	return doc, nil
}

func (a *Adapter) Discover(ctx context.Context, sourceURL string) ([]models.DiscoveredChapter, error) {
	doc, err := a.document(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	var chapters []models.DiscoveredChapter
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		text := strings.TrimSpace(s.Text())
		if !looksLikeChapter(text) && !looksLikeChapter(href) {
			return
		}
		number, ok := util.ParseChapterNumber(text)
		if !ok {
			number, ok = util.ParseBareNumber(text)
		}
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

	for _, selector := range containerSelectors {
		container := doc.Find(selector).First()
		if container.Length() == 0 {
			continue
		}
		if pages := adapters.CollectImages(chapterURL, container); len(pages) > 0 {
			return pages, nil
		}
	}
	if pages := adapters.CollectImages(chapterURL, doc.Selection); len(pages) > 0 {
		return pages, nil
	}
	return nil, fmt.Errorf("generic: no page images found at %s", chapterURL)
}

func looksLikeChapter(s string) bool {
	s = strings.ToLower(s)
	for _, kw := range chapterKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
