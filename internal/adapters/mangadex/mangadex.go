// Package mangadex discovers chapters through the public MangaDex API.
package mangadex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/vrsandeep/mango-scraper/internal/adapters"
	"github.com/vrsandeep/mango-scraper/internal/models"
	"github.com/vrsandeep/mango-scraper/internal/util"
)

const (
	SiteType   = "mangadex"
	feedLimit  = 500
	apiBaseURL = "https://api.mangadex.org"
)

var idPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// Adapter implements models.SiteAdapter for MangaDex. Source URLs are title
// pages (https://mangadex.org/title/<uuid>/...) and chapter URLs are
// https://mangadex.org/chapter/<uuid>.
type Adapter struct {
	http       adapters.Getter
	apiBaseURL string
	language   string
}

func New(getter adapters.Getter) *Adapter {
	return NewWithBaseURL(getter, apiBaseURL)
}

func NewWithBaseURL(getter adapters.Getter, baseURL string) *Adapter {
	return &Adapter{http: getter, apiBaseURL: strings.TrimRight(baseURL, "/"), language: "en"}
}

func (a *Adapter) Info() models.AdapterInfo {
	return models.AdapterInfo{SiteType: SiteType, Name: "MangaDex"}
}

// Discover pages through the manga feed in ascending chapter order. Chapters
// without a number or hosted externally are skipped.
func (a *Adapter) Discover(ctx context.Context, sourceURL string) ([]models.DiscoveredChapter, error) {
	mangaID := idPattern.FindString(sourceURL)
	if mangaID == "" {
		return nil, fmt.Errorf("mangadex: no manga id in %q", sourceURL)
	}

	var chapters []models.DiscoveredChapter
	offset := 0
	for {
		q := url.Values{}
		q.Set("limit", fmt.Sprintf("%d", feedLimit))
		q.Set("offset", fmt.Sprintf("%d", offset))
		q.Set("order[chapter]", "asc")
		q.Add("translatedLanguage[]", a.language)
		endpoint := fmt.Sprintf("%s/manga/%s/feed?%s", a.apiBaseURL, mangaID, q.Encode())

		body, err := a.http.GetBody(ctx, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("mangadex: fetching feed: %w", err)
		}
		var feed ChapterFeedResponse
		if err := json.Unmarshal(body, &feed); err != nil {
			return nil, fmt.Errorf("mangadex: decoding feed: %w", err)
		}

		for _, ch := range feed.Data {
			if ch.Attributes.ExternalURL != "" || ch.Attributes.Pages == 0 {
				continue
			}
			number, ok := util.ParseBareNumber(ch.Attributes.Chapter)
			if !ok {
				continue
			}
			chapters = append(chapters, models.DiscoveredChapter{
				Number: number,
				URL:    "https://mangadex.org/chapter/" + ch.ID,
				Title:  ch.Attributes.Title,
			})
		}

		if len(feed.Data) < feedLimit {
			break
		}
		offset += feedLimit
	}

	// Several groups can publish the same chapter; keep the first.
	return util.NormalizeListing(chapters), nil
}

func (a *Adapter) FetchPages(ctx context.Context, chapterURL string) ([]string, error) {
	chapterID := idPattern.FindString(chapterURL)
	if chapterID == "" {
		return nil, fmt.Errorf("mangadex: no chapter id in %q", chapterURL)
	}
	body, err := a.http.GetBody(ctx, fmt.Sprintf("%s/at-home/server/%s", a.apiBaseURL, chapterID), nil)
	if err != nil {
		return nil, fmt.Errorf("mangadex: fetching at-home server: %w", err)
	}
	var atHome AtHomeServerResponse
	if err := json.Unmarshal(body, &atHome); err != nil {
		return nil, fmt.Errorf("mangadex: decoding at-home server: %w", err)
	}

	pages := make([]string, 0, len(atHome.Chapter.Data))
	for _, file := range atHome.Chapter.Data {
		pages = append(pages, fmt.Sprintf("%s/data/%s/%s", atHome.BaseURL, atHome.Chapter.Hash, file))
	}
	return pages, nil
}
