package models

import "context"

// AdapterInfo describes a registered site adapter.
type AdapterInfo struct {
	SiteType string `json:"site_type"`
	Name     string `json:"name"`
	Version  string `json:"version,omitempty"`
}

// DiscoveredChapter is one entry of a source's chapter listing.
type DiscoveredChapter struct {
	Number float64 `json:"number"`
	URL    string  `json:"url"`
	Title  string  `json:"title,omitempty"`
}

// SiteAdapter discovers chapters and page images for one family of sites.
type SiteAdapter interface {
	Info() AdapterInfo
	// Discover returns the chapter listing of sourceURL ordered ascending by number.
	// An empty listing is not an error.
	Discover(ctx context.Context, sourceURL string) ([]DiscoveredChapter, error)
	// FetchPages returns the image URLs of a chapter in reading order.
	FetchPages(ctx context.Context, chapterURL string) ([]string, error)
}

// PageHeaderProvider is implemented by adapters whose image hosts need extra
// request headers, such as a Referer.
type PageHeaderProvider interface {
	PageHeaders(chapterURL string) map[string]string
}
