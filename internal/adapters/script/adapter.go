package script

import (
	"context"
	"fmt"

	"github.com/vrsandeep/mango-scraper/internal/models"
)

// ScriptError wraps a failure raised inside a script adapter.
type ScriptError struct {
	SiteType string
	Function string
	Err      error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script adapter %s: %s: %v", e.SiteType, e.Function, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// Adapter exposes a script Runtime as a models.SiteAdapter.
type Adapter struct {
	runtime *Runtime
}

func NewAdapter(runtime *Runtime) *Adapter {
	return &Adapter{runtime: runtime}
}

func (a *Adapter) Manifest() *Manifest { return a.runtime.manifest }

func (a *Adapter) Info() models.AdapterInfo {
	m := a.runtime.manifest
	return models.AdapterInfo{SiteType: m.SiteType, Name: m.Name, Version: m.Version}
}

func (a *Adapter) PageHeaders(chapterURL string) map[string]string {
	if ref := a.runtime.manifest.Referer; ref != "" {
		return map[string]string{"Referer": ref}
	}
	return nil
}

// Discover expects the script to return [{number, url, title?}, ...].
func (a *Adapter) Discover(ctx context.Context, sourceURL string) ([]models.DiscoveredChapter, error) {
	raw, err := a.runtime.call(ctx, "discover", sourceURL)
	if err != nil {
		return nil, a.wrap("discover", err)
	}
	if raw == nil {
		return []models.DiscoveredChapter{}, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, a.wrap("discover", fmt.Errorf("expected an array, got %T", raw))
	}

	chapters := make([]models.DiscoveredChapter, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, a.wrap("discover", fmt.Errorf("item %d is not an object", i))
		}
		number, ok := toFloat(obj["number"])
		if !ok {
			return nil, a.wrap("discover", fmt.Errorf("item %d has no numeric 'number'", i))
		}
		url, _ := obj["url"].(string)
		if url == "" {
			return nil, a.wrap("discover", fmt.Errorf("item %d has no 'url'", i))
		}
		title, _ := obj["title"].(string)
		chapters = append(chapters, models.DiscoveredChapter{Number: number, URL: url, Title: title})
	}
	return chapters, nil
}

// FetchPages expects the script to return an array of image URLs.
func (a *Adapter) FetchPages(ctx context.Context, chapterURL string) ([]string, error) {
	raw, err := a.runtime.call(ctx, "fetchPages", chapterURL)
	if err != nil {
		return nil, a.wrap("fetchPages", err)
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, a.wrap("fetchPages", fmt.Errorf("expected an array, got %T", raw))
	}
	pages := make([]string, 0, len(items))
	for i, item := range items {
		url, ok := item.(string)
		if !ok || url == "" {
			return nil, a.wrap("fetchPages", fmt.Errorf("item %d is not a url", i))
		}
		pages = append(pages, url)
	}
	return pages, nil
}

func (a *Adapter) wrap(fn string, err error) error {
	return &ScriptError{SiteType: a.runtime.manifest.SiteType, Function: fn, Err: err}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
