package downloader

import (
	"context"
	"fmt"
	"sync"

	"github.com/vrsandeep/mango-scraper/internal/adapters"
	"github.com/vrsandeep/mango-scraper/internal/ingest"
	"github.com/vrsandeep/mango-scraper/internal/models"
)

// pageLoader lists the pages of one chapter and loads them by reference.
// References are stable across attempts so staged uploads can be reused.
type pageLoader interface {
	pageRefs(ctx context.Context) ([]string, error)
	load(ctx context.Context, ref string) ([]byte, error)
	// done is called once the chapter has been finalized.
	done()
}

// adapterLoader reads pages through a site adapter and the image fetcher.
type adapterLoader struct {
	adapter    models.SiteAdapter
	images     ImageFetcher
	chapterURL string
	headers    map[string]string
}

func newAdapterLoader(siteType, chapterURL string, images ImageFetcher) (*adapterLoader, error) {
	adapter, err := adapters.Lookup(siteType)
	if err != nil {
		return nil, err
	}
	l := &adapterLoader{adapter: adapter, images: images, chapterURL: chapterURL}
	if hp, ok := adapter.(models.PageHeaderProvider); ok {
		l.headers = hp.PageHeaders(chapterURL)
	}
	return l, nil
}

func (l *adapterLoader) pageRefs(ctx context.Context) ([]string, error) {
	return l.adapter.FetchPages(ctx, l.chapterURL)
}

func (l *adapterLoader) load(ctx context.Context, ref string) ([]byte, error) {
	img, err := l.images.Fetch(ctx, ref, l.headers)
	if err != nil {
		return nil, err
	}
	return img.Data, nil
}

func (l *adapterLoader) done() {}

// fileLoader reads pages out of a local archive or PDF.
type fileLoader struct {
	path   string
	onDone func(path string)

	once  sync.Once
	pages map[string][]byte
	names []string
	err   error
}

func (l *fileLoader) extract(ctx context.Context) error {
	l.once.Do(func() {
		pages, err := ingest.ExtractPages(ctx, l.path)
		if err != nil {
			l.err = err
			return
		}
		l.pages = make(map[string][]byte, len(pages))
		for _, pg := range pages {
			l.pages[pg.Name] = pg.Data
			l.names = append(l.names, pg.Name)
		}
	})
	return l.err
}

func (l *fileLoader) pageRefs(ctx context.Context) ([]string, error) {
	if err := l.extract(ctx); err != nil {
		return nil, err
	}
	return l.names, nil
}

func (l *fileLoader) load(ctx context.Context, ref string) ([]byte, error) {
	if err := l.extract(ctx); err != nil {
		return nil, err
	}
	data, ok := l.pages[ref]
	if !ok {
		return nil, fmt.Errorf("page %q not in %s", ref, l.path)
	}
	return data, nil
}

func (l *fileLoader) done() {
	if l.onDone != nil {
		l.onDone(l.path)
	}
}
