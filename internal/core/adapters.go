package core

import (
	"log"

	"github.com/vrsandeep/mango-scraper/internal/adapters"
	"github.com/vrsandeep/mango-scraper/internal/adapters/generic"
	"github.com/vrsandeep/mango-scraper/internal/adapters/mangadex"
	"github.com/vrsandeep/mango-scraper/internal/adapters/mangakakalot"
	"github.com/vrsandeep/mango-scraper/internal/adapters/mockadex"
	"github.com/vrsandeep/mango-scraper/internal/adapters/script"
	"github.com/vrsandeep/mango-scraper/internal/adapters/weebcentral"
)

// RegisterAdapters registers the built-in site adapters, then any script
// adapters found under adapters.scripts_path. Built-in adapters win over
// scripts of the same site type.
func (a *App) RegisterAdapters() {
	adapters.Register(mangadex.New(a.fetcher))
	adapters.Register(mangakakalot.NewManganelo(a.fetcher))
	adapters.Register(mangakakalot.NewMangakakalot(a.fetcher))
	adapters.Register(weebcentral.New(a.fetcher))
	adapters.Register(generic.New(a.fetcher))
	adapters.Register(mockadex.New())

	path := a.config.Adapters.ScriptsPath
	if path == "" {
		return
	}
	n, err := script.RegisterDir(path, a.fetcher)
	if err != nil {
		log.Printf("Warning: failed to load script adapters from %s: %v", path, err)
		return
	}
	log.Printf("Loaded %d script adapter(s) from %s", n, path)
}
