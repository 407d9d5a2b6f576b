// Package script hosts site adapters written in JavaScript. Each adapter is a
// directory holding adapter.json and an entry script that exports
// discover(sourceURL, api) and fetchPages(chapterURL, api).
package script

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/vrsandeep/mango-scraper/internal/adapters"
)

// LoadDir loads every adapter under root. When two directories declare the
// same site type, the one with the highest version wins. Broken adapters are
// logged and skipped.
func LoadDir(root string, getter adapters.Getter) ([]*Adapter, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read adapters directory: %w", err)
	}

	best := make(map[string]*Manifest)
	dirs := make(map[string]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		m, err := LoadManifest(dir)
		if err != nil {
			log.Printf("Script adapters: skipping %s: %v", dir, err)
			continue
		}
		if cur, ok := best[m.SiteType]; ok && !m.NewerThan(cur) {
			log.Printf("Script adapters: %s %s shadowed by %s", m.SiteType, m.Version, cur.Version)
			continue
		}
		best[m.SiteType] = m
		dirs[m.SiteType] = dir
	}

	var loaded []*Adapter
	for siteType, m := range best {
		rt, err := NewRuntime(m, dirs[siteType], getter)
		if err != nil {
			log.Printf("Script adapters: skipping %s: %v", dirs[siteType], err)
			continue
		}
		loaded = append(loaded, NewAdapter(rt))
	}
	return loaded, nil
}

// RegisterDir loads root and registers every adapter whose site type is not
// already taken by a built-in adapter. It returns the number registered.
func RegisterDir(root string, getter adapters.Getter) (int, error) {
	loaded, err := LoadDir(root, getter)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range loaded {
		info := a.Info()
		if adapters.Has(info.SiteType) {
			log.Printf("Script adapters: %s is provided by a built-in adapter, ignoring script", info.SiteType)
			continue
		}
		adapters.Register(a)
		log.Printf("Script adapters: registered %s v%s", info.SiteType, info.Version)
		n++
	}
	return n, nil
}
