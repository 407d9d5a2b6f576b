// Package adapters keeps the set of site adapters known to the process,
// keyed by site type.
package adapters

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vrsandeep/mango-scraper/internal/models"
)

var ErrNotFound = errors.New("no adapter registered for site type")

var (
	mu       sync.RWMutex
	registry = make(map[string]models.SiteAdapter)
)

// Register adds a new adapter to the registry. It's called at startup.
func Register(a models.SiteAdapter) {
	mu.Lock()
	defer mu.Unlock()
	info := a.Info()
	if _, exists := registry[info.SiteType]; exists {
		// Developer error during setup.
		panic(fmt.Sprintf("adapter for site type '%s' is already registered", info.SiteType))
	}
	registry[info.SiteType] = a
}

// Get returns the adapter for a site type.
func Get(siteType string) (models.SiteAdapter, bool) {
	mu.RLock()
	defer mu.RUnlock()
	a, ok := registry[siteType]
	return a, ok
}

// Lookup is Get with an error suitable for wrapping.
func Lookup(siteType string) (models.SiteAdapter, error) {
	a, ok := Get(siteType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, siteType)
	}
	return a, nil
}

func Has(siteType string) bool {
	_, ok := Get(siteType)
	return ok
}

// GetAll returns the info of every registered adapter, sorted by site type.
func GetAll() []models.AdapterInfo {
	mu.RLock()
	defer mu.RUnlock()
	infos := make([]models.AdapterInfo, 0, len(registry))
	for _, a := range registry {
		infos = append(infos, a.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].SiteType < infos[j].SiteType })
	return infos
}

// UnregisterAll empties the registry. Only tests should need this.
func UnregisterAll() {
	mu.Lock()
	defer mu.Unlock()
	registry = make(map[string]models.SiteAdapter)
}
