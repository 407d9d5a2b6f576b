package adapters_test

import (
	"errors"
	"testing"

	"github.com/vrsandeep/mango-scraper/internal/adapters"
	"github.com/vrsandeep/mango-scraper/internal/adapters/mockadex"
)

func TestAdapterRegistry(t *testing.T) {
	adapters.UnregisterAll()
	t.Cleanup(adapters.UnregisterAll)
	adapters.Register(mockadex.New())

	t.Run("Get All Adapters", func(t *testing.T) {
		all := adapters.GetAll()
		if len(all) != 1 {
			t.Fatalf("Expected 1 adapter, got %d", len(all))
		}
		if all[0].SiteType != "mockadex" {
			t.Errorf("Expected site type 'mockadex', got '%s'", all[0].SiteType)
		}
	})

	t.Run("Get Existing Adapter", func(t *testing.T) {
		a, ok := adapters.Get("mockadex")
		if !ok {
			t.Fatal("Expected to find adapter 'mockadex', but it was not found")
		}
		if a.Info().Name != "Mockadex" {
			t.Errorf("Expected adapter name 'Mockadex', got '%s'", a.Info().Name)
		}
		if !adapters.Has("mockadex") {
			t.Error("Has() should report a registered site type")
		}
	})

	t.Run("Lookup Unknown Site Type", func(t *testing.T) {
		_, err := adapters.Lookup("nonexistent")
		if !errors.Is(err, adapters.ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Panic on Duplicate Registration", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected registration of a duplicate adapter to panic, but it did not")
			}
		}()
		adapters.Register(mockadex.New())
	})
}
