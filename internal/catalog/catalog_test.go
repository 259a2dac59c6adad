package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cedipos/backend/internal/domain"
	"cedipos/backend/internal/store"
	"cedipos/backend/internal/store/memory"
)

// recordingCache is an in-process CatalogCache used to observe hits,
// writes and invalidations.
type recordingCache struct {
	mu      sync.Mutex
	entries map[string][]domain.Product
	sets    int
	deletes int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: make(map[string][]domain.Product)}
}

func (c *recordingCache) Get(_ context.Context, key string) ([]domain.Product, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *recordingCache) Set(_ context.Context, key string, value []domain.Product, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	c.sets++
	return nil
}

func (c *recordingCache) Invalidate(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	c.deletes += len(keys)
	return nil
}

func TestListPopulatesAndServesFromCache(t *testing.T) {
	ctx := context.Background()
	cache := newRecordingCache()
	svc := New(memory.NewSeeded(), cache)

	first, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(first) == 0 {
		t.Fatalf("expected seeded products")
	}
	if cache.sets != 1 {
		t.Fatalf("expected one cache write, got %d", cache.sets)
	}

	second, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("second list failed: %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("second list must be a cache hit, got %d writes", cache.sets)
	}
	if len(second) != len(first) {
		t.Fatalf("cache returned %d products, want %d", len(second), len(first))
	}
}

func TestListByCategoryUsesSeparateKeys(t *testing.T) {
	ctx := context.Background()
	cache := newRecordingCache()
	svc := New(memory.NewSeeded(), cache)

	beverages, err := svc.ListByCategory(ctx, "beverage")
	if err != nil {
		t.Fatalf("list by category failed: %v", err)
	}
	for _, p := range beverages {
		if p.Category != "beverage" {
			t.Fatalf("unexpected category %q in beverage listing", p.Category)
		}
	}

	grocery, err := svc.ListByCategory(ctx, "grocery")
	if err != nil {
		t.Fatalf("list grocery failed: %v", err)
	}
	if len(grocery) == 0 || len(beverages) == 0 {
		t.Fatalf("expected seeded products in both categories")
	}
	if cache.sets != 2 {
		t.Fatalf("expected a cache entry per category, got %d writes", cache.sets)
	}
}

func TestInvalidateCategoriesDropsListings(t *testing.T) {
	ctx := context.Background()
	cache := newRecordingCache()
	svc := New(memory.NewSeeded(), cache)

	if _, err := svc.List(ctx); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if _, err := svc.ListByCategory(ctx, "beverage"); err != nil {
		t.Fatalf("list by category failed: %v", err)
	}

	svc.InvalidateCategories(ctx, "beverage")

	if _, err := svc.List(ctx); err != nil {
		t.Fatalf("relist failed: %v", err)
	}
	if cache.sets != 3 {
		t.Fatalf("expected repopulation after invalidate, got %d writes", cache.sets)
	}
}

func TestLookupByBarcode(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.NewSeeded(), nil)

	p, err := svc.LookupByBarcode(ctx, "6001002")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if p.Name != "Milo Sachet" {
		t.Fatalf("unexpected product %q", p.Name)
	}

	if _, err := svc.LookupByBarcode(ctx, "0000000"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.LookupByBarcode(ctx, "   "); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank barcode, got %v", err)
	}
}

func TestSearchFiltersByNameAndBarcode(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.NewSeeded(), nil)

	byName, err := svc.Search(ctx, "milo")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(byName) != 1 || byName[0].Name != "Milo Sachet" {
		t.Fatalf("unexpected name search result: %+v", byName)
	}

	byBarcode, err := svc.Search(ctx, "6001008")
	if err != nil {
		t.Fatalf("barcode search failed: %v", err)
	}
	if len(byBarcode) != 1 || byBarcode[0].Name != "Key Soap Bar" {
		t.Fatalf("unexpected barcode search result: %+v", byBarcode)
	}
}
