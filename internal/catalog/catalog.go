// Package catalog serves product lookups for the checkout lane. Listings
// are read-mostly, so they go through a cache with a short TTL; writes to
// products or stock must invalidate through InvalidateCategories.
package catalog

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"cedipos/backend/internal/cache"
	"cedipos/backend/internal/domain"
	"cedipos/backend/internal/store"
)

const listingTTL = 5 * time.Minute

const (
	allProductsKey    = "catalog:all"
	categoryKeyPrefix = "catalog:cat:"
)

type Service struct {
	repo  store.Repository
	cache cache.CatalogCache
}

func New(repo store.Repository, c cache.CatalogCache) *Service {
	if c == nil {
		c = cache.NoopCatalogCache{}
	}
	return &Service{repo: repo, cache: c}
}

func (s *Service) List(ctx context.Context) ([]domain.Product, error) {
	if products, hit, err := s.cache.Get(ctx, allProductsKey); err == nil && hit {
		return products, nil
	} else if err != nil {
		log.Printf("[catalog] cache read failed key=%s err=%v", allProductsKey, err)
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if err := s.cache.Set(ctx, allProductsKey, products, listingTTL); err != nil {
		log.Printf("[catalog] cache write failed key=%s err=%v", allProductsKey, err)
	}
	return products, nil
}

func (s *Service) ListByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	key := categoryKey(category)
	if products, hit, err := s.cache.Get(ctx, key); err == nil && hit {
		return products, nil
	} else if err != nil {
		log.Printf("[catalog] cache read failed key=%s err=%v", key, err)
	}

	products, err := s.repo.ListProductsByCategory(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list products by category: %w", err)
	}
	if err := s.cache.Set(ctx, key, products, listingTTL); err != nil {
		log.Printf("[catalog] cache write failed key=%s err=%v", key, err)
	}
	return products, nil
}

func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) LookupByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, store.ErrNotFound
	}
	return s.repo.GetProductByBarcode(ctx, barcode)
}

// Search matches the query against product names and barcodes,
// case-insensitively, over the cached full listing.
func (s *Service) Search(ctx context.Context, query string) ([]domain.Product, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	products, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return products, nil
	}
	out := make([]domain.Product, 0)
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), query) || strings.Contains(p.Barcode, query) {
			out = append(out, p)
		}
	}
	return out, nil
}

// InvalidateCategories drops the cached listings affected by a product or
// stock write. Cache errors are logged, never surfaced; the TTL bounds how
// stale a listing can get if invalidation fails.
func (s *Service) InvalidateCategories(ctx context.Context, categories ...string) {
	keys := []string{allProductsKey}
	for _, c := range categories {
		if strings.TrimSpace(c) == "" {
			continue
		}
		keys = append(keys, categoryKey(c))
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		log.Printf("[catalog] cache invalidate failed err=%v", err)
	}
}

func categoryKey(category string) string {
	return categoryKeyPrefix + strings.ToLower(strings.TrimSpace(category))
}
