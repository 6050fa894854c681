// Package dashboard aggregates the overview payload shown on the landing
// page: the stat cards plus the most recent invoices, fetched from the
// backend in one round and cached briefly.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/billtrack/bff/internal/gateway"
	"github.com/billtrack/bff/internal/liststate"
	"github.com/billtrack/bff/model"
)

// Overview is the combined dashboard payload.
type Overview struct {
	Stats          model.DashboardStats `json:"stats"`
	RecentInvoices []model.Invoice      `json:"recentInvoices"`
}

// Provider fetches and caches dashboard overviews.
type Provider struct {
	invoices    *gateway.Invoices
	ttl         time.Duration
	maxEntries  int
	pageSize    int
	recentCount int

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	overview  Overview
	expiresAt time.Time
}

// NewProvider creates a dashboard provider. recentCount bounds the number
// of invoices shown in the recent-activity table.
func NewProvider(invoices *gateway.Invoices, ttl time.Duration, maxEntries, pageSize, recentCount int) *Provider {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	if recentCount <= 0 {
		recentCount = 6
	}
	return &Provider{
		invoices:    invoices,
		ttl:         ttl,
		maxEntries:  maxEntries,
		pageSize:    pageSize,
		recentCount: recentCount,
		cache:       make(map[string]cacheEntry),
	}
}

// Overview returns the stats and recent invoices for the requesting user.
// The two backend calls run concurrently; either failure fails the whole
// aggregation so the page can show one retryable error.
func (p *Provider) Overview(ctx context.Context) (Overview, bool, error) {
	key := cacheKey(ctx)

	if ov, hit := p.getFromCache(key); hit {
		return ov, true, nil
	}

	var (
		stats    model.DashboardStats
		page     model.PagedResult[model.Invoice]
		statsErr error
		listErr  error
		wg       sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		stats, statsErr = p.invoices.DashboardStats(ctx)
	}()
	go func() {
		defer wg.Done()
		page, listErr = p.invoices.List(ctx, liststate.ListRequest{
			Page:     1,
			PageSize: p.pageSize,
		})
	}()
	wg.Wait()

	if statsErr != nil {
		return Overview{}, false, statsErr
	}
	if listErr != nil {
		return Overview{}, false, listErr
	}

	recent := page.Items
	if len(recent) > p.recentCount {
		recent = recent[:p.recentCount]
	}

	ov := Overview{Stats: stats, RecentInvoices: recent}
	p.putInCache(key, ov)
	return ov, false, nil
}

// Invalidate drops the cached overview for the requesting user. Mutation
// handlers call this so the next dashboard load reflects the change.
func (p *Provider) Invalidate(ctx context.Context) {
	key := cacheKey(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cache, key)
}

// CacheLen returns the number of cached overviews. For testing.
func (p *Provider) CacheLen() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.cache)
}

// cacheKey scopes cached overviews per authenticated subject.
func cacheKey(ctx context.Context) string {
	if rctx := model.RequestContextFrom(ctx); rctx != nil && rctx.SubjectID != "" {
		return fmt.Sprintf("overview:%s", rctx.SubjectID)
	}
	return "overview:anonymous"
}

func (p *Provider) getFromCache(key string) (Overview, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, exists := p.cache[key]
	if !exists || time.Now().After(entry.expiresAt) {
		return Overview{}, false
	}
	return entry.overview, true
}

func (p *Provider) putInCache(key string, ov Overview) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.cache) >= p.maxEntries {
		p.evictExpired()
	}

	p.cache[key] = cacheEntry{
		overview:  ov,
		expiresAt: time.Now().Add(p.ttl),
	}
}

// evictExpired removes expired entries. Must be called with mu held.
func (p *Provider) evictExpired() {
	now := time.Now()
	for k, v := range p.cache {
		if now.After(v.expiresAt) {
			delete(p.cache, k)
		}
	}
}
