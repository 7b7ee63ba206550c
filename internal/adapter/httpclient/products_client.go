package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aq2208/orders-service/internal/adapter/cache"
	"github.com/aq2208/orders-service/internal/apperr"
	domain "github.com/aq2208/orders-service/internal/entity"
	"github.com/aq2208/orders-service/internal/resilience"
)

// ProductsClient looks up catalog data and moves stock on the products
// microservice. Lookups are cache-aside per product id; stock adjustments
// invalidate the cache entries of every product they touch before they
// report success, so a concurrent reader can never be served a figure the
// adjustment just made stale.
type ProductsClient struct {
	http     *http.Client
	baseURL  string
	pipeline *resilience.Pipeline
	cache    cache.Store
	ttl      time.Duration
	log      *slog.Logger
}

func NewProductsClient(hc *http.Client, baseURL string, p *resilience.Pipeline, store cache.Store, ttl time.Duration, log *slog.Logger) *ProductsClient {
	return &ProductsClient{
		http:     hc,
		baseURL:  baseURL,
		pipeline: p,
		cache:    store,
		ttl:      ttl,
		log:      log.With("component", "products-client"),
	}
}

// GetProductsByIDs resolves products by id, serving what it can from cache
// and batching the misses into a single remote lookup.
//
// Fail-closed on remote failure: even when the cache produced partial hits,
// the whole call fails, because callers cannot tell "product missing" from
// "lookup failed" on a silently partial map.
func (c *ProductsClient) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	requested := dedupe(ids)
	found := make(map[string]domain.Product, len(requested))
	var missing []string

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range requested {
		id := id
		g.Go(func() error {
			raw, ok, err := c.cache.Get(gctx, cache.ProductKey(id))
			if err != nil {
				c.log.Warn("cache read failed, treating as miss", "product_id", id, "error", err)
				ok = false
			}
			var p domain.Product
			if ok {
				if jsonErr := json.Unmarshal([]byte(raw), &p); jsonErr != nil {
					ok = false
				}
			}
			mu.Lock()
			defer mu.Unlock()
			if ok {
				found[id] = p
			} else {
				missing = append(missing, id)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Fast path: everything was cached.
	if len(missing) == 0 {
		return found, nil
	}

	fetched, err := c.searchBatch(ctx, missing)
	if err != nil {
		c.log.Warn("batch product lookup failed", "missing", missing,
			"kind", apperr.KindOf(err).String(), "error", err.Error())
		return nil, err
	}

	for _, p := range fetched {
		if b, err := json.Marshal(p); err == nil {
			if err := c.cache.Set(ctx, cache.ProductKey(p.ID), string(b), c.ttl); err != nil {
				c.log.Warn("cache write failed", "product_id", p.ID, "error", err)
			}
		}
		found[p.ID] = p
	}
	return found, nil
}

func (c *ProductsClient) searchBatch(ctx context.Context, ids []string) ([]domain.Product, error) {
	var products []domain.Product
	err := c.pipeline.Execute(ctx, func(ctx context.Context) error {
		body, err := json.Marshal(map[string][]string{"ids": ids})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPut,
			c.baseURL+"/api/products/search/batch", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return resilience.StatusErr(resp.StatusCode)
		}

		var env envelope[[]domain.Product]
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return apperr.Wrap(apperr.KindUnexpected, "products API returned an unreadable body", err)
		}
		if !env.IsSuccess || env.Data == nil || len(*env.Data) == 0 {
			return &apperr.Error{
				Kind:    apperr.KindUnexpected,
				Message: nonEmpty(env.Message, "products API returned no products"),
				Errors:  env.Errors,
			}
		}
		products = *env.Data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

type adjustStockRequest struct {
	Items  []domain.StockAdjustment `json:"items"`
	Reduce bool                     `json:"reduce"`
}

// AdjustStock issues one batched stock movement for the whole adjustment set.
// Per-line calls are deliberately not offered: partial per-line success has
// no sane compensation ordering.
func (c *ProductsClient) AdjustStock(ctx context.Context, adjustments []domain.StockAdjustment, direction domain.StockDirection) ([]domain.Product, error) {
	var products []domain.Product
	err := c.pipeline.Execute(ctx, func(ctx context.Context) error {
		body, err := json.Marshal(adjustStockRequest{
			Items:  adjustments,
			Reduce: direction == domain.StockReduce,
		})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/api/products/stock/batch-update", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return resilience.StatusErr(resp.StatusCode)
		}

		var env envelope[[]domain.Product]
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return apperr.Wrap(apperr.KindUnexpected, "products API returned an unreadable body", err)
		}
		if !env.IsSuccess || env.Data == nil {
			return &apperr.Error{
				Kind:    apperr.KindUnexpected,
				Message: nonEmpty(env.Message, "stock adjustment was rejected"),
				Errors:  env.Errors,
			}
		}
		products = *env.Data
		return nil
	})
	if err != nil {
		c.log.Warn("stock adjustment failed", "direction", direction.String(),
			"kind", apperr.KindOf(err).String(), "error", err.Error())
		return nil, err
	}

	// Invalidate before reporting success; a stale stock figure must not
	// outlive the adjustment. The remote call already committed at this
	// point, so the failure carries its own kind: callers must treat the
	// stock as moved.
	for _, p := range products {
		if err := c.cache.Remove(ctx, cache.ProductKey(p.ID)); err != nil {
			return nil, apperr.Wrap(apperr.KindStaleCache,
				"stock adjusted but cache invalidation failed for product "+p.ID, err)
		}
	}
	return products, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
