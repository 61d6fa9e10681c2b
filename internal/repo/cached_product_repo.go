// Package repo 提供带缓存的商品库存仓储装饰器
package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/MorseWayne/stock_guard/internal/cache"
	"github.com/MorseWayne/stock_guard/internal/domain"
)

// CachedProductRepository 读穿透缓存装饰器。
// 只缓存点查；任何写操作都使对应键失效，保证后续校验读到新库存。
type CachedProductRepository struct {
	repo  ProductRepository
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedProductRepository 创建带缓存的仓储
func NewCachedProductRepository(repo ProductRepository, c cache.Cache, ttl time.Duration) ProductRepository {
	return &CachedProductRepository{repo: repo, cache: c, ttl: ttl}
}

func (r *CachedProductRepository) productKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

// GetByID 先查缓存，未命中回源并回填
func (r *CachedProductRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	key := r.productKey(id)

	var cached domain.Product
	if err := r.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}
	// 未命中与缓存故障同样回源，不向上冒泡

	p, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}

	_ = r.cache.Set(ctx, key, p, r.ttl)
	return p, nil
}

// ListBelowStock 低库存扫描不缓存：告警必须反映即时库存
func (r *CachedProductRepository) ListBelowStock(ctx context.Context, threshold int) ([]*domain.Product, error) {
	return r.repo.ListBelowStock(ctx, threshold)
}

// DecrementStock 写操作后使缓存失效
func (r *CachedProductRepository) DecrementStock(ctx context.Context, id int64, quantity int) (bool, error) {
	ok, err := r.repo.DecrementStock(ctx, id, quantity)
	if err == nil {
		_ = r.cache.Del(ctx, r.productKey(id))
	}
	return ok, err
}

// IncrementStock 写操作后使缓存失效
func (r *CachedProductRepository) IncrementStock(ctx context.Context, id int64, quantity int) error {
	err := r.repo.IncrementStock(ctx, id, quantity)
	if err == nil {
		_ = r.cache.Del(ctx, r.productKey(id))
	}
	return err
}

// UpdateStockCount 写操作后使缓存失效
func (r *CachedProductRepository) UpdateStockCount(ctx context.Context, id int64, stock int) error {
	err := r.repo.UpdateStockCount(ctx, id, stock)
	if err == nil {
		_ = r.cache.Del(ctx, r.productKey(id))
	}
	return err
}
