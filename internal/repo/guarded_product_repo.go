// Package repo 提供带熔断的商品库存仓储装饰器
package repo

import (
	"context"

	"github.com/MorseWayne/stock_guard/internal/breaker"
	"github.com/MorseWayne/stock_guard/internal/domain"
)

// GuardedProductRepository 熔断装饰器：所有存储调用经由同一个
// 命名熔断器（通常为 "database"）准入，存储持续故障时快速失败，
// 避免每个请求都吃满重试退避。
type GuardedProductRepository struct {
	repo ProductRepository
	cb   *breaker.Breaker
}

// NewGuardedProductRepository 创建带熔断的仓储
func NewGuardedProductRepository(repo ProductRepository, cb *breaker.Breaker) ProductRepository {
	return &GuardedProductRepository{repo: repo, cb: cb}
}

func (r *GuardedProductRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	var p *domain.Product
	err := r.cb.Do(ctx, "product.get_by_id", func(ctx context.Context) error {
		var err error
		p, err = r.repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *GuardedProductRepository) ListBelowStock(ctx context.Context, threshold int) ([]*domain.Product, error) {
	var products []*domain.Product
	err := r.cb.Do(ctx, "product.list_below_stock", func(ctx context.Context) error {
		var err error
		products, err = r.repo.ListBelowStock(ctx, threshold)
		return err
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (r *GuardedProductRepository) DecrementStock(ctx context.Context, id int64, quantity int) (bool, error) {
	var ok bool
	err := r.cb.Do(ctx, "product.decrement_stock", func(ctx context.Context) error {
		var err error
		ok, err = r.repo.DecrementStock(ctx, id, quantity)
		return err
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *GuardedProductRepository) IncrementStock(ctx context.Context, id int64, quantity int) error {
	return r.cb.Do(ctx, "product.increment_stock", func(ctx context.Context) error {
		return r.repo.IncrementStock(ctx, id, quantity)
	})
}

func (r *GuardedProductRepository) UpdateStockCount(ctx context.Context, id int64, stock int) error {
	return r.cb.Do(ctx, "product.update_stock_count", func(ctx context.Context) error {
		return r.repo.UpdateStockCount(ctx, id, stock)
	})
}
