// Package repo 提供带重试的商品库存仓储装饰器
package repo

import (
	"context"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_guard/internal/domain"
	"github.com/MorseWayne/stock_guard/internal/retry"
)

// ResilientProductRepository 重试装饰器：对存储 I/O 故障做有界线性退避重试。
// 未找到在仓储层表示为 (nil, nil)，是数据而非错误，天然不会被重试；
// 扣减守卫不满足（false, nil）同理。
type ResilientProductRepository struct {
	repo ProductRepository
	cfg  retry.Config
	lg   *zap.Logger
}

// NewResilientProductRepository 创建带重试的仓储
func NewResilientProductRepository(repo ProductRepository, cfg retry.Config, lg *zap.Logger) ProductRepository {
	return &ResilientProductRepository{repo: repo, cfg: cfg, lg: lg}
}

func (r *ResilientProductRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	return retry.Do(ctx, r.lg, r.cfg, "product.get_by_id", func(ctx context.Context) (*domain.Product, error) {
		return r.repo.GetByID(ctx, id)
	})
}

func (r *ResilientProductRepository) ListBelowStock(ctx context.Context, threshold int) ([]*domain.Product, error) {
	return retry.Do(ctx, r.lg, r.cfg, "product.list_below_stock", func(ctx context.Context) ([]*domain.Product, error) {
		return r.repo.ListBelowStock(ctx, threshold)
	})
}

func (r *ResilientProductRepository) DecrementStock(ctx context.Context, id int64, quantity int) (bool, error) {
	return retry.Do(ctx, r.lg, r.cfg, "product.decrement_stock", func(ctx context.Context) (bool, error) {
		return r.repo.DecrementStock(ctx, id, quantity)
	})
}

func (r *ResilientProductRepository) IncrementStock(ctx context.Context, id int64, quantity int) error {
	_, err := retry.Do(ctx, r.lg, r.cfg, "product.increment_stock", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.repo.IncrementStock(ctx, id, quantity)
	})
	return err
}

func (r *ResilientProductRepository) UpdateStockCount(ctx context.Context, id int64, stock int) error {
	_, err := retry.Do(ctx, r.lg, r.cfg, "product.update_stock_count", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.repo.UpdateStockCount(ctx, id, stock)
	})
	return err
}
