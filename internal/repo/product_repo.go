// Package repo 实现库存数据访问层，负责与数据库的交互。
package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MorseWayne/stock_guard/internal/domain"
)

// ProductRepository 定义商品库存数据访问接口。
// 错误面约定：未找到返回 (nil, nil)，由上层翻译为业务错误；
// 任何非 nil error 均视为基础设施故障，可重试。
type ProductRepository interface {
	// GetByID 按主键点查
	GetByID(ctx context.Context, id int64) (*domain.Product, error)

	// ListBelowStock 查询库存低于阈值的商品，按库存升序
	ListBelowStock(ctx context.Context, threshold int) ([]*domain.Product, error)

	// DecrementStock 带守卫的原子扣减：单条 UPDATE 附带 stock_count >= quantity
	// 条件，返回条件是否满足（affected rows > 0）。并发扣减的超卖防护
	// 依赖该守卫，而不是读-改-写序列。
	DecrementStock(ctx context.Context, id int64, quantity int) (bool, error)

	// IncrementStock 无条件增加库存（补货/退货）
	IncrementStock(ctx context.Context, id int64, quantity int) error

	// UpdateStockCount 管理员直接设置库存值
	UpdateStockCount(ctx context.Context, id int64, stock int) error
}

// productRepo 基于 database/sql 的实现
type productRepo struct {
	db *sql.DB
}

// NewProductRepository 创建商品库存仓储实例
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepo{db: db}
}

const productColumns = "id, name, sku, price, stock_count, created_at, updated_at"

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	p := &domain.Product{}
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.StockCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetByID 按主键获取商品库存记录
func (r *productRepo) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	query := fmt.Sprintf("SELECT %s FROM products WHERE id = ?", productColumns)

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product by id: %w", err)
	}
	return p, nil
}

// ListBelowStock 查询低库存商品，按库存升序排列
func (r *productRepo) ListBelowStock(ctx context.Context, threshold int) ([]*domain.Product, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM products
		WHERE stock_count < ?
		ORDER BY stock_count ASC
	`, productColumns)

	rows, err := r.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("query low stock products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate low stock products: %w", err)
	}
	return products, nil
}

// DecrementStock 原子扣减库存。
// WHERE 守卫保证 stock_count 不会被并发扣减置为负数；
// affected == 0 表示库存不足（或商品不存在），由上层区分。
func (r *productRepo) DecrementStock(ctx context.Context, id int64, quantity int) (bool, error) {
	query := `
		UPDATE products
		SET stock_count = stock_count - ?, updated_at = ?
		WHERE id = ? AND stock_count >= ?
	`

	result, err := r.db.ExecContext(ctx, query, quantity, time.Now(), id, quantity)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get affected rows: %w", err)
	}
	return affected > 0, nil
}

// IncrementStock 增加库存，无不足守卫
func (r *productRepo) IncrementStock(ctx context.Context, id int64, quantity int) error {
	query := `
		UPDATE products
		SET stock_count = stock_count + ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, quantity, time.Now(), id)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("increment stock: product %d not found", id)
	}
	return nil
}

// UpdateStockCount 直接设置库存值（管理员纠偏）
func (r *productRepo) UpdateStockCount(ctx context.Context, id int64, stock int) error {
	query := `
		UPDATE products
		SET stock_count = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, stock, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update stock count: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update stock count: product %d not found", id)
	}
	return nil
}
