// Package service 实现库存一致性核心的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MorseWayne/stock_guard/internal/domain"
	"github.com/MorseWayne/stock_guard/internal/mq"
	"github.com/MorseWayne/stock_guard/internal/repo"
)

// StockService 定义库存核心操作接口。
// 所有触达存储的操作由仓储装饰链提供重试与熔断；
// 业务规则拒绝（参数非法、未找到、库存不足）确定性返回，不重试。
type StockService interface {
	// ValidateStock 校验指定数量是否可满足，只读不变更
	ValidateStock(ctx context.Context, productID int64, quantity int, vctx *domain.ValidationContext) (*domain.StockValidationResult, error)

	// ReserveStock 校验通过后生成建议性预留记录，不锁定也不扣减库存
	ReserveStock(ctx context.Context, productID int64, quantity int, userID int64, vctx *domain.ValidationContext) (*domain.StockReservation, error)

	// DecrementStock 扣减库存（销售路径），带不足守卫，绝不产生负库存
	DecrementStock(ctx context.Context, productID int64, quantity int, mctx *domain.MutationContext) (*domain.StockChange, error)

	// IncrementStock 增加库存（补货/退货），无不足守卫
	IncrementStock(ctx context.Context, productID int64, quantity int, mctx *domain.MutationContext) (*domain.StockChange, error)

	// GetLowStockProducts 扫描低于阈值的商品并派生告警级别
	GetLowStockProducts(ctx context.Context, threshold int) ([]*domain.LowStockAlert, error)

	// ValidateMultipleStock 顺序批量校验；批量本身从不失败
	ValidateMultipleStock(ctx context.Context, items []domain.StockItem, vctx *domain.ValidationContext) *domain.BulkValidationResult
}

// stockService 实现StockService接口
type stockService struct {
	repo      repo.ProductRepository
	alerts    mq.AlertPublisher
	lg        *zap.Logger
	threshold int // 低库存阈值
}

// NewStockService 创建库存服务实例。
// alerts 可传 mq.NoopAlertPublisher{} 关闭旁路通知。
func NewStockService(r repo.ProductRepository, alerts mq.AlertPublisher, lg *zap.Logger, lowStockThreshold int) StockService {
	if lowStockThreshold <= 0 {
		lowStockThreshold = domain.DefaultLowStockThreshold
	}
	if alerts == nil {
		alerts = mq.NoopAlertPublisher{}
	}
	return &stockService{
		repo:      r,
		alerts:    alerts,
		lg:        lg,
		threshold: lowStockThreshold,
	}
}

// ValidateStock 校验库存可用性。
// 输入非法时走快速路径：直接返回不可用结果，不触达存储。
func (s *stockService) ValidateStock(ctx context.Context, productID int64, quantity int, vctx *domain.ValidationContext) (*domain.StockValidationResult, error) {
	now := time.Now()

	if productID <= 0 || quantity <= 0 {
		result := &domain.StockValidationResult{
			Available:         false,
			ProductID:         productID,
			RequestedQuantity: quantity,
			Message:           "invalid product id or quantity",
			Timestamp:         now,
		}
		s.logValidation(result, "", vctx)
		return result, nil
	}

	p, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return nil, domain.NewStockError(domain.CodeStockFetch,
			fmt.Sprintf("failed to fetch stock for product %d", productID), err)
	}
	if p == nil {
		return nil, domain.NewProductNotFound(productID)
	}

	available := p.StockCount >= quantity
	result := &domain.StockValidationResult{
		Available:         available,
		CurrentStock:      p.StockCount,
		RequestedQuantity: quantity,
		ProductID:         productID,
		Timestamp:         now,
	}
	if available {
		result.Message = fmt.Sprintf("stock available: %d in stock", p.StockCount)
	} else {
		result.Message = fmt.Sprintf("insufficient stock: current %d, requested %d", p.StockCount, quantity)
	}

	if available && p.StockCount > 0 && p.StockCount <= s.threshold {
		result.Warnings = append(result.Warnings, "low stock")
	}
	if quantity > domain.LargeQuantityThreshold {
		result.Warnings = append(result.Warnings, "large quantity")
	}

	s.logValidation(result, p.Name, vctx)
	return result, nil
}

// logValidation 输出校验审计日志
func (s *stockService) logValidation(result *domain.StockValidationResult, productName string, vctx *domain.ValidationContext) {
	fields := []zap.Field{
		zap.String("action", "STOCK_VALIDATION"),
		zap.Int64("product_id", result.ProductID),
		zap.String("product_name", productName),
		zap.Int("requested", result.RequestedQuantity),
		zap.Int("current_stock", result.CurrentStock),
		zap.Bool("available", result.Available),
		zap.Strings("warnings", result.Warnings),
	}
	if vctx != nil {
		fields = append(fields, zap.String("source", vctx.Source))
		if vctx.UserID != nil {
			fields = append(fields, zap.Int64("user_id", *vctx.UserID))
		}
	}
	s.lg.Info("stock validation", fields...)
}

// ReserveStock 先校验后生成预留。预留只是建议性记账：
// 不做任何库存变更或锁定，到期也无人清扫，ExpiresAt 仅供读取方参考。
func (s *stockService) ReserveStock(ctx context.Context, productID int64, quantity int, userID int64, vctx *domain.ValidationContext) (*domain.StockReservation, error) {
	result, err := s.ValidateStock(ctx, productID, quantity, vctx)
	if err != nil {
		return nil, err
	}
	if !result.Available {
		return nil, domain.NewStockError(domain.CodeInsufficientStock, result.Message, nil)
	}

	now := time.Now()
	reservation := &domain.StockReservation{
		ID:         uuid.New().String(),
		ProductID:  productID,
		UserID:     userID,
		Quantity:   quantity,
		ReservedAt: now,
		ExpiresAt:  now.Add(domain.ReservationTTL),
		Status:     domain.ReservationActive,
	}

	s.lg.Info("stock reserved",
		zap.String("action", "STOCK_RESERVED"),
		zap.String("reservation_id", reservation.ID),
		zap.Int64("product_id", productID),
		zap.Int64("user_id", userID),
		zap.Int("quantity", quantity),
		zap.Time("expires_at", reservation.ExpiresAt),
	)
	return reservation, nil
}

// DecrementStock 扣减库存。
// 预读用于生成对用户友好的不足提示；真正的并发防护是仓储层
// UPDATE ... WHERE stock_count >= ? 守卫，affected=0 同样按不足拒绝。
func (s *stockService) DecrementStock(ctx context.Context, productID int64, quantity int, mctx *domain.MutationContext) (*domain.StockChange, error) {
	if productID <= 0 || quantity <= 0 {
		return nil, domain.NewStockError(domain.CodeValidation, "invalid product id or quantity", nil)
	}
	if mctx == nil {
		mctx = &domain.MutationContext{Reason: domain.ReasonSale}
	}
	if !mctx.Reason.Valid() {
		return nil, domain.NewStockError(domain.CodeValidation,
			fmt.Sprintf("invalid stock change reason %q", mctx.Reason), nil)
	}

	p, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return nil, domain.NewStockError(domain.CodeStockFetch,
			fmt.Sprintf("failed to fetch stock for product %d", productID), err)
	}
	if p == nil {
		return nil, domain.NewProductNotFound(productID)
	}

	// 销售路径超卖守卫：不足必须拒绝，公式里的 clamp 只是防御性兜底
	if p.StockCount < quantity {
		return nil, domain.NewInsufficientStock(productID, p.StockCount, quantity)
	}

	ok, err := s.repo.DecrementStock(ctx, productID, quantity)
	if err != nil {
		return nil, domain.NewStockError(domain.CodeStockUpdate,
			fmt.Sprintf("failed to decrement stock for product %d", productID), err)
	}
	if !ok {
		// 预读通过但条件更新落空：并发扣减抢先，按不足拒绝
		return nil, domain.NewInsufficientStock(productID, p.StockCount, quantity)
	}

	newStock := p.StockCount - quantity
	if newStock < 0 {
		newStock = 0
	}

	change := s.buildChange(p.ID, p.StockCount, newStock, -quantity, mctx)
	s.lg.Info("stock decremented",
		zap.String("action", "STOCK_DECREMENTED"),
		zap.Int64("product_id", p.ID),
		zap.String("product_name", p.Name),
		zap.Int("previous_stock", change.PreviousStock),
		zap.Int("new_stock", change.NewStock),
		zap.Int("change_amount", change.ChangeAmount),
		zap.String("reason", string(change.Reason)),
	)

	// 告警是旁路动作，任何失败都不影响已完成的扣减
	s.checkLowStock(ctx, p, newStock)

	return change, nil
}

// IncrementStock 增加库存，与扣减对称但没有不足守卫
func (s *stockService) IncrementStock(ctx context.Context, productID int64, quantity int, mctx *domain.MutationContext) (*domain.StockChange, error) {
	if productID <= 0 || quantity <= 0 {
		return nil, domain.NewStockError(domain.CodeValidation, "invalid product id or quantity", nil)
	}
	if mctx == nil {
		mctx = &domain.MutationContext{Reason: domain.ReasonRestock}
	}
	if !mctx.Reason.Valid() {
		return nil, domain.NewStockError(domain.CodeValidation,
			fmt.Sprintf("invalid stock change reason %q", mctx.Reason), nil)
	}

	p, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return nil, domain.NewStockError(domain.CodeStockFetch,
			fmt.Sprintf("failed to fetch stock for product %d", productID), err)
	}
	if p == nil {
		return nil, domain.NewProductNotFound(productID)
	}

	if err := s.repo.IncrementStock(ctx, productID, quantity); err != nil {
		return nil, domain.NewStockError(domain.CodeStockUpdate,
			fmt.Sprintf("failed to increment stock for product %d", productID), err)
	}

	change := s.buildChange(p.ID, p.StockCount, p.StockCount+quantity, quantity, mctx)
	s.lg.Info("stock incremented",
		zap.String("action", "STOCK_INCREMENTED"),
		zap.Int64("product_id", p.ID),
		zap.String("product_name", p.Name),
		zap.Int("previous_stock", change.PreviousStock),
		zap.Int("new_stock", change.NewStock),
		zap.Int("change_amount", change.ChangeAmount),
		zap.String("reason", string(change.Reason)),
		zap.String("batch_number", mctx.BatchNumber),
		zap.String("supplier", mctx.Supplier),
	)
	return change, nil
}

// buildChange 构造库存变动记录
func (s *stockService) buildChange(productID int64, prev, next, amount int, mctx *domain.MutationContext) *domain.StockChange {
	change := &domain.StockChange{
		ProductID:     productID,
		PreviousStock: prev,
		NewStock:      next,
		ChangeAmount:  amount,
		Reason:        mctx.Reason,
		UserID:        mctx.UserID,
		OrderID:       mctx.OrderID,
		Timestamp:     time.Now(),
	}
	if mctx.BatchNumber != "" || mctx.Supplier != "" {
		change.Metadata = map[string]string{}
		if mctx.BatchNumber != "" {
			change.Metadata["batch_number"] = mctx.BatchNumber
		}
		if mctx.Supplier != "" {
			change.Metadata["supplier"] = mctx.Supplier
		}
	}
	return change
}

// GetLowStockProducts 扫描低库存商品并按告警级别分类
func (s *stockService) GetLowStockProducts(ctx context.Context, threshold int) ([]*domain.LowStockAlert, error) {
	if threshold <= 0 {
		threshold = s.threshold
	}

	products, err := s.repo.ListBelowStock(ctx, threshold)
	if err != nil {
		return nil, domain.NewStockError(domain.CodeLowStockFetch, "failed to fetch low stock products", err)
	}

	alerts := make([]*domain.LowStockAlert, 0, len(products))
	var warning, critical, outOfStock int
	for _, p := range products {
		severity := domain.SeverityForStock(p.StockCount)
		switch severity {
		case domain.SeverityOutOfStock:
			outOfStock++
		case domain.SeverityCritical:
			critical++
		default:
			warning++
		}
		alerts = append(alerts, &domain.LowStockAlert{
			ProductID:    p.ID,
			ProductName:  p.Name,
			CurrentStock: p.StockCount,
			Threshold:    threshold,
			Severity:     severity,
		})
	}

	s.lg.Info("low stock scan completed",
		zap.String("action", "LOW_STOCK_SCAN"),
		zap.Int("threshold", threshold),
		zap.Int("total", len(alerts)),
		zap.Int("warning", warning),
		zap.Int("critical", critical),
		zap.Int("out_of_stock", outOfStock),
	)
	return alerts, nil
}

// ValidateMultipleStock 顺序校验一组条目（购物车结算前校验）。
// 顺序执行保证单项日志有序，也避免批量校验压垮存储；
// 任何单项异常被捕获并转换为失败结果加错误条目，批量本身从不失败。
func (s *stockService) ValidateMultipleStock(ctx context.Context, items []domain.StockItem, vctx *domain.ValidationContext) *domain.BulkValidationResult {
	out := &domain.BulkValidationResult{
		Results: make([]*domain.StockValidationResult, 0, len(items)),
		Errors:  []string{},
	}

	for _, item := range items {
		result, err := s.ValidateStock(ctx, item.ProductID, item.Quantity, vctx)
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("product %d: %v", item.ProductID, err))
			result = &domain.StockValidationResult{
				Available:         false,
				ProductID:         item.ProductID,
				RequestedQuantity: item.Quantity,
				Message:           err.Error(),
				Timestamp:         time.Now(),
			}
		}
		out.Results = append(out.Results, result)
	}

	out.Valid = len(out.Errors) == 0
	return out
}

// checkLowStock 扣减后的低库存检查：
// 达到阈值时输出带管理员通知标记的告警日志并发布MQ事件。
// 该旁路的任何失败都被吞掉，库存变更的正确性不依赖告警成功。
func (s *stockService) checkLowStock(ctx context.Context, p *domain.Product, newStock int) {
	if newStock > s.threshold {
		return
	}

	severity := domain.SeverityForStock(newStock)
	alert := &domain.LowStockAlert{
		ProductID:    p.ID,
		ProductName:  p.Name,
		CurrentStock: newStock,
		Threshold:    s.threshold,
		Severity:     severity,
	}

	s.lg.Warn("low stock alert",
		zap.String("action", "LOW_STOCK_ALERT"),
		zap.Int64("product_id", p.ID),
		zap.String("product_name", p.Name),
		zap.Int("current_stock", newStock),
		zap.Int("threshold", s.threshold),
		zap.String("severity", string(severity)),
		zap.Bool("admin_notification", true),
	)

	if err := s.alerts.PublishLowStock(ctx, alert); err != nil {
		s.lg.Error("failed to publish low stock alert",
			zap.Int64("product_id", p.ID),
			zap.Error(err),
		)
	}
}
