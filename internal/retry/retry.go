// Package retry 提供带线性退避的有界重试执行器。
// 只覆盖数据访问类的瞬时故障；业务规则类拒绝（库存不足、未找到等）
// 是确定性的，首轮即原样返回。
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_guard/internal/domain"
)

// Config 重试参数
type Config struct {
	MaxAttempts int           // 总尝试次数（含首轮）
	Delay       time.Duration // 退避基数，第 n 次重试前等待 Delay*n
}

// DefaultConfig 默认参数：3 次尝试，1s 退避基数
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, Delay: 1 * time.Second}
}

// Do 以重试方式执行 fn。
// 第 attempt 次失败后、下一次尝试前等待 Delay*attempt（线性退避），
// 最后一次失败后不等待。退避通过定时器挂起，不阻塞其他 goroutine，
// 且可被上下文取消打断。重试耗尽后返回 INVENTORY_ERROR，
// 错误链保留最后一次的原始错误。
func Do[T any](ctx context.Context, lg *zap.Logger, cfg Config, opName string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				lg.Info("operation recovered after retry",
					zap.String("operation", opName),
					zap.Int("attempt", attempt),
					zap.Duration("elapsed", time.Since(start)),
				)
			}
			return result, nil
		}

		// 确定性拒绝不重试，原样透传
		if !domain.IsRetryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.Delay * time.Duration(attempt)
		lg.Warn("operation failed, will retry",
			zap.String("operation", opName),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)

		if err := sleep(ctx, delay); err != nil {
			return zero, domain.NewStockError(domain.CodeInventory,
				fmt.Sprintf("operation %s cancelled during backoff", opName), err)
		}
	}

	lg.Error("operation failed after all attempts",
		zap.String("operation", opName),
		zap.Int("attempts", cfg.MaxAttempts),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(lastErr),
	)
	return zero, domain.NewStockError(domain.CodeInventory,
		fmt.Sprintf("operation %s failed after %d attempts", opName, cfg.MaxAttempts), lastErr)
}

// sleep 可被上下文打断的非阻塞等待
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
