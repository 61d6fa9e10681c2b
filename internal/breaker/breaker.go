// Package breaker 提供按逻辑下游隔离的三态熔断器。
// 每个实例保护一个下游（如 database），由组装方显式构造并注入，
// 不提供包级共享实例。
package breaker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_guard/internal/domain"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭（正常放行）
	StateClosed State = iota
	// StateOpen 打开（直接拒绝，不触达下游）
	StateOpen
	// StateHalfOpen 半开（限量试探恢复）
	StateHalfOpen
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config 熔断器参数，构造后不可变
type Config struct {
	FailureThreshold int           // 连续/窗口内失败多少次后打开
	RecoveryTimeout  time.Duration // OPEN 状态等待多久后允许试探
	MonitoringPeriod time.Duration // 超过该时长未再失败则清零失败计数
	HalfOpenMaxCalls int           // 半开期放行的调用总数上限
	SuccessThreshold int           // 半开期连续成功多少次后闭合
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		MonitoringPeriod: 60 * time.Second,
		HalfOpenMaxCalls: 3,
		SuccessThreshold: 2,
	}
}

// Metrics 状态快照，用于健康端点与日志
type Metrics struct {
	Name                string    `json:"name"`
	State               string    `json:"state"`
	Failures            int       `json:"failures"`
	Successes           int       `json:"successes"`
	TotalCalls          int64     `json:"total_calls"`
	CallsInHalfOpen     int       `json:"calls_in_half_open"`
	SuccessesInHalfOpen int       `json:"successes_in_half_open"`
	LastFailureTime     time.Time `json:"last_failure_time"`
	LastSuccessTime     time.Time `json:"last_success_time"`
	StateChangedAt      time.Time `json:"state_changed_at"`
}

// Breaker 三态熔断器。
// 计数器与状态迁移统一由互斥锁保护：宿主是多 goroutine 的，
// 裸计数自增会丢更新，且迁移必须与计数清零构成原子动作。
type Breaker struct {
	name string
	cfg  Config
	lg   *zap.Logger

	mu                  sync.Mutex
	state               State
	failures            int
	successes           int
	totalCalls          int64
	callsInHalfOpen     int
	successesInHalfOpen int
	lastFailureTime     time.Time
	lastSuccessTime     time.Time
	stateChangedAt      time.Time

	now func() time.Time // 测试时可替换
}

// New 创建熔断器实例
func New(name string, cfg Config, lg *zap.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = DefaultConfig().HalfOpenMaxCalls
	}
	return &Breaker{
		name:           name,
		cfg:            cfg,
		lg:             lg,
		state:          StateClosed,
		stateChangedAt: time.Now(),
		now:            time.Now,
	}
}

// Name 返回该实例保护的下游名称
func (b *Breaker) Name() string { return b.name }

// Do 执行受保护的调用：先做准入检查，拒绝时不触达 fn；
// 放行后将结果路由到成功/失败处理。
func (b *Breaker) Do(ctx context.Context, opName string, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		b.lg.Warn("circuit breaker rejected call",
			zap.String("breaker", b.name),
			zap.String("operation", opName),
			zap.Any("metrics", b.Metrics()),
		)
		return err
	}

	err := fn(ctx)
	if err != nil && domain.IsRetryable(err) {
		// 只有基础设施类失败计入熔断；业务规则拒绝说明下游是健康的
		b.onFailure(opName)
		return err
	}

	b.onSuccess()
	return err
}

// allow 准入检查，必要时完成 OPEN -> HALF_OPEN 的迁移
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		// 放行
	case StateOpen:
		if b.now().Sub(b.lastFailureTime) < b.cfg.RecoveryTimeout {
			return domain.NewStockError(domain.CodeCircuitOpen,
				"circuit breaker "+b.name+" is open, downstream temporarily unavailable", nil)
		}
		// 恢复窗口已过，转半开并放行本次调用
		b.transitionLocked(StateHalfOpen)
	case StateHalfOpen:
		if b.callsInHalfOpen >= b.cfg.HalfOpenMaxCalls {
			return domain.NewStockError(domain.CodeCircuitOpen,
				"circuit breaker "+b.name+" is half-open and probe budget exhausted", nil)
		}
	}

	b.totalCalls++
	if b.state == StateHalfOpen {
		// 半开期调用计数只增不减：这是试探窗口的总量上限，不是并发闸
		b.callsInHalfOpen++
	}
	return nil
}

// onSuccess 成功路径：先做失败遗忘，再推进半开闭合
func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.forgiveStaleFailuresLocked()
	b.successes++
	b.lastSuccessTime = b.now()

	if b.state == StateHalfOpen {
		b.successesInHalfOpen++
		if b.successesInHalfOpen >= b.cfg.SuccessThreshold {
			b.transitionLocked(StateClosed)
		}
	}
}

// onFailure 失败路径：半开期一次失败立即回到 OPEN，丢弃试探进度
func (b *Breaker) onFailure(opName string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.forgiveStaleFailuresLocked()
	b.failures++
	b.lastFailureTime = b.now()

	switch b.state {
	case StateHalfOpen:
		b.transitionLocked(StateOpen)
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	}

	b.lg.Warn("circuit breaker recorded failure",
		zap.String("breaker", b.name),
		zap.String("operation", opName),
		zap.Int("failures", b.failures),
		zap.Int("failure_threshold", b.cfg.FailureThreshold),
		zap.String("state", b.state.String()),
	)
}

// forgiveStaleFailuresLocked 监控周期外的失败不再计入打开条件
func (b *Breaker) forgiveStaleFailuresLocked() {
	if b.cfg.MonitoringPeriod <= 0 || b.failures == 0 {
		return
	}
	if b.now().Sub(b.lastFailureTime) > b.cfg.MonitoringPeriod {
		b.failures = 0
	}
}

// transitionLocked 执行状态迁移；迁移与计数清零必须原子完成。
// 每次迁移清零半开计数并记录时间戳；闭合时额外清零失败计数。
func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.callsInHalfOpen = 0
	b.successesInHalfOpen = 0
	b.stateChangedAt = b.now()
	if to == StateClosed {
		b.failures = 0
	}

	b.lg.Info("circuit breaker state changed",
		zap.String("action", actionForState(to)),
		zap.String("breaker", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Any("metrics", b.metricsLocked()),
	)
}

func actionForState(s State) string {
	switch s {
	case StateOpen:
		return "CIRCUIT_BREAKER_OPEN"
	case StateHalfOpen:
		return "CIRCUIT_BREAKER_HALF_OPEN"
	default:
		return "CIRCUIT_BREAKER_CLOSED"
	}
}

// State 返回当前状态
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metrics 返回完整状态快照
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metricsLocked()
}

func (b *Breaker) metricsLocked() Metrics {
	return Metrics{
		Name:                b.name,
		State:               b.state.String(),
		Failures:            b.failures,
		Successes:           b.successes,
		TotalCalls:          b.totalCalls,
		CallsInHalfOpen:     b.callsInHalfOpen,
		SuccessesInHalfOpen: b.successesInHalfOpen,
		LastFailureTime:     b.lastFailureTime,
		LastSuccessTime:     b.lastSuccessTime,
		StateChangedAt:      b.stateChangedAt,
	}
}

// ForceState 运维用：强制切换到指定状态。
// 强制 OPEN 时刷新失败时间戳，恢复窗口从此刻起算，
// 否则下一次准入会立即转入半开。
func (b *Breaker) ForceState(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(s)
	if s == StateOpen {
		b.lastFailureTime = b.now()
	}
}

// Reset 运维用：清空全部计数并回到 CLOSED
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.totalCalls = 0
	b.callsInHalfOpen = 0
	b.successesInHalfOpen = 0
	b.lastFailureTime = time.Time{}
	b.lastSuccessTime = time.Time{}
	b.stateChangedAt = b.now()

	b.lg.Info("circuit breaker reset",
		zap.String("action", "CIRCUIT_BREAKER_CLOSED"),
		zap.String("breaker", b.name),
	)
}
