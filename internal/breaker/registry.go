package breaker

import (
	"sync"

	"go.uber.org/zap"
)

// Registry 管理一组命名熔断器实例。
// 注册表由组装方（main）持有并注入，各实例配置与状态彼此独立。
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	lg       *zap.Logger
}

// NewRegistry 创建空注册表
func NewRegistry(lg *zap.Logger) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		lg:       lg,
	}
}

// Register 创建并注册一个命名熔断器；重名时返回已存在的实例
func (r *Registry) Register(name string, cfg Config) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, cfg, r.lg)
	r.breakers[name] = b
	return b
}

// Get 按名称查找实例
func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

// HealthSummary 聚合统计
type HealthSummary struct {
	Total    int `json:"total"`
	Closed   int `json:"closed"`
	Open     int `json:"open"`
	HalfOpen int `json:"half_open"`
}

// HealthReport 聚合健康视图，适配 /healthz 端点。
// Healthy 当且仅当没有任何实例处于 OPEN。
type HealthReport struct {
	Healthy  bool               `json:"healthy"`
	Circuits map[string]Metrics `json:"circuits"`
	Summary  HealthSummary      `json:"summary"`
}

// Health 生成聚合健康报告
func (r *Registry) Health() HealthReport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := HealthReport{
		Healthy:  true,
		Circuits: make(map[string]Metrics, len(r.breakers)),
	}
	for name, b := range r.breakers {
		m := b.Metrics()
		report.Circuits[name] = m
		report.Summary.Total++
		switch b.State() {
		case StateOpen:
			report.Summary.Open++
			report.Healthy = false
		case StateHalfOpen:
			report.Summary.HalfOpen++
		default:
			report.Summary.Closed++
		}
	}
	return report
}

// ResetAll 重置全部实例（运维端点使用）
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}
