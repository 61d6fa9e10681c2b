package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_guard/internal/breaker"
	"github.com/MorseWayne/stock_guard/internal/middleware"
	"github.com/MorseWayne/stock_guard/internal/resp"
)

// HealthHandler 健康检查与熔断器运维端点
type HealthHandler struct {
	registry *breaker.Registry
	version  string
	logger   *zap.Logger
}

// NewHealthHandler 创建健康处理器实例
func NewHealthHandler(registry *breaker.Registry, version string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{registry: registry, version: version, logger: logger}
}

// Healthz 聚合健康视图：任一熔断器处于 OPEN 即视为不健康（503）
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	report := h.registry.Health()
	data := map[string]any{
		"status":   "ok",
		"version":  h.version,
		"healthy":  report.Healthy,
		"circuits": report.Circuits,
		"summary":  report.Summary,
	}
	if !report.Healthy {
		data["status"] = "degraded"
		resp.Error(w, http.StatusServiceUnavailable, resp.CodeCircuitOpen, "one or more circuits open", reqID, "")
		return
	}
	resp.OK(w, &data, reqID, "")
}

// GetCircuitBreakers 返回全部熔断器指标快照
// GET /api/v1/admin/circuit-breakers
func (h *HealthHandler) GetCircuitBreakers(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	report := h.registry.Health()
	resp.OK(w, &report, reqID, "")
}

// ResetCircuitBreakers 重置熔断器（指定 name 或全部）
// POST /api/v1/admin/circuit-breakers/reset?name=database
func (h *HealthHandler) ResetCircuitBreakers(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	name := r.URL.Query().Get("name")
	if name != "" {
		b, ok := h.registry.Get(name)
		if !ok {
			resp.Error(w, http.StatusNotFound, resp.CodeNotFound, "unknown circuit breaker: "+name, reqID, "")
			return
		}
		b.Reset()
	} else {
		h.registry.ResetAll()
	}

	h.logger.Info("circuit breakers reset",
		zap.String("request_id", reqID),
		zap.String("name", name),
	)
	resp.OK(w, h.registry.Health(), reqID, "")
}
