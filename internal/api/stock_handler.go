// Package api 提供库存核心的HTTP处理器实现。
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_guard/internal/domain"
	"github.com/MorseWayne/stock_guard/internal/middleware"
	"github.com/MorseWayne/stock_guard/internal/resp"
	"github.com/MorseWayne/stock_guard/internal/service"
)

// StockHandler 库存操作的HTTP处理器
type StockHandler struct {
	stockService service.StockService
	logger       *zap.Logger
}

// NewStockHandler 创建库存处理器实例
func NewStockHandler(stockService service.StockService, logger *zap.Logger) *StockHandler {
	return &StockHandler{stockService: stockService, logger: logger}
}

// validateStockRequest 校验请求
type validateStockRequest struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UserID    *int64 `json:"user_id,omitempty"`
	Source    string `json:"source,omitempty"`
}

// validateBatchRequest 批量校验请求
type validateBatchRequest struct {
	Items  []domain.StockItem `json:"items"`
	UserID *int64             `json:"user_id,omitempty"`
	Source string             `json:"source,omitempty"`
}

// reserveStockRequest 预留请求
type reserveStockRequest struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UserID    int64  `json:"user_id"`
	Source    string `json:"source,omitempty"`
}

// mutateStockRequest 扣减/增加请求
type mutateStockRequest struct {
	ProductID   int64                    `json:"product_id"`
	Quantity    int                      `json:"quantity"`
	Reason      domain.StockChangeReason `json:"reason"`
	OrderID     *int64                   `json:"order_id,omitempty"`
	UserID      *int64                   `json:"user_id,omitempty"`
	BatchNumber string                   `json:"batch_number,omitempty"`
	Supplier    string                   `json:"supplier,omitempty"`
}

// ValidateStock 校验库存可用性
// POST /api/v1/stock/validate
func (h *StockHandler) ValidateStock(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req validateStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}

	result, err := h.stockService.ValidateStock(r.Context(), req.ProductID, req.Quantity,
		&domain.ValidationContext{UserID: req.UserID, Source: req.Source})
	if err != nil {
		h.writeDomainError(w, r, "validate stock", err)
		return
	}
	resp.OK(w, result, reqID, "")
}

// ValidateBatch 批量校验库存（购物车结算前）
// POST /api/v1/stock/validate-batch
func (h *StockHandler) ValidateBatch(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req validateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}
	if len(req.Items) == 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "items must not be empty", reqID, "")
		return
	}

	// 批量校验从不失败，单项异常在结果的 errors 中体现
	result := h.stockService.ValidateMultipleStock(r.Context(), req.Items,
		&domain.ValidationContext{UserID: req.UserID, Source: req.Source})
	resp.OK(w, result, reqID, "")
}

// ReserveStock 预留库存
// POST /api/v1/stock/reserve
func (h *StockHandler) ReserveStock(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req reserveStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}
	if req.ProductID <= 0 || req.Quantity <= 0 {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid product id or quantity", reqID, "")
		return
	}

	reservation, err := h.stockService.ReserveStock(r.Context(), req.ProductID, req.Quantity, req.UserID,
		&domain.ValidationContext{Source: req.Source})
	if err != nil {
		h.writeDomainError(w, r, "reserve stock", err)
		return
	}
	resp.OK(w, reservation, reqID, "")
}

// DecrementStock 扣减库存（订单结算）
// POST /api/v1/stock/decrement
func (h *StockHandler) DecrementStock(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req mutateStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}
	if req.Reason == "" {
		req.Reason = domain.ReasonSale
	}

	change, err := h.stockService.DecrementStock(r.Context(), req.ProductID, req.Quantity,
		&domain.MutationContext{Reason: req.Reason, OrderID: req.OrderID, UserID: req.UserID})
	if err != nil {
		h.writeDomainError(w, r, "decrement stock", err)
		return
	}
	resp.OK(w, change, reqID, "")
}

// IncrementStock 增加库存（管理员补货）
// POST /api/v1/stock/increment
func (h *StockHandler) IncrementStock(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req mutateStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", reqID, "")
		return
	}
	if req.Reason == "" {
		req.Reason = domain.ReasonRestock
	}

	change, err := h.stockService.IncrementStock(r.Context(), req.ProductID, req.Quantity,
		&domain.MutationContext{
			Reason:      req.Reason,
			UserID:      req.UserID,
			BatchNumber: req.BatchNumber,
			Supplier:    req.Supplier,
		})
	if err != nil {
		h.writeDomainError(w, r, "increment stock", err)
		return
	}
	resp.OK(w, change, reqID, "")
}

// GetLowStockAlerts 获取低库存告警列表
// GET /api/v1/stock/alerts/low-stock?threshold=N
func (h *StockHandler) GetLowStockAlerts(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	threshold := 0
	if v := r.URL.Query().Get("threshold"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid threshold", reqID, "")
			return
		}
		threshold = n
	}

	alerts, err := h.stockService.GetLowStockProducts(r.Context(), threshold)
	if err != nil {
		h.writeDomainError(w, r, "get low stock alerts", err)
		return
	}
	resp.OK(w, alerts, reqID, "")
}

// writeDomainError 将领域错误码映射为HTTP响应。
// 基础设施类错误只透出包装后的消息，不泄露存储内部细节。
func (h *StockHandler) writeDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var code resp.Code
	var message string
	switch domain.CodeOf(err) {
	case domain.CodeValidation:
		code, message = resp.CodeInvalidParam, err.Error()
	case domain.CodeProductNotFound:
		code, message = resp.CodeNotFound, err.Error()
	case domain.CodeInsufficientStock:
		code, message = resp.CodeInsufficientStock, err.Error()
	case domain.CodeCircuitOpen:
		code, message = resp.CodeCircuitOpen, "service temporarily unavailable, please retry later"
	default:
		code, message = resp.CodeInternalError, op+" failed"
		h.logger.Error(op+" failed",
			zap.String("request_id", reqID),
			zap.Error(err),
		)
	}

	resp.Error(w, resp.HTTPStatusFromCode(code), code, message, reqID, "")
}
