package domain

import (
	"errors"
	"fmt"
)

// ErrorCode 是面向调用方的稳定错误码。
// 业务规则类错误（参数非法、未找到、库存不足）不重试、立即返回；
// 基础设施类错误（读取/写入失败）在重试耗尽后以 CodeInventory 包装。
type ErrorCode string

const (
	CodeValidation        ErrorCode = "VALIDATION_ERROR"
	CodeProductNotFound   ErrorCode = "PRODUCT_NOT_FOUND"
	CodeInsufficientStock ErrorCode = "INSUFFICIENT_STOCK"
	CodeStockFetch        ErrorCode = "STOCK_FETCH_ERROR"
	CodeStockUpdate       ErrorCode = "STOCK_UPDATE_ERROR"
	CodeLowStockFetch     ErrorCode = "LOW_STOCK_FETCH_ERROR"
	CodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"
	CodeInventory         ErrorCode = "INVENTORY_ERROR"
)

// StockError 是库存核心的统一错误类型，保留原始错误链，
// 调用方通过 errors.As/CodeOf 区分类别，而不是匹配消息文本。
type StockError struct {
	Code    ErrorCode
	Message string
	Err     error // 被包装的原因，可为 nil
}

func (e *StockError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap 暴露原因链，支持 errors.Is/As
func (e *StockError) Unwrap() error {
	return e.Err
}

// NewStockError 创建携带原因的库存错误
func NewStockError(code ErrorCode, message string, cause error) *StockError {
	return &StockError{Code: code, Message: message, Err: cause}
}

// NewInsufficientStock 创建库存不足错误，消息包含当前/请求数量，便于直接面向用户
func NewInsufficientStock(productID int64, current, requested int) *StockError {
	return &StockError{
		Code:    CodeInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for product %d: current %d, requested %d", productID, current, requested),
	}
}

// NewProductNotFound 创建商品未找到错误
func NewProductNotFound(productID int64) *StockError {
	return &StockError{
		Code:    CodeProductNotFound,
		Message: fmt.Sprintf("product %d not found", productID),
	}
}

// CodeOf 提取错误链上最外层 StockError 的错误码；非领域错误返回 CodeInventory
func CodeOf(err error) ErrorCode {
	var se *StockError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInventory
}

// IsCode 判断错误链上是否存在指定错误码
func IsCode(err error, code ErrorCode) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if se, ok := e.(*StockError); ok && se.Code == code {
			return true
		}
	}
	return false
}

// IsRetryable 判断错误是否值得重试：业务规则类拒绝是确定性的，不重试
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeValidation, CodeProductNotFound, CodeInsufficientStock, CodeCircuitOpen:
		return false
	}
	return true
}
