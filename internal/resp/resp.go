// Package resp 提供统一的HTTP响应封装与业务错误码。
package resp

import (
	"encoding/json"
	"net/http"
)

// Code 业务错误码，0 表示成功
type Code int

const (
	CodeOK Code = 0

	// 通用错误码
	CodeInvalidParam  Code = 10001
	CodeNotFound      Code = 10002
	CodeTimeout       Code = 10003
	CodeInternalError Code = 10004

	// 库存核心错误码
	CodeInsufficientStock Code = 20001
	CodeCircuitOpen       Code = 20002
)

// Body 统一响应体
type Body struct {
	Code      Code        `json:"code"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// HTTPStatusFromCode 将业务错误码映射为HTTP状态码
func HTTPStatusFromCode(code Code) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeInsufficientStock:
		return http.StatusConflict
	case CodeCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// OK 写出成功响应
func OK(w http.ResponseWriter, data interface{}, requestID, traceID string) {
	write(w, http.StatusOK, &Body{
		Code:      CodeOK,
		Data:      data,
		RequestID: requestID,
		TraceID:   traceID,
	})
}

// Error 写出错误响应
func Error(w http.ResponseWriter, status int, code Code, message, requestID, traceID string) {
	write(w, status, &Body{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		TraceID:   traceID,
	})
}

func write(w http.ResponseWriter, status int, body *Body) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// 编码失败时响应头已写出，只能放弃
	_ = json.NewEncoder(w).Encode(body)
}
