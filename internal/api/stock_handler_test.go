package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_guard/internal/domain"
	"github.com/MorseWayne/stock_guard/internal/resp"
)

// Mock StockService for testing handler behavior and status mapping
type mockStockService struct {
	validateResult *domain.StockValidationResult
	validateErr    error
	reserveResult  *domain.StockReservation
	reserveErr     error
	changeResult   *domain.StockChange
	changeErr      error
	alertsResult   []*domain.LowStockAlert
	alertsErr      error
	bulkResult     *domain.BulkValidationResult
}

func (m *mockStockService) ValidateStock(ctx context.Context, productID int64, quantity int, vctx *domain.ValidationContext) (*domain.StockValidationResult, error) {
	return m.validateResult, m.validateErr
}

func (m *mockStockService) ReserveStock(ctx context.Context, productID int64, quantity int, userID int64, vctx *domain.ValidationContext) (*domain.StockReservation, error) {
	return m.reserveResult, m.reserveErr
}

func (m *mockStockService) DecrementStock(ctx context.Context, productID int64, quantity int, mctx *domain.MutationContext) (*domain.StockChange, error) {
	return m.changeResult, m.changeErr
}

func (m *mockStockService) IncrementStock(ctx context.Context, productID int64, quantity int, mctx *domain.MutationContext) (*domain.StockChange, error) {
	return m.changeResult, m.changeErr
}

func (m *mockStockService) GetLowStockProducts(ctx context.Context, threshold int) ([]*domain.LowStockAlert, error) {
	return m.alertsResult, m.alertsErr
}

func (m *mockStockService) ValidateMultipleStock(ctx context.Context, items []domain.StockItem, vctx *domain.ValidationContext) *domain.BulkValidationResult {
	return m.bulkResult
}

func newTestHandler(svc *mockStockService) *StockHandler {
	return NewStockHandler(svc, zap.NewNop())
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) resp.Body {
	t.Helper()
	var body resp.Body
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func TestStockHandler_ValidateStock_OK(t *testing.T) {
	svc := &mockStockService{
		validateResult: &domain.StockValidationResult{Available: true, ProductID: 1, CurrentStock: 10},
	}
	rec := postJSON(t, newTestHandler(svc).ValidateStock, "/api/v1/stock/validate",
		map[string]any{"product_id": 1, "quantity": 5})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := decodeBody(t, rec); body.Code != resp.CodeOK {
		t.Errorf("body code = %d, want %d", body.Code, resp.CodeOK)
	}
}

func TestStockHandler_ValidateStock_BadBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stock/validate", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	newTestHandler(&mockStockService{}).ValidateStock(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStockHandler_DomainErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   resp.Code
	}{
		{
			name:       "validation error",
			err:        domain.NewStockError(domain.CodeValidation, "invalid quantity", nil),
			wantStatus: http.StatusBadRequest,
			wantCode:   resp.CodeInvalidParam,
		},
		{
			name:       "product not found",
			err:        domain.NewProductNotFound(42),
			wantStatus: http.StatusNotFound,
			wantCode:   resp.CodeNotFound,
		},
		{
			name:       "insufficient stock",
			err:        domain.NewInsufficientStock(42, 1, 5),
			wantStatus: http.StatusConflict,
			wantCode:   resp.CodeInsufficientStock,
		},
		{
			name:       "circuit open",
			err:        domain.NewStockError(domain.CodeCircuitOpen, "circuit breaker database is open", nil),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   resp.CodeCircuitOpen,
		},
		{
			name:       "infrastructure error",
			err:        domain.NewStockError(domain.CodeStockUpdate, "update failed", nil),
			wantStatus: http.StatusInternalServerError,
			wantCode:   resp.CodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockStockService{changeErr: tt.err}
			rec := postJSON(t, newTestHandler(svc).DecrementStock, "/api/v1/stock/decrement",
				map[string]any{"product_id": 42, "quantity": 5})

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if body := decodeBody(t, rec); body.Code != tt.wantCode {
				t.Errorf("body code = %d, want %d", body.Code, tt.wantCode)
			}
		})
	}
}

func TestStockHandler_InternalErrorsNotLeaked(t *testing.T) {
	svc := &mockStockService{
		changeErr: domain.NewStockError(domain.CodeStockUpdate, "update failed: dsn user:pass@tcp", nil),
	}
	rec := postJSON(t, newTestHandler(svc).DecrementStock, "/api/v1/stock/decrement",
		map[string]any{"product_id": 1, "quantity": 1})

	body := decodeBody(t, rec)
	if body.Message != "decrement stock failed" {
		t.Errorf("message = %q, want the generic wrapper", body.Message)
	}
}

func TestStockHandler_ValidateBatch(t *testing.T) {
	svc := &mockStockService{
		bulkResult: &domain.BulkValidationResult{Valid: true, Results: []*domain.StockValidationResult{}, Errors: []string{}},
	}
	handler := newTestHandler(svc)

	rec := postJSON(t, handler.ValidateBatch, "/api/v1/stock/validate-batch",
		map[string]any{"items": []map[string]any{{"product_id": 1, "quantity": 2}}})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	// Empty items rejected before reaching the service
	rec = postJSON(t, handler.ValidateBatch, "/api/v1/stock/validate-batch",
		map[string]any{"items": []map[string]any{}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status for empty items = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStockHandler_ReserveStock_InvalidInput(t *testing.T) {
	rec := postJSON(t, newTestHandler(&mockStockService{}).ReserveStock, "/api/v1/stock/reserve",
		map[string]any{"product_id": 0, "quantity": 1, "user_id": 7})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStockHandler_GetLowStockAlerts(t *testing.T) {
	svc := &mockStockService{
		alertsResult: []*domain.LowStockAlert{
			{ProductID: 1, CurrentStock: 0, Severity: domain.SeverityOutOfStock},
		},
	}
	handler := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stock/alerts/low-stock?threshold=5", nil)
	rec := httptest.NewRecorder()
	handler.GetLowStockAlerts(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/stock/alerts/low-stock?threshold=abc", nil)
	rec = httptest.NewRecorder()
	handler.GetLowStockAlerts(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status for bad threshold = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
