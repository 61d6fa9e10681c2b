package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestSeverityForStock(t *testing.T) {
	tests := []struct {
		stock int
		want  AlertSeverity
	}{
		{0, SeverityOutOfStock},
		{1, SeverityCritical},
		{2, SeverityCritical},
		{3, SeverityWarning},
		{4, SeverityWarning},
	}
	for _, tt := range tests {
		if got := SeverityForStock(tt.stock); got != tt.want {
			t.Errorf("SeverityForStock(%d) = %v, want %v", tt.stock, got, tt.want)
		}
	}
}

func TestStockChangeReason_Valid(t *testing.T) {
	valid := []StockChangeReason{ReasonSale, ReasonRestock, ReasonAdjustment, ReasonReservation, ReasonReturn, ReasonDamaged}
	for _, r := range valid {
		if !r.Valid() {
			t.Errorf("Valid(%q) = false, want true", r)
		}
	}
	for _, r := range []StockChangeReason{"", "bogus", "SALE"} {
		if r.Valid() {
			t.Errorf("Valid(%q) = true, want false", r)
		}
	}
}

func TestProduct_StockPredicates(t *testing.T) {
	p := &Product{StockCount: 0}
	if !p.IsOutOfStock() {
		t.Error("IsOutOfStock() = false for zero stock")
	}
	p.StockCount = 3
	if p.IsOutOfStock() {
		t.Error("IsOutOfStock() = true for positive stock")
	}
	if !p.IsLowStock(5) {
		t.Error("IsLowStock(5) = false for stock 3")
	}
	if p.IsLowStock(3) {
		t.Error("IsLowStock(3) = true for stock 3 (threshold is exclusive)")
	}
}

func TestStockError_CodeOf(t *testing.T) {
	cause := errors.New("driver: bad connection")
	err := NewStockError(CodeStockFetch, "failed to fetch stock for product 1", cause)

	if CodeOf(err) != CodeStockFetch {
		t.Errorf("CodeOf() = %v, want %v", CodeOf(err), CodeStockFetch)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() lost the wrapped cause")
	}
	// fmt wrapping keeps the domain code reachable
	wrapped := fmt.Errorf("outer: %w", err)
	if CodeOf(wrapped) != CodeStockFetch {
		t.Errorf("CodeOf(wrapped) = %v, want %v", CodeOf(wrapped), CodeStockFetch)
	}
	if CodeOf(errors.New("plain")) != CodeInventory {
		t.Errorf("CodeOf(plain error) = %v, want %v", CodeOf(errors.New("plain")), CodeInventory)
	}
}

func TestIsCode_NestedCodes(t *testing.T) {
	inner := NewInsufficientStock(1, 0, 5)
	outer := NewStockError(CodeInventory, "operation decrement failed after 3 attempts", inner)

	if !IsCode(outer, CodeInventory) {
		t.Error("IsCode(outer, CodeInventory) = false")
	}
	if !IsCode(outer, CodeInsufficientStock) {
		t.Error("IsCode(outer, CodeInsufficientStock) = false, inner code unreachable")
	}
	if IsCode(outer, CodeCircuitOpen) {
		t.Error("IsCode(outer, CodeCircuitOpen) = true for an absent code")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{CodeValidation, false},
		{CodeProductNotFound, false},
		{CodeInsufficientStock, false},
		{CodeCircuitOpen, false},
		{CodeStockFetch, true},
		{CodeStockUpdate, true},
		{CodeLowStockFetch, true},
		{CodeInventory, true},
	}
	for _, tt := range tests {
		err := NewStockError(tt.code, "x", nil)
		if got := IsRetryable(err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.code, got, tt.want)
		}
	}
	if !IsRetryable(errors.New("plain infrastructure failure")) {
		t.Error("IsRetryable(plain error) = false, want true")
	}
}
