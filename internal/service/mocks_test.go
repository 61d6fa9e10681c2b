package service

import (
	"context"
	"sync"

	"github.com/MorseWayne/stock_guard/internal/domain"
)

// Mock ProductRepository for testing
type mockProductRepository struct {
	mu       sync.Mutex
	products map[int64]*domain.Product

	// error injection
	getErr       error
	listErr      error
	decrementErr error
	incrementErr error

	// when true, DecrementStock reports the guard condition as unmet
	// regardless of the in-memory stock, simulating a lost race
	forceGuardMiss bool

	getCalls       int
	decrementCalls int
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{products: make(map[int64]*domain.Product)}
}

func (m *mockProductRepository) addProduct(p *domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *mockProductRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, exists := m.products[id]
	if !exists {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockProductRepository) ListBelowStock(ctx context.Context, threshold int) ([]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*domain.Product
	for _, p := range m.products {
		if p.StockCount < threshold {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockProductRepository) DecrementStock(ctx context.Context, id int64, quantity int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decrementCalls++
	if m.decrementErr != nil {
		return false, m.decrementErr
	}
	if m.forceGuardMiss {
		return false, nil
	}
	p, exists := m.products[id]
	if !exists || p.StockCount < quantity {
		return false, nil
	}
	p.StockCount -= quantity
	return true, nil
}

func (m *mockProductRepository) IncrementStock(ctx context.Context, id int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrementErr != nil {
		return m.incrementErr
	}
	p, exists := m.products[id]
	if !exists {
		return nil
	}
	p.StockCount += quantity
	return nil
}

func (m *mockProductRepository) UpdateStockCount(ctx context.Context, id int64, stock int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, exists := m.products[id]
	if !exists {
		return nil
	}
	p.StockCount = stock
	return nil
}

func (m *mockProductRepository) stockOf(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, exists := m.products[id]; exists {
		return p.StockCount
	}
	return -1
}

// Mock AlertPublisher for testing
type mockAlertPublisher struct {
	mu         sync.Mutex
	published  []*domain.LowStockAlert
	publishErr error
}

func (m *mockAlertPublisher) PublishLowStock(ctx context.Context, alert *domain.LowStockAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, alert)
	return nil
}

func (m *mockAlertPublisher) Close() error { return nil }

func (m *mockAlertPublisher) alerts() []*domain.LowStockAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.LowStockAlert(nil), m.published...)
}
