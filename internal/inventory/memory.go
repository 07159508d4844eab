package inventory

import (
	"context"
	"sync"
)

// MemoryLedger keeps stock in memory behind a mutex, with the same
// conditional-decrement contract as the Postgres ledger. Used by tests and
// local runs without a database.
type MemoryLedger struct {
	mu     sync.Mutex
	stocks map[string]*int // nil value = unlimited
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{stocks: make(map[string]*int)}
}

// SetStock seeds a product. Pass nil for unlimited stock.
func (l *MemoryLedger) SetStock(productID string, stock *int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if stock == nil {
		l.stocks[productID] = nil
		return
	}
	v := *stock
	l.stocks[productID] = &v
}

func (l *MemoryLedger) Stock(productID string) (stock *int, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.stocks[productID]
	if !ok || s == nil {
		return nil, ok
	}
	v := *s
	return &v, true
}

func (l *MemoryLedger) Reserve(_ context.Context, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.stocks[productID]
	if !ok {
		return ErrNotFound
	}
	if s == nil {
		return nil
	}
	if *s < qty {
		return ErrInsufficientStock
	}
	*s -= qty
	return nil
}

func (l *MemoryLedger) Restore(_ context.Context, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.stocks[productID]
	if !ok || s == nil {
		return nil
	}
	*s += qty
	return nil
}
