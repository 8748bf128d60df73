package checkout

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSummary is one row of a customer's order list.
type OrderSummary struct {
	ID           string          `json:"orderId"`
	RestaurantID string          `json:"restaurantId"`
	Status       string          `json:"status"`
	Total        decimal.Decimal `json:"total"`
	CreatedAt    time.Time       `json:"createdAt"`
	// Optimistic marks an entry added before the server accepted the order.
	Optimistic bool `json:"optimistic,omitempty"`
}

// OrderList holds entries shown immediately after submit, before the
// persisted order list catches up.
type OrderList interface {
	Insert(userID string, entry OrderSummary)
	Remove(userID, entryID string)
	Settle(userID, entryID string, placed OrderSummary)
	List(userID string) []OrderSummary
}

type MemoryOrderList struct {
	mu      sync.Mutex
	entries map[string][]OrderSummary
}

func NewMemoryOrderList() *MemoryOrderList {
	return &MemoryOrderList{entries: make(map[string][]OrderSummary)}
}

func (l *MemoryOrderList) Insert(userID string, entry OrderSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[userID] = append([]OrderSummary{entry}, l.entries[userID]...)
}

func (l *MemoryOrderList) Remove(userID, entryID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.entries[userID]
	for i, e := range list {
		if e.ID == entryID {
			l.entries[userID] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Settle replaces the optimistic entry with the order the server created.
func (l *MemoryOrderList) Settle(userID, entryID string, placed OrderSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.entries[userID]
	for i, e := range list {
		if e.ID == entryID {
			list[i] = placed
			return
		}
	}
	l.entries[userID] = append([]OrderSummary{placed}, list...)
}

func (l *MemoryOrderList) List(userID string) []OrderSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]OrderSummary(nil), l.entries[userID]...)
}
