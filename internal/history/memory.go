package history

import (
	"context"
	"sort"
	"sync"

	"github.com/wonny/aegis-signals/internal/contracts"
)

// MemoryBars is an in-process BarRepository
type MemoryBars struct {
	mu   sync.RWMutex
	bars map[string][]contracts.Bar
}

// NewMemoryBars creates an empty store
func NewMemoryBars() *MemoryBars {
	return &MemoryBars{bars: make(map[string][]contracts.Bar)}
}

// Bars implements contracts.BarRepository
func (m *MemoryBars) Bars(_ context.Context, symbol string, r contracts.DateRange) ([]contracts.Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []contracts.Bar
	for _, b := range m.bars[symbol] {
		if r.Contains(b.Date) {
			out = append(out, b)
		}
	}
	return out, nil
}

// SaveBars implements contracts.BarRepository. Bars on an existing date replace it.
func (m *MemoryBars) SaveBars(_ context.Context, symbol string, bars []contracts.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byDay := make(map[string]contracts.Bar, len(m.bars[symbol])+len(bars))
	for _, b := range m.bars[symbol] {
		byDay[b.Date.Format("2006-01-02")] = b
	}
	for _, b := range bars {
		byDay[b.Date.Format("2006-01-02")] = b
	}

	merged := make([]contracts.Bar, 0, len(byDay))
	for _, b := range byDay {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })
	m.bars[symbol] = merged
	return nil
}

// Symbols lists stored symbols in ascending order
func (m *MemoryBars) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.bars))
	for s := range m.bars {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// MemorySnapshots is an in-process SnapshotRepository
type MemorySnapshots struct {
	mu     sync.RWMutex
	quotes map[string]contracts.MarketQuote
}

// NewMemorySnapshots creates an empty store
func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{quotes: make(map[string]contracts.MarketQuote)}
}

// SaveSnapshot keeps the newest quote per symbol
func (m *MemorySnapshots) SaveSnapshot(_ context.Context, q contracts.MarketQuote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.quotes[q.Symbol]; ok && cur.FetchedAt.After(q.FetchedAt) {
		return nil
	}
	m.quotes[q.Symbol] = q
	return nil
}

// LatestSnapshot returns the stored quote for a symbol
func (m *MemorySnapshots) LatestSnapshot(_ context.Context, symbol string) (contracts.MarketQuote, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotes[symbol]
	return q, ok, nil
}
