package sink

import (
	"context"
	"sync"

	"github.com/wonny/aegis-signals/internal/contracts"
)

// Memory keeps published signals in process. Used by the CLI and tests.
type Memory struct {
	mu      sync.Mutex
	signals []contracts.ConsensusSignal
	batches int
}

// NewMemory creates an empty memory sink
func NewMemory() *Memory {
	return &Memory{}
}

// Publish implements contracts.SignalSink
func (m *Memory) Publish(_ context.Context, signals []contracts.ConsensusSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, signals...)
	m.batches++
	return nil
}

// Signals returns a copy of everything published so far
func (m *Memory) Signals() []contracts.ConsensusSignal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]contracts.ConsensusSignal, len(m.signals))
	copy(out, m.signals)
	return out
}

// Batches returns how many Publish calls were made
func (m *Memory) Batches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches
}
