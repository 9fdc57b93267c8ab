package occurrence

import (
	"context"
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
)

// Memory keeps occurrences in process memory. It suits tests and single
// process deployments that can re-ingest after a restart.
type Memory struct {
	mu   sync.RWMutex
	data map[index.DocumentID][]index.Occurrence
}

func NewMemory() *Memory {
	return &Memory{data: make(map[index.DocumentID][]index.Occurrence)}
}

func (m *Memory) Append(_ context.Context, id index.DocumentID, occs []index.Occurrence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = append(m.data[id], occs...)
	return nil
}

// Load returns a copy of id's occurrences in append order.
func (m *Memory) Load(_ context.Context, id index.DocumentID) ([]index.Occurrence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.data[id]), nil
}

func (m *Memory) Delete(_ context.Context, id index.DocumentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
