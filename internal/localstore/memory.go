package localstore

import (
	"context"
	"sync"

	"github.com/goccy/go-json"

	"qistsync/internal/models"
)

// Memory is an in-process store with the same replace-on-write contract
// as BadgerStore. Snapshots are kept as serialized bytes so callers can
// never alias the stored state.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Read(ctx context.Context, userID string) []models.Installment {
	m.mu.RLock()
	raw, ok := m.data[userID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	var snapshot []models.Installment
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil
	}
	return snapshot
}

func (m *Memory) Write(ctx context.Context, userID string, snapshot []models.Installment) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.data[userID] = raw
	m.mu.Unlock()
}

func (m *Memory) Close() error { return nil }
