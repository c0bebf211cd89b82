// Package queue is the durable outbound operation log. The sync engine
// only enqueues; a background drain (internal/worker) applies operations
// to the remote store. Retry policy lives with the drain, not here.
package queue

import (
	"context"
	"sync"

	"qistsync/internal/models"
)

// Queue accepts typed operations for eventual remote application.
type Queue interface {
	// Enqueue persists one operation. Operations are drained in the
	// order they were enqueued.
	Enqueue(ctx context.Context, op models.Operation) error
	// Size reports the number of operations not yet applied remotely.
	Size(ctx context.Context) (int64, error)
}

// Memory is a FIFO queue for tests and queue-less development runs.
type Memory struct {
	mu  sync.Mutex
	ops []models.Operation
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Enqueue(ctx context.Context, op models.Operation) error {
	m.mu.Lock()
	m.ops = append(m.ops, op)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Size(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.ops)), nil
}

// Drain removes and returns all pending operations in FIFO order.
func (m *Memory) Drain() []models.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	ops := m.ops
	m.ops = nil
	return ops
}
