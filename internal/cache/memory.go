package cache

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"qistsync/internal/models"
)

// Memory is a mutex-map freshness cache for cache-less deployments and
// tests. The clock is injectable so TTL boundaries are testable.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
	ttl     time.Duration
	now     func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		entries: make(map[string][]byte),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Get(ctx context.Context, userID string) ([]models.Installment, bool) {
	m.mu.RLock()
	raw, ok := m.entries[userKey(userID)]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	if m.now().UnixMilli()-e.Timestamp >= m.ttl.Milliseconds() {
		return nil, false
	}
	return e.Data, true
}

func (m *Memory) Set(ctx context.Context, userID string, snapshot []models.Installment) {
	raw, err := json.Marshal(entry{Data: snapshot, Timestamp: m.now().UnixMilli()})
	if err != nil {
		return
	}
	m.mu.Lock()
	m.entries[userKey(userID)] = raw
	m.mu.Unlock()
}

func (m *Memory) Invalidate(ctx context.Context, userID string) {
	m.mu.Lock()
	delete(m.entries, userKey(userID))
	m.mu.Unlock()
}
