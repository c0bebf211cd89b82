// Package notify broadcasts refreshed snapshots to listening UIs. It is
// the in-process equivalent of the browser's data-refreshed event.
package notify

import (
	"sync"

	"qistsync/internal/models"
)

// Refresh carries the merged snapshot produced by a background refresh.
type Refresh struct {
	UserID   string
	Snapshot []models.Installment
}

// Broadcaster fans Refresh events out to subscribers. Publish never
// blocks: a subscriber that is not keeping up drops events, which is
// acceptable because every event carries the full snapshot.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Refresh]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Refresh]struct{})}
}

// Subscribe returns a channel of refresh events and a cancel func.
func (b *Broadcaster) Subscribe() (<-chan Refresh, func()) {
	ch := make(chan Refresh, 8)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every current subscriber.
func (b *Broadcaster) Publish(ev Refresh) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
