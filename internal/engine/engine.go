// Package engine is the sync orchestrator: every read returns the best
// locally available snapshot immediately, every mutation applies to the
// local store synchronously and enqueues an outbound operation for
// eventual remote application. Nothing here propagates an error up to
// the UI; failures are absorbed and logged.
package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"qistsync/internal/auth"
	"qistsync/internal/cache"
	"qistsync/internal/localstore"
	"qistsync/internal/models"
	"qistsync/internal/notify"
	"qistsync/internal/queue"
	"qistsync/pkg/logger"
)

// Remote is the slice of the remote gateway the engine needs: one
// authoritative fetch per user.
type Remote interface {
	FetchAll(ctx context.Context, userID string) ([]models.Installment, error)
}

// Config carries the engine's collaborators. Remote, Queue and Sessions
// are required; the rest default sensibly (a noop store, an in-process
// 30s cache, an always-online probe).
type Config struct {
	Store    localstore.Store
	Cache    cache.Cache
	Remote   Remote
	Queue    queue.Queue
	Sessions auth.Sessions
	Notifier *notify.Broadcaster

	// Online reports network connectivity. Defaults to always online.
	Online func(ctx context.Context) bool
	// Now is the time source for paid dates and updated_at stamps.
	Now func() time.Time
}

// Engine implements the offline-first synchronization entry points.
type Engine struct {
	store    localstore.Store
	cache    cache.Cache
	remote   Remote
	queue    queue.Queue
	sessions auth.Sessions
	notifier *notify.Broadcaster
	online   func(ctx context.Context) bool
	now      func() time.Time

	refreshes singleflight.Group
	bg        sync.WaitGroup

	// Serializes the read-modify-write cycle per user. The engine is
	// otherwise driven by concurrent HTTP handlers.
	locks sync.Map
}

func New(cfg Config) *Engine {
	e := &Engine{
		store:    cfg.Store,
		cache:    cfg.Cache,
		remote:   cfg.Remote,
		queue:    cfg.Queue,
		sessions: cfg.Sessions,
		notifier: cfg.Notifier,
		online:   cfg.Online,
		now:      cfg.Now,
	}
	if e.store == nil {
		e.store = localstore.Noop{}
	}
	if e.cache == nil {
		e.cache = cache.NewMemory(30 * time.Second)
	}
	if e.notifier == nil {
		e.notifier = notify.NewBroadcaster()
	}
	if e.online == nil {
		e.online = func(ctx context.Context) bool { return true }
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Notifier exposes the change-notification broadcaster for UI listeners.
func (e *Engine) Notifier() *notify.Broadcaster {
	return e.notifier
}

// Flush waits for in-flight background refreshes. Called on shutdown.
func (e *Engine) Flush() {
	e.bg.Wait()
}

func (e *Engine) userLock(userID string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// LoadInstallments returns the user's installments without blocking on
// the network: cache hit first, then local data, with a background
// refresh keeping both honest. Only a first run with nothing local
// fetches remotely in the caller's path, and even that degrades to an
// empty snapshot on failure.
func (e *Engine) LoadInstallments(ctx context.Context) []models.Installment {
	userID, err := e.sessions.CurrentUser(ctx)
	if err != nil {
		logger.Debug(ctx, "Load skipped: no authenticated user")
		return nil
	}

	if snapshot, ok := e.cache.Get(ctx, userID); ok {
		logger.Debug(ctx, "Serving cached snapshot", "user_id", userID)
		e.triggerRefresh(ctx, userID)
		return snapshot
	}

	local := e.store.Read(ctx, userID)

	if !e.online(ctx) {
		logger.Debug(ctx, "Offline: serving local snapshot", "user_id", userID, "count", len(local))
		return local
	}

	if len(local) > 0 {
		e.triggerRefresh(ctx, userID)
		return local
	}

	// First run, nothing local: fetch in the caller's path.
	snapshot, err := e.remote.FetchAll(ctx, userID)
	if err != nil {
		logger.Error(ctx, "First load fetch failed, serving local", "error", err, "user_id", userID)
		return local
	}
	// The store may have moved on during the fetch; persist under the
	// user lock against the state as it is now.
	return e.persistMerged(ctx, userID, snapshot)
}

// PendingOperations reports the outbound queue depth. Observational.
func (e *Engine) PendingOperations(ctx context.Context) (int64, error) {
	return e.queue.Size(ctx)
}

func (e *Engine) enqueue(ctx context.Context, op models.Operation, err error) {
	if err != nil {
		logger.Error(ctx, "Build outbound operation failed", "error", err)
		return
	}
	if err := e.queue.Enqueue(ctx, op); err != nil {
		// Local state is already durable; the mutation is not lost to
		// the device, only to this enqueue attempt.
		logger.Error(ctx, "Enqueue outbound operation failed", "error", err, "type", op.Type)
	}
}
