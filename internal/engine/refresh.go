package engine

import (
	"context"

	"qistsync/internal/models"
	"qistsync/internal/notify"
	"qistsync/internal/reconcile"
	"qistsync/pkg/logger"
)

// triggerRefresh starts a detached background refresh for the user.
// The caller is never blocked on it and only observes its outcome
// through the change notification. Concurrent triggers for the same
// user collapse into one in-flight refresh.
func (e *Engine) triggerRefresh(ctx context.Context, userID string) {
	// The request context dies when the handler returns; keep its
	// values (logger) but not its cancellation.
	bgCtx := context.WithoutCancel(ctx)
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		_, _, _ = e.refreshes.Do(userID, func() (interface{}, error) {
			e.refresh(bgCtx, userID)
			return nil, nil
		})
	}()
}

// refresh fetches remote truth and merges it with the local snapshot as
// it exists at merge time, not as it existed when the refresh was
// triggered. Mutations that landed while the fetch was in flight are
// therefore never clobbered by the older remote read.
func (e *Engine) refresh(ctx context.Context, userID string) {
	snapshot, err := e.remote.FetchAll(ctx, userID)
	if err != nil {
		logger.Error(ctx, "Background refresh failed", "error", err, "user_id", userID)
		return
	}

	merged := e.persistMerged(ctx, userID, snapshot)

	e.notifier.Publish(notify.Refresh{UserID: userID, Snapshot: merged})
	logger.Debug(ctx, "Background refresh complete", "user_id", userID, "count", len(merged))
}

// persistMerged lands a remote snapshot under the user's mutation lock,
// merged with the local state as it exists now. Every fetch result,
// blocking or background, goes through here so that a mutation accepted
// while the fetch was in flight is never overwritten.
func (e *Engine) persistMerged(ctx context.Context, userID string, snapshot []models.Installment) []models.Installment {
	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	local := e.store.Read(ctx, userID)
	merged := reconcile.Merge(local, snapshot)
	e.store.Write(ctx, userID, merged)
	e.cache.Set(ctx, userID, merged)
	return merged
}
