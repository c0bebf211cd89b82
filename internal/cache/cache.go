// Package cache is the freshness cache: a short-TTL marker over the
// local store used to skip redundant remote fetches. It never holds
// truth; expiry or loss only costs an extra fetch.
package cache

import (
	"context"

	"qistsync/internal/models"
)

const keyPrefix = "installments_cache-"

// Cache stores per-user snapshots that expire after a fixed TTL.
type Cache interface {
	// Get returns the cached snapshot, or ok=false when absent or expired.
	Get(ctx context.Context, userID string) ([]models.Installment, bool)
	// Set stores the snapshot stamped with the current time.
	Set(ctx context.Context, userID string, snapshot []models.Installment)
	// Invalidate removes any entry for the user.
	Invalidate(ctx context.Context, userID string)
}

// entry is the stored form: the snapshot plus its write timestamp in
// epoch milliseconds. The timestamp, not the medium's expiry, decides
// freshness so all implementations share identical TTL semantics.
type entry struct {
	Data      []models.Installment `json:"data"`
	Timestamp int64                `json:"timestamp"`
}

func userKey(userID string) string {
	return keyPrefix + userID
}
