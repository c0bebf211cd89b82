// Package localstore is the device-resident installment store: the
// local half of the offline-first engine. Reads and writes never fail
// upward; a store without a persistence medium degrades to empty reads
// and discarded writes.
package localstore

import (
	"context"

	"qistsync/internal/models"
)

const keyPrefix = "installments-"

// Store holds the full installment snapshot per user.
type Store interface {
	// Read returns the stored snapshot for the user, or an empty
	// snapshot if nothing is persisted.
	Read(ctx context.Context, userID string) []models.Installment
	// Write fully replaces the stored snapshot for the user.
	Write(ctx context.Context, userID string, snapshot []models.Installment)
	// Close releases the underlying medium, if any.
	Close() error
}

func userKey(userID string) []byte {
	return []byte(keyPrefix + userID)
}

// Noop is the degraded store used when no persistence medium is
// available: reads are empty, writes are discarded.
type Noop struct{}

func (Noop) Read(ctx context.Context, userID string) []models.Installment { return nil }

func (Noop) Write(ctx context.Context, userID string, snapshot []models.Installment) {}

func (Noop) Close() error { return nil }
