// Package reconcile merges a device-local snapshot with the last known
// server snapshot into one authoritative view.
package reconcile

import (
	"sort"

	"qistsync/internal/models"
)

// Merge combines local and remote snapshots. Remote wins on id conflict:
// the remote version replaces the local one wholesale, including any
// payment-level edits not yet synced. Local installments the server has
// never seen (created offline) are preserved. The result is ordered by
// created_at descending; ties keep their relative order.
func Merge(local, remote []models.Installment) []models.Installment {
	seen := make(map[string]struct{}, len(remote)+len(local))
	merged := make([]models.Installment, 0, len(remote)+len(local))

	for _, inst := range remote {
		if _, dup := seen[inst.ID]; dup {
			continue
		}
		seen[inst.ID] = struct{}{}
		merged = append(merged, inst)
	}
	for _, inst := range local {
		if _, dup := seen[inst.ID]; dup {
			continue
		}
		seen[inst.ID] = struct{}{}
		merged = append(merged, inst)
	}

	sort.SliceStable(merged, func(a, b int) bool {
		return merged[a].CreatedAt.After(merged[b].CreatedAt)
	})
	return merged
}
