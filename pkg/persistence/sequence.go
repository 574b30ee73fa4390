package persistence

import "context"

// SequenceAllocator hands out the next run sequence number for a
// (tenant, app) scope. Implementations must never return the same number
// twice for one scope, including under concurrent allocation.
type SequenceAllocator interface {
	Next(ctx context.Context, tenantID, appID string) (int, error)
}
