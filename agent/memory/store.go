// Package memory persists per-caller context across calls: display name, the
// last call's summary, call counts, and free-form metadata.
package memory

import (
	"context"
	"errors"

	contractx "github.com/waritk/frontdesk/agent/contract"
)

// ErrStoreUnavailable wraps backend failures. Callers degrade: a failed fetch
// means the caller is treated as new, a failed upsert is retried with a bound.
var ErrStoreUnavailable = errors.New("memory store unavailable")

// UpsertParams carries one call's outcome into the store. The store increments
// the call count itself so concurrent upserts never lose an increment.
type UpsertParams struct {
	CallerID    string
	DisplayName string
	Summary     string
	Metadata    map[string]string
}

// Store is the caller-memory contract. Fetch reports ok=false for a caller
// with no record; that is not an error.
type Store interface {
	Fetch(ctx context.Context, callerID string) (rec *contractx.MemoryRecord, ok bool, err error)
	Upsert(ctx context.Context, params UpsertParams) error
}
