package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	contractx "github.com/waritk/frontdesk/agent/contract"
)

// MemStore is the in-process fallback used when no database is configured,
// and the test double for everything above the store contract.
type MemStore struct {
	mu   sync.Mutex
	rows map[string]*contractx.MemoryRecord
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[string]*contractx.MemoryRecord)}
}

func (s *MemStore) Fetch(ctx context.Context, callerID string) (*contractx.MemoryRecord, bool, error) {
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return nil, false, fmt.Errorf("%w: caller id is empty", contractx.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[callerID]
	if !ok {
		return nil, false, nil
	}

	out := *row
	out.Metadata = cloneMetadata(row.Metadata)
	return &out, true, nil
}

func (s *MemStore) Upsert(ctx context.Context, params UpsertParams) error {
	callerID := strings.TrimSpace(params.CallerID)
	if callerID == "" {
		return fmt.Errorf("%w: caller id is empty", contractx.ErrValidation)
	}

	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[callerID]
	if !ok {
		row = &contractx.MemoryRecord{
			CallerID:  callerID,
			Metadata:  map[string]string{},
			CreatedAt: now,
		}
		s.rows[callerID] = row
	}

	if name := strings.TrimSpace(params.DisplayName); name != "" {
		row.DisplayName = name
	}
	row.LastSummary = strings.TrimSpace(params.Summary)
	row.LastCallAt = now
	row.CallCount++
	for k, v := range params.Metadata {
		row.Metadata[k] = v
	}
	row.UpdatedAt = now

	return nil
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
