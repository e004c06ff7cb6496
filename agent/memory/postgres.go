package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	contractx "github.com/waritk/frontdesk/agent/contract"
)

type callerRow struct {
	bun.BaseModel `bun:"table:caller_memory,alias:caller_memory"`

	ID             int64             `bun:"id,pk,autoincrement"`
	CallerIdentity string            `bun:"caller_identity,notnull,unique"`
	DisplayName    string            `bun:"display_name"`
	LastSummary    string            `bun:"last_summary"`
	LastCall       time.Time         `bun:"last_call"`
	CallCount      int               `bun:"call_count,notnull,default:0"`
	Metadata       map[string]string `bun:"metadata,type:jsonb"`
	CreatedAt      time.Time         `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time         `bun:"updated_at,notnull,default:current_timestamp"`
}

// PostgresStore keeps caller memory in Postgres. Safe for concurrent use; the
// upsert resolves races in the database rather than in process.
type PostgresStore struct {
	db *bun.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *bun.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: nil bun db", contractx.ErrConfiguration)
	}
	return &PostgresStore{db: db}, nil
}

// EnsureSchema creates the caller_memory table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*callerRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("%w: create caller_memory table: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Fetch(ctx context.Context, callerID string) (*contractx.MemoryRecord, bool, error) {
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return nil, false, fmt.Errorf("%w: caller id is empty", contractx.ErrValidation)
	}

	row := new(callerRow)
	err := s.db.NewSelect().
		Model(row).
		Where("caller_identity = ?", callerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: fetch caller=%s: %v", ErrStoreUnavailable, callerID, err)
	}

	return &contractx.MemoryRecord{
		CallerID:    row.CallerIdentity,
		DisplayName: row.DisplayName,
		LastSummary: row.LastSummary,
		LastCallAt:  row.LastCall,
		CallCount:   row.CallCount,
		Metadata:    row.Metadata,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, true, nil
}

// Upsert inserts or refreshes a caller record. The increment, the name
// coalesce, and the metadata merge all run inside the statement so two
// concurrent calls for the same caller both land.
func (s *PostgresStore) Upsert(ctx context.Context, params UpsertParams) error {
	callerID := strings.TrimSpace(params.CallerID)
	if callerID == "" {
		return fmt.Errorf("%w: caller id is empty", contractx.ErrValidation)
	}

	now := time.Now().UTC()
	metadata := params.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	row := &callerRow{
		CallerIdentity: callerID,
		DisplayName:    strings.TrimSpace(params.DisplayName),
		LastSummary:    strings.TrimSpace(params.Summary),
		LastCall:       now,
		CallCount:      1,
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (caller_identity) DO UPDATE").
		Set("display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), caller_memory.display_name)").
		Set("last_summary = EXCLUDED.last_summary").
		Set("last_call = EXCLUDED.last_call").
		Set("call_count = caller_memory.call_count + 1").
		Set("metadata = caller_memory.metadata || EXCLUDED.metadata").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: upsert caller=%s: %v", ErrStoreUnavailable, callerID, err)
	}

	return nil
}
