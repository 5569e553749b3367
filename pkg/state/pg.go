package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// StateDao is a data access object that maps directly to the 'etl_state' table in PostgreSQL.
type StateDao struct {
	bun.BaseModel `bun:"table:etl_state,alias:st"`
	Key           string    `bun:"key,pk,type:varchar(255)"`
	Value         string    `bun:"value,type:jsonb,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,nullzero,default:current_timestamp"`
}

// PGStorage keeps the checkpoint map in the etl_state table.
type PGStorage struct {
	db *bun.DB
}

// NewPGStorage creates a Postgres-backed storage.
func NewPGStorage(db *bun.DB) *PGStorage {
	return &PGStorage{db: db}
}

// Retrieve loads every key of etl_state.
func (s *PGStorage) Retrieve(ctx context.Context) (map[string]any, error) {
	var rows []StateDao
	if err := s.db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	st := make(map[string]any, len(rows))
	for _, row := range rows {
		var v any
		if err := json.Unmarshal([]byte(row.Value), &v); err != nil {
			return nil, fmt.Errorf("%w: key %s: %w", ErrCorruptState, row.Key, err)
		}
		st[row.Key] = v
	}
	return st, nil
}

// Save upserts the complete map in one transaction.
func (s *PGStorage) Save(ctx context.Context, state map[string]any) error {
	if len(state) == 0 {
		return nil
	}

	rows := make([]StateDao, 0, len(state))
	for k, v := range state {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode state key %s: %w", k, err)
		}
		rows = append(rows, StateDao{Key: k, Value: string(raw), UpdatedAt: time.Now().UTC()})
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&rows).
			On("CONFLICT (key) DO UPDATE").
			Set("value = EXCLUDED.value").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to save state: %w", err)
		}
		return nil
	})
}
