// Package state persists synchronization checkpoints: per entity watermarks
// and per index bootstrap flags.
//
// Every Set loads the full state, changes one key and writes the full state
// back, so the storage only ever holds complete snapshots.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moviesearch/movies-etl/pkg/content"
)

// ErrCorruptState is returned when persisted state cannot be decoded.
var ErrCorruptState = errors.New("corrupt checkpoint state")

// legacyTimeLayout is the watermark format written by the previous ETL.
const legacyTimeLayout = "2006-01-02 15:04:05.999999"

// Storage loads and saves the complete checkpoint map.
type Storage interface {
	Retrieve(ctx context.Context) (map[string]any, error)
	Save(ctx context.Context, state map[string]any) error
}

// State is a key-value view over a Storage.
type State struct {
	storage Storage
	mu      sync.Mutex
}

// New creates a State backed by storage.
func New(storage Storage) *State {
	return &State{storage: storage}
}

// Get returns the value stored under key. A missing key is reported with ok=false.
func (s *State) Get(ctx context.Context, key string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.storage.Retrieve(ctx)
	if err != nil {
		return nil, false, err
	}
	v, ok := st[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *State) Set(ctx context.Context, key string, value any) error {
	return s.SetMany(ctx, map[string]any{key: value})
}

// SetMany stores several keys with a single write.
func (s *State) SetMany(ctx context.Context, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.storage.Retrieve(ctx)
	if err != nil {
		return err
	}
	if st == nil {
		st = make(map[string]any, len(values))
	}
	for k, v := range values {
		st[k] = v
	}
	return s.storage.Save(ctx, st)
}

// All returns a copy of the full checkpoint map.
func (s *State) All(ctx context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.storage.Retrieve(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(st))
	for k, v := range st {
		out[k] = v
	}
	return out, nil
}

// WatermarkKey is the key holding the last synchronized timestamp of entity.
func WatermarkKey(entity content.EntityType) string {
	return entity.String() + "_last_update"
}

// LastIDKey is the key holding the id of the last synchronized row at the watermark timestamp.
func LastIDKey(entity content.EntityType) string {
	return entity.String() + "_last_update_id"
}

// IndexCreatedKey is the key holding the bootstrap flag of index.
func IndexCreatedKey(index string) string {
	return "index_created_" + index
}

// Watermark returns the persisted watermark of entity; absent keys yield the zero watermark.
func (s *State) Watermark(ctx context.Context, entity content.EntityType) (content.Watermark, error) {
	st, err := s.All(ctx)
	if err != nil {
		return content.Watermark{}, err
	}

	var wm content.Watermark
	if raw, ok := st[WatermarkKey(entity)]; ok && raw != nil {
		str, ok := raw.(string)
		if !ok {
			return wm, fmt.Errorf("%w: %s is %T, want string", ErrCorruptState, WatermarkKey(entity), raw)
		}
		if str != "" {
			ts, err := parseTimestamp(str)
			if err != nil {
				return wm, fmt.Errorf("%w: %s: %w", ErrCorruptState, WatermarkKey(entity), err)
			}
			wm.UpdatedAt = ts
		}
	}

	if raw, ok := st[LastIDKey(entity)]; ok && raw != nil {
		str, ok := raw.(string)
		if !ok {
			return wm, fmt.Errorf("%w: %s is %T, want string", ErrCorruptState, LastIDKey(entity), raw)
		}
		id, err := uuid.Parse(str)
		if err != nil {
			return wm, fmt.Errorf("%w: %s: %w", ErrCorruptState, LastIDKey(entity), err)
		}
		wm.LastID = id
	}

	return wm, nil
}

// SetWatermark persists the watermark of entity.
func (s *State) SetWatermark(ctx context.Context, entity content.EntityType, wm content.Watermark) error {
	return s.SetMany(ctx, map[string]any{
		WatermarkKey(entity): wm.UpdatedAt.UTC().Format(time.RFC3339Nano),
		LastIDKey(entity):    wm.LastID.String(),
	})
}

// IndexCreated reports whether index creation already happened.
func (s *State) IndexCreated(ctx context.Context, index string) (bool, error) {
	v, ok, err := s.Get(ctx, IndexCreatedKey(index))
	if err != nil || !ok {
		return false, err
	}
	created, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s is %T, want bool", ErrCorruptState, IndexCreatedKey(index), v)
	}
	return created, nil
}

// MarkIndexCreated sets the bootstrap flag of index.
func (s *State) MarkIndexCreated(ctx context.Context, index string) error {
	return s.Set(ctx, IndexCreatedKey(index), true)
}

func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	ts, err := time.ParseInLocation(legacyTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}
	return ts, nil
}
