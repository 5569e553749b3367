package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultFilePath is used when no checkpoint path is configured.
const DefaultFilePath = "state.json"

// JSONFileStorage keeps the checkpoint map in a flat JSON file.
type JSONFileStorage struct {
	path string
}

// NewJSONFileStorage creates a file storage at path (DefaultFilePath when empty).
func NewJSONFileStorage(path string) *JSONFileStorage {
	if path == "" {
		path = DefaultFilePath
	}
	return &JSONFileStorage{path: path}
}

// Path returns the checkpoint file location.
func (s *JSONFileStorage) Path() string {
	return s.path
}

// Retrieve reads the checkpoint file. A missing file is an empty state.
func (s *JSONFileStorage) Retrieve(_ context.Context) (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to read state file %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return map[string]any{}, nil
	}

	st := make(map[string]any)
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptState, s.path, err)
	}
	return st, nil
}

// Save replaces the checkpoint file with state. The new content is written to
// a temporary file in the same directory and renamed over the old one, so
// readers never observe a partially written file.
func (s *JSONFileStorage) Save(_ context.Context, state map[string]any) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace state file %s: %w", s.path, err)
	}
	return nil
}
