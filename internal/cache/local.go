package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ckan-monitor/ckan-monitor/internal/ckan"
)

// LocalStore persists the snapshot as a single JSON file on the local
// filesystem. Intended for development and single-node deployments; several
// instances sharing one snapshot should use the Redis store instead.
type LocalStore struct {
	path string
}

// NewLocalStore creates a file-backed store at path, creating the parent
// directory if needed.
func NewLocalStore(path string) (*LocalStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &LocalStore{path: path}, nil
}

// Path returns the snapshot file location.
func (s *LocalStore) Path() string { return s.path }

func (s *LocalStore) Read(_ context.Context) ([]ckan.Dataset, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, true, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var datasets []ckan.Dataset
	if err := json.Unmarshal(data, &datasets); err != nil {
		return nil, true, fmt.Errorf("failed to decode snapshot file: %w", err)
	}
	return datasets, true, nil
}

func (s *LocalStore) Write(_ context.Context, datasets []ckan.Dataset) error {
	data, err := json.Marshal(datasets)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0640); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	return nil
}

func (s *LocalStore) Delete(_ context.Context) error {
	if err := os.Remove(s.path); err != nil {
		if os.IsNotExist(err) {
			return nil // already gone, consider it deleted
		}
		return fmt.Errorf("failed to delete snapshot file: %w", err)
	}
	return nil
}
