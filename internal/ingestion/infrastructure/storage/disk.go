package storage

import (
	"errors"
	"os"
	"path/filepath"
)

// DiskStore persists raw payroll files under a storage root.
type DiskStore struct {
	root string
}

// NewDiskStore constructs a disk store, creating the root if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	if root == "" {
		return nil, errors.New("storage: empty root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{root: root}, nil
}

// Save writes the raw bytes and returns the storage path. The original
// extension is kept for later re-parsing.
func (s *DiskStore) Save(id, name string, data []byte) (string, error) {
	if id == "" {
		return "", errors.New("storage: empty id")
	}
	ext := filepath.Ext(name)
	if ext == "" {
		ext = ".xlsx"
	}
	path := filepath.Join(s.root, id+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads back the raw bytes at a storage path.
func (s *DiskStore) Load(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("storage: empty path")
	}
	return os.ReadFile(path)
}
