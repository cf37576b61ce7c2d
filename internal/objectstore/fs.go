package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FS stores artifacts on the local filesystem under a base directory.
// Intended for development and tests.
type FS struct {
	baseDir string
}

// NewFS creates a filesystem store rooted at baseDir.
func NewFS(baseDir string) (*FS, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create object store directory: %w", err)
	}

	return &FS{baseDir: baseDir}, nil
}

func (s *FS) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	return data, nil
}

func (s *FS) Write(ctx context.Context, key string, data []byte) (string, error) {
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}

	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write object %s: %w", key, err)
	}

	return fullPath, nil
}
