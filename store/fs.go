package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FSSink writes evidence under a local directory.
type FSSink struct {
	dir string
}

// NewFSSink creates a filesystem sink rooted at dir, creating it if needed.
func NewFSSink(dir string) (*FSSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("evidence directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence directory: %w", err)
	}
	return &FSSink{dir: dir}, nil
}

// Dir returns the sink's root directory.
func (s *FSSink) Dir() string {
	return s.dir
}

// Put implements Sink.
func (s *FSSink) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Close implements Sink. No-op for the filesystem backend.
func (s *FSSink) Close() error {
	return nil
}
