package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps artifacts under a directory and hands out file:// refs.
type LocalStore struct {
	root string
}

// NewLocalStore creates root if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("NewLocalStore: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("NewLocalStore: creating %s: %w", abs, err)
	}
	return &LocalStore{root: abs}, nil
}

func (s *LocalStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	p, err := s.resolve(key)
	if err != nil {
		return "", fmt.Errorf("Put: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return "", fmt.Errorf("Put: creating directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", fmt.Errorf("Put: writing %s: %w", key, err)
	}
	return "file://" + filepath.ToSlash(p), nil
}

func (s *LocalStore) Get(_ context.Context, ref string) ([]byte, error) {
	if !strings.HasPrefix(ref, "file://") {
		return nil, fmt.Errorf("Get: %s: %w", ref, ErrInvalidRef)
	}
	p := filepath.FromSlash(strings.TrimPrefix(ref, "file://"))
	if !s.contains(p) {
		return nil, fmt.Errorf("Get: %s is outside the store: %w", ref, ErrInvalidRef)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return data, nil
}

func (s *LocalStore) resolve(key string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if !s.contains(p) {
		return "", fmt.Errorf("key %q escapes the store: %w", key, ErrInvalidRef)
	}
	return p, nil
}

func (s *LocalStore) contains(p string) bool {
	rel, err := filepath.Rel(s.root, filepath.Clean(p))
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
