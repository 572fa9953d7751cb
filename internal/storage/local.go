package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("object not found")

// LocalStore keeps uploaded documents on the local filesystem under root.
// Keys are slash-separated relative paths such as
// "users/<id>/uploads/<file-id>.pdf".
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	escapes := clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator))
	if key == "" || filepath.IsAbs(clean) || clean == "." || escapes {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Save writes r to key atomically, returning the number of bytes written.
func (s *LocalStore) Save(ctx context.Context, key string, r io.Reader) (int64, error) {
	dst, err := s.path(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, fmt.Errorf("failed to store %s: %w", key, err)
	}
	return n, nil
}

func (s *LocalStore) Load(ctx context.Context, key string) ([]byte, error) {
	src, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(src)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Delete removes key; deleting a missing key is not an error.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
