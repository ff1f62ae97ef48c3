package blob

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore keeps objects as files in a single directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the directory if needed and returns a LocalStore.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapOp("init", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) path(key string) string {
	// Keys are sanitized at construction, but strip any residual path
	// separators so a crafted key cannot escape the directory.
	return filepath.Join(s.dir, filepath.Base(key))
}

// Put writes the object to a temp file and renames it into place so readers
// never observe partial content.
func (s *LocalStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return wrapOp("put", key, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return wrapOp("put", key, err)
	}
	if err := tmp.Close(); err != nil {
		return wrapOp("put", key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return wrapOp("put", key, err)
	}
	return nil
}

// Get opens the stored file.
func (s *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapOp("get", key, err)
	}
	return f, nil
}

// Delete removes the stored file. Missing files are not an error.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return wrapOp("delete", key, err)
	}
	return nil
}

// Ping verifies the directory exists and is writable.
func (s *LocalStore) Ping(context.Context) error {
	tmp, err := os.CreateTemp(s.dir, ".ping-*")
	if err != nil {
		return wrapOp("ping", s.dir, err)
	}
	tmp.Close()
	return os.Remove(tmp.Name())
}
