// Package storage keeps uploaded files on the local filesystem, keyed by a
// generated unique name so original file names never touch the disk layout.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage lays files out flat under basePath with the unique name as
// the on-disk name.
type LocalStorage struct {
	basePath string
	maxSize  int64
}

func NewLocalStorage(basePath string, maxSize int64) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStorage{basePath: basePath, maxSize: maxSize}, nil
}

// ErrTooLarge reports an upload over the configured size limit.
var ErrTooLarge = fmt.Errorf("file exceeds size limit")

func (s *LocalStorage) Save(_ context.Context, uniqueName string, size int64, reader io.Reader) error {
	if s.maxSize > 0 && size > s.maxSize {
		return ErrTooLarge
	}

	f, err := os.Create(filepath.Join(s.basePath, uniqueName))
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (s *LocalStorage) Open(_ context.Context, uniqueName string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.basePath, uniqueName))
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *LocalStorage) Delete(_ context.Context, uniqueName string) error {
	if err := os.Remove(filepath.Join(s.basePath, uniqueName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}
