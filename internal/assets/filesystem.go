package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileSystemStorage keeps files flat under a root directory served at urlPrefix.
type FileSystemStorage struct {
	root      string
	urlPrefix string
}

// NewFileSystemStorage creates the root directory if needed.
func NewFileSystemStorage(root, urlPrefix string) (*FileSystemStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create asset directory: %w", err)
	}
	return &FileSystemStorage{
		root:      root,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
	}, nil
}

// Put writes data atomically (temp file + rename), replacing any previous file.
func (s *FileSystemStorage) Put(_ context.Context, name, _ string, data []byte) error {
	destPath, err := s.path(name)
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, bytes.NewReader(data))
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != int64(len(data)) {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", len(data), written)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

func (s *FileSystemStorage) Delete(_ context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

func (s *FileSystemStorage) PublicPath(name string) string {
	return s.urlPrefix + "/" + name
}

func (s *FileSystemStorage) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid asset name %q", name)
	}
	return filepath.Join(s.root, name), nil
}

var _ Storage = (*FileSystemStorage)(nil)
