package assets

import (
	"context"
	"fmt"
	"strings"

	"notion_sync/internal/config"
)

// Storage persists mirrored files and addresses them by public path.
type Storage interface {
	Put(ctx context.Context, name, contentType string, data []byte) error
	// Delete removes a file. Deleting a missing file is not an error.
	Delete(ctx context.Context, name string) error
	// PublicPath is the path or url embedded into content for name.
	PublicPath(name string) string
}

// OwnedName returns the file name behind a public path produced by s.
func OwnedName(s Storage, publicPath string) (string, bool) {
	prefix := s.PublicPath("")
	if publicPath == "" || !strings.HasPrefix(publicPath, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(publicPath, prefix)
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

// NewStorageFromConfig creates a Storage implementation based on the backend type.
func NewStorageFromConfig(ctx context.Context, cfg config.AssetsConfig) (Storage, error) {
	switch cfg.Backend {
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem asset backend requires assets.root to be set")
		}
		return NewFileSystemStorage(cfg.Root, cfg.URLPrefix)
	case "s3":
		return NewS3Storage(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown asset backend: %s", cfg.Backend)
	}
}
