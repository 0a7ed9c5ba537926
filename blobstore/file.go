package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	_ "gocloud.dev/blob/fileblob"
)

// NewFile creates a store backed by the local filesystem, the dev fallback
// when no cloud backend is configured. Objects land under dir and the
// public URL is synthesized from publicBase.
func NewFile(ctx context.Context, dir, prefix, publicBase string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path %s: %w", dir, err)
	}

	return Open(ctx, "file://"+absDir+"?create_dir=true", prefix, publicBase)
}

func NewFileTemp(prefix, publicBase string) (*Store, string, error) {
	dir, err := os.MkdirTemp("", "rehost-*")
	if err != nil {
		return nil, "", fmt.Errorf("create temp dir: %w", err)
	}

	store, err := NewFile(context.Background(), dir, prefix, publicBase)
	if err != nil {
		os.RemoveAll(dir)
		return nil, "", err
	}

	return store, dir, nil
}
