package blobstore

import (
	"context"
	"log/slog"
)

// DryRun wraps a Store so a run can be rehearsed without writing anything.
// Reads and existence checks pass through; writes log the intended object
// and report success with the attributes the real write would have had.
type DryRun struct {
	store *Store
}

func NewDryRun(store *Store) *DryRun {
	return &DryRun{store: store}
}

func (d *DryRun) Head(ctx context.Context, key string) (HeadResult, error) {
	return d.store.Head(ctx, key)
}

func (d *DryRun) Write(ctx context.Context, key string, data []byte, contentType, cacheControl string) (Attributes, error) {
	slog.Info("rehost: dry-run, skipping put",
		"key", key, "bytes", len(data), "content_type", contentType,
		"url", d.store.PublicURL(key))
	return Attributes{
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

func (d *DryRun) PublicURL(key string) string {
	return d.store.PublicURL(key)
}
