package rehost

import "time"

const (
	// DefaultCacheControl suits content-addressed keys: the bytes behind
	// a key never change, so clients may cache forever.
	DefaultCacheControl = "public, max-age=31536000, immutable"

	DefaultConcurrency = 6

	DefaultFetchCacheSize = 64 * 1024 * 1024
)

type IngestorOptions struct {
	// Concurrency bounds in-flight ingestion jobs across EnsureAll.
	Concurrency int

	// DryRun skips real storage writes and manifest mirroring; intended
	// URLs are logged instead.
	DryRun bool

	// RehostAll bypasses manifest reuse and re-ingests every asset.
	RehostAll bool

	// OnlyMissing skips the upload when the content-addressed key
	// already exists remotely.
	OnlyMissing bool

	CacheControl string

	// FetchCacheSize bounds the in-run fetched-bytes cache that
	// deduplicates slots sharing one source URL.
	FetchCacheSize int64

	// PerAssetTimeout bounds one EnsureHosted call end to end.
	PerAssetTimeout time.Duration

	Metrics *IngestMetrics
}

func DefaultIngestorOptions() IngestorOptions {
	return IngestorOptions{
		Concurrency:     DefaultConcurrency,
		OnlyMissing:     true,
		CacheControl:    DefaultCacheControl,
		FetchCacheSize:  DefaultFetchCacheSize,
		PerAssetTimeout: 2 * time.Minute,
	}
}
