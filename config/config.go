// Package config resolves storage and run configuration from the
// environment. Resolution is a pure function of the provided getenv so
// provider selection is decided once at startup and injected explicitly,
// never read from ambient globals mid-run.
package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/scratchatlas/rehost/blobstore"
)

type StorageKind string

const (
	KindBucket StorageKind = "bucket"
	KindS3     StorageKind = "s3"
	KindAzure  StorageKind = "azure"
	KindFile   StorageKind = "file"
)

type StorageConfig struct {
	Kind StorageKind

	// Bucket backend (cloud blob storage, gs:// style).
	Bucket     string
	PublicBase string

	// S3-compatible backend.
	S3 blobstore.S3Options

	// Azure Blob Storage backend.
	AzureContainer string

	// Filesystem fallback.
	FileDir string

	Prefix string
}

// ResolveStorage evaluates the backend priority chain once: the bucket
// blob backend when bucket+public-base resolve, else a fully configured
// S3-compatible backend, else an Azure container, else the filesystem
// fallback.
func ResolveStorage(getenv func(string) string) (StorageConfig, error) {
	prefix := getenv("REHOST_KEY_PREFIX")

	if bucket, base := getenv("REHOST_BUCKET"), getenv("REHOST_PUBLIC_BASE"); bucket != "" && base != "" {
		return StorageConfig{
			Kind:       KindBucket,
			Bucket:     bucket,
			PublicBase: base,
			Prefix:     prefix,
		}, nil
	}

	if bucket := getenv("REHOST_S3_BUCKET"); bucket != "" {
		base := getenv("REHOST_S3_PUBLIC_BASE")
		if base == "" {
			return StorageConfig{}, fmt.Errorf("REHOST_S3_PUBLIC_BASE is required with REHOST_S3_BUCKET")
		}
		return StorageConfig{
			Kind: KindS3,
			S3: blobstore.S3Options{
				Bucket:    bucket,
				Region:    getenv("REHOST_S3_REGION"),
				Endpoint:  getenv("REHOST_S3_ENDPOINT"),
				AccessKey: getenv("REHOST_S3_ACCESS_KEY"),
				SecretKey: getenv("REHOST_S3_SECRET_KEY"),
				PathStyle: parseBool(getenv("REHOST_S3_PATH_STYLE"), true),
			},
			PublicBase: base,
			Prefix:     prefix,
		}, nil
	}

	if container := getenv("REHOST_AZURE_CONTAINER"); container != "" {
		base := getenv("REHOST_AZURE_PUBLIC_BASE")
		if base == "" {
			return StorageConfig{}, fmt.Errorf("REHOST_AZURE_PUBLIC_BASE is required with REHOST_AZURE_CONTAINER")
		}
		return StorageConfig{
			Kind:           KindAzure,
			AzureContainer: container,
			PublicBase:     base,
			Prefix:         prefix,
		}, nil
	}

	dir := getenv("REHOST_FILE_DIR")
	if dir == "" {
		dir = "public/hosted"
	}
	base := getenv("REHOST_FILE_PUBLIC_BASE")
	if base == "" {
		base = "/hosted"
	}
	return StorageConfig{
		Kind:       KindFile,
		FileDir:    dir,
		PublicBase: base,
		Prefix:     prefix,
	}, nil
}

// OpenStore builds the provider the resolved config names.
func OpenStore(ctx context.Context, cfg StorageConfig) (*blobstore.Store, error) {
	switch cfg.Kind {
	case KindBucket:
		return blobstore.NewGCS(ctx, cfg.Bucket, cfg.Prefix, cfg.PublicBase)
	case KindS3:
		return blobstore.NewS3(ctx, cfg.S3, cfg.Prefix, cfg.PublicBase)
	case KindAzure:
		return blobstore.NewAzure(ctx, cfg.AzureContainer, cfg.Prefix, cfg.PublicBase)
	case KindFile:
		return blobstore.NewFile(ctx, cfg.FileDir, cfg.Prefix, cfg.PublicBase)
	default:
		return nil, fmt.Errorf("unknown storage kind %q", cfg.Kind)
	}
}

type RunConfig struct {
	Concurrency int
	DryRun      bool
	RehostAll   bool
	OnlyMissing bool
	MinCoverage float64
	Metrics     bool

	FetchTimeout time.Duration
	MaxAttempts  int

	AllowedHosts []string
	AllowPrivate bool

	BrowserPoolSize int
	BrowserEnabled  bool

	ManifestPath string
	MirrorRemote bool
	IndexPath    string
	HistoryPath  string
	MergeLogPath string
}

func ResolveRun(getenv func(string) string) RunConfig {
	return RunConfig{
		Concurrency:     parseInt(getenv("REHOST_CONCURRENCY"), 6),
		DryRun:          parseBool(getenv("REHOST_DRY_RUN"), false),
		RehostAll:       parseBool(getenv("REHOST_REHOST_ALL"), false),
		OnlyMissing:     parseBool(getenv("REHOST_ONLY_MISSING"), true),
		MinCoverage:     parseFloat(getenv("REHOST_MIN_COVERAGE"), 0.8),
		Metrics:         parseBool(getenv("REHOST_METRICS"), true),
		FetchTimeout:    time.Duration(parseInt(getenv("REHOST_FETCH_TIMEOUT_SECONDS"), 10)) * time.Second,
		MaxAttempts:     parseInt(getenv("REHOST_FETCH_ATTEMPTS"), 3),
		AllowedHosts:    splitList(getenv("REHOST_ALLOWED_HOSTS")),
		AllowPrivate:    parseBool(getenv("REHOST_ALLOW_PRIVATE_HOSTS"), false),
		BrowserPoolSize: parseInt(getenv("REHOST_BROWSER_POOL"), 2),
		BrowserEnabled:  parseBool(getenv("REHOST_BROWSER_ENABLED"), true),
		ManifestPath:    withDefault(getenv("REHOST_MANIFEST_PATH"), "data/rehost-manifest.json"),
		MirrorRemote:    parseBool(getenv("REHOST_MIRROR_MANIFEST"), true),
		IndexPath:       withDefault(getenv("REHOST_INDEX_PATH"), "data/index.json"),
		HistoryPath:     withDefault(getenv("REHOST_HISTORY_PATH"), "data/history.json"),
		MergeLogPath:    withDefault(getenv("REHOST_MERGE_LOG_PATH"), "data/merge-log.jsonl"),
	}
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func parseBool(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

func withDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
