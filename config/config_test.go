package config

import (
	"testing"
	"time"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestResolveStorage_PriorityChain(t *testing.T) {
	// Bucket backend wins when fully resolvable.
	cfg, err := ResolveStorage(env(map[string]string{
		"REHOST_BUCKET":         "assets-bucket",
		"REHOST_PUBLIC_BASE":    "https://cdn.example.com",
		"REHOST_S3_BUCKET":      "also-configured",
		"REHOST_S3_PUBLIC_BASE": "https://s3.example.com",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Kind != KindBucket {
		t.Fatalf("kind = %q", cfg.Kind)
	}

	// S3 next.
	cfg, err = ResolveStorage(env(map[string]string{
		"REHOST_S3_BUCKET":      "s3-bucket",
		"REHOST_S3_PUBLIC_BASE": "https://s3.example.com",
		"REHOST_S3_ENDPOINT":    "https://minio.internal:9000",
		"REHOST_S3_ACCESS_KEY":  "ak",
		"REHOST_S3_SECRET_KEY":  "sk",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Kind != KindS3 {
		t.Fatalf("kind = %q", cfg.Kind)
	}
	if cfg.S3.Endpoint != "https://minio.internal:9000" || !cfg.S3.PathStyle {
		t.Fatalf("s3 config: %+v", cfg.S3)
	}

	// Azure after S3.
	cfg, err = ResolveStorage(env(map[string]string{
		"REHOST_AZURE_CONTAINER":   "assets",
		"REHOST_AZURE_PUBLIC_BASE": "https://cdn.example.net",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Kind != KindAzure || cfg.AzureContainer != "assets" {
		t.Fatalf("azure config: %+v", cfg)
	}

	// Filesystem fallback when nothing is configured.
	cfg, err = ResolveStorage(env(nil))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Kind != KindFile {
		t.Fatalf("kind = %q", cfg.Kind)
	}
	if cfg.FileDir == "" || cfg.PublicBase == "" {
		t.Fatalf("file fallback incomplete: %+v", cfg)
	}
}

func TestResolveStorage_S3RequiresPublicBase(t *testing.T) {
	_, err := ResolveStorage(env(map[string]string{
		"REHOST_S3_BUCKET": "s3-bucket",
	}))
	if err == nil {
		t.Fatal("expected error for missing public base")
	}
}

func TestResolveStorage_BucketNeedsPublicBaseToWin(t *testing.T) {
	cfg, err := ResolveStorage(env(map[string]string{
		"REHOST_BUCKET":         "assets-bucket", // no public base
		"REHOST_S3_BUCKET":      "s3-bucket",
		"REHOST_S3_PUBLIC_BASE": "https://s3.example.com",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Kind != KindS3 {
		t.Fatalf("incomplete bucket config should fall through to s3, got %q", cfg.Kind)
	}
}

func TestResolveRun_Defaults(t *testing.T) {
	cfg := ResolveRun(env(nil))
	if cfg.Concurrency != 6 {
		t.Fatalf("concurrency = %d", cfg.Concurrency)
	}
	if !cfg.OnlyMissing {
		t.Fatal("onlyMissing should default true")
	}
	if cfg.DryRun || cfg.RehostAll {
		t.Fatal("dryRun/rehostAll should default false")
	}
	if cfg.MinCoverage != 0.8 {
		t.Fatalf("minCoverage = %v", cfg.MinCoverage)
	}
	if !cfg.Metrics {
		t.Fatal("metrics should default on")
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Fatalf("fetchTimeout = %v", cfg.FetchTimeout)
	}
}

func TestResolveRun_Overrides(t *testing.T) {
	cfg := ResolveRun(env(map[string]string{
		"REHOST_CONCURRENCY":   "3",
		"REHOST_DRY_RUN":       "true",
		"REHOST_ONLY_MISSING":  "false",
		"REHOST_MIN_COVERAGE":  "0.95",
		"REHOST_ALLOWED_HOSTS": "nylottery.ny.gov, texaslottery.com",
	}))
	if cfg.Concurrency != 3 || !cfg.DryRun || cfg.OnlyMissing {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.AllowedHosts) != 2 || cfg.AllowedHosts[1] != "texaslottery.com" {
		t.Fatalf("allowed hosts: %v", cfg.AllowedHosts)
	}
}
