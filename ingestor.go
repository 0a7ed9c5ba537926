// Package rehost ingests scraped assets into content-addressed hosted
// storage: fetch, classify, hash, idempotent upload, manifest dedup.
package rehost

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/scratchatlas/rehost/blobstore"
	"github.com/scratchatlas/rehost/content"
	"github.com/scratchatlas/rehost/fetch"
	"github.com/scratchatlas/rehost/manifest"
)

// Storage is the slice of a storage provider the ingestor needs. Head
// never errors on absence; Write is safe to repeat for a key since keys
// are content-addressed; PublicURL is pure.
type Storage interface {
	Head(ctx context.Context, key string) (blobstore.HeadResult, error)
	Write(ctx context.Context, key string, data []byte, contentType, cacheControl string) (blobstore.Attributes, error)
	PublicURL(key string) string
}

// Hosted is a successfully hosted asset: the result of a fresh upload, a
// key that already existed, or a manifest cache hit. Immutable.
type Hosted struct {
	Key         string
	URL         string
	ContentType string
	Bytes       int64
	ETag        string
	SHA256      string
}

// Request names one asset slot to host.
type Request struct {
	SourceURL string
	Spec      content.KeySpec
}

// Result pairs a request with its outcome. Err is set only after every
// fallback path (retry, browser, storage) was exhausted.
type Result struct {
	Request Request
	Hosted  Hosted
	Err     error
}

type Ingestor struct {
	storage Storage
	fetcher *fetch.Client
	man     *manifest.Manifest
	opts    IngestorOptions
	metrics *IngestMetrics

	flight singleflight.Group
	cache  *ristretto.Cache[string, cachedFetch]
}

func NewIngestor(storage Storage, fetcher *fetch.Client, man *manifest.Manifest, opts IngestorOptions) (*Ingestor, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if man == nil {
		man = manifest.New()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.CacheControl == "" {
		opts.CacheControl = DefaultCacheControl
	}

	cache, err := newFetchCache(opts.FetchCacheSize)
	if err != nil {
		return nil, fmt.Errorf("init fetch cache: %w", err)
	}

	return &Ingestor{
		storage: storage,
		fetcher: fetcher,
		man:     man,
		opts:    opts,
		metrics: opts.Metrics,
		cache:   cache,
	}, nil
}

// Manifest exposes the shared dedup state for persistence at end of run.
func (in *Ingestor) Manifest() *manifest.Manifest {
	return in.man
}

func (in *Ingestor) Close() {
	if in.cache != nil {
		in.cache.Close()
	}
}

// EnsureHosted resolves a source URL to a hosted asset, fetching and
// uploading only when needed. Concurrent calls for the same slot share
// one execution.
func (in *Ingestor) EnsureHosted(ctx context.Context, req Request) (Hosted, error) {
	if err := req.Spec.Validate(); err != nil {
		return Hosted{}, &IngestError{SourceURL: req.SourceURL, Err: err}
	}
	if req.SourceURL == "" {
		return Hosted{}, &IngestError{SourceURL: req.SourceURL, Err: fmt.Errorf("source url is required")}
	}

	if in.opts.PerAssetTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.opts.PerAssetTimeout)
		defer cancel()
	}

	flightKey := req.SourceURL + "|" + req.Spec.Prefix() + req.Spec.Kind
	v, err, _ := in.flight.Do(flightKey, func() (interface{}, error) {
		return in.ensureHosted(ctx, req)
	})
	if err != nil {
		return Hosted{}, err
	}
	return v.(Hosted), nil
}

func (in *Ingestor) ensureHosted(ctx context.Context, req Request) (Hosted, error) {
	if hosted, ok := in.fromManifest(ctx, req); ok {
		in.metrics.ObserveManifestHit()
		return hosted, nil
	}

	body, declared, err := in.fetchBytes(ctx, req.SourceURL)
	if err != nil {
		return Hosted{}, &IngestError{SourceURL: req.SourceURL, Err: err}
	}

	contentType, err := content.Classify(body, declared)
	if err != nil {
		return Hosted{}, &IngestError{SourceURL: req.SourceURL, Err: err}
	}

	key, sum, err := content.Address(body, req.Spec, contentType)
	if err != nil {
		return Hosted{}, &IngestError{SourceURL: req.SourceURL, Err: err}
	}

	hosted, err := in.upload(ctx, key, body, contentType, sum)
	if err != nil {
		return Hosted{}, &IngestError{SourceURL: req.SourceURL, Err: err}
	}

	// A dry run never wrote the key, so recording it would poison the
	// manifest for the next real run.
	if !in.opts.DryRun {
		in.man.Put(req.SourceURL, manifest.Entry{
			Key:         hosted.Key,
			URL:         hosted.URL,
			ETag:        hosted.ETag,
			Bytes:       hosted.Bytes,
			ContentType: hosted.ContentType,
			SHA256:      hosted.SHA256,
		})
	}
	return hosted, nil
}

// fromManifest resolves a cached entry without any source fetch. The
// entry must survive a remote head check; rehostAll and a namespace
// mismatch both force a full re-ingest. A stale entry is left in place
// until the re-ingest succeeds.
func (in *Ingestor) fromManifest(ctx context.Context, req Request) (Hosted, bool) {
	if in.opts.RehostAll {
		return Hosted{}, false
	}
	entry, ok := in.man.Get(req.SourceURL)
	if !ok {
		return Hosted{}, false
	}
	if !strings.HasPrefix(entry.Key, req.Spec.Prefix()) {
		slog.Debug("rehost: manifest entry namespace mismatch, re-ingesting",
			"source_url", req.SourceURL, "cached_key", entry.Key, "want_prefix", req.Spec.Prefix())
		return Hosted{}, false
	}

	head, err := in.storage.Head(ctx, entry.Key)
	if err != nil || !head.Exists {
		slog.Warn("rehost: manifest entry stale, re-ingesting",
			"source_url", req.SourceURL, "key", entry.Key, "error", err)
		return Hosted{}, false
	}

	return Hosted{
		Key:         entry.Key,
		URL:         entry.URL,
		ContentType: entry.ContentType,
		Bytes:       entry.Bytes,
		ETag:        head.ETag,
		SHA256:      entry.SHA256,
	}, true
}

func (in *Ingestor) fetchBytes(ctx context.Context, sourceURL string) ([]byte, string, error) {
	if cached, ok := in.cache.Get(sourceURL); ok {
		in.metrics.ObserveCacheHit()
		return cached.body, cached.declaredType, nil
	}

	start := time.Now()
	res, err := in.fetcher.Fetch(ctx, sourceURL)
	in.metrics.ObserveFetch(time.Since(start), res.ViaBrowser, err)
	if err != nil {
		return nil, "", err
	}

	in.cache.Set(sourceURL, cachedFetch{body: res.Body, declaredType: res.DeclaredType}, int64(len(res.Body)))
	return res.Body, res.DeclaredType, nil
}

func (in *Ingestor) upload(ctx context.Context, key string, body []byte, contentType, sum string) (Hosted, error) {
	hosted := Hosted{
		Key:         key,
		URL:         in.storage.PublicURL(key),
		ContentType: contentType,
		Bytes:       int64(len(body)),
		SHA256:      sum,
	}

	if in.opts.OnlyMissing {
		head, err := in.storage.Head(ctx, key)
		if err != nil {
			return Hosted{}, &StorageError{Op: "head", Key: key, Err: err}
		}
		if head.Exists {
			in.metrics.ObserveHeadHit()
			hosted.ETag = head.ETag
			return hosted, nil
		}
	}

	start := time.Now()
	attr, err := in.storage.Write(ctx, key, body, contentType, in.opts.CacheControl)
	in.metrics.ObservePut(time.Since(start), len(body), err)
	if err != nil {
		return Hosted{}, &StorageError{Op: "put", Key: key, Err: err}
	}

	hosted.ETag = attr.ETag
	return hosted, nil
}

// EnsureAll runs the requests under the bounded worker pool. Per-asset
// failures are downgraded to warnings here at the orchestrator boundary;
// the caller keeps each failed slot's original source URL.
func (in *Ingestor) EnsureAll(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.opts.Concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			hosted, err := in.EnsureHosted(gctx, req)
			if err != nil {
				in.metrics.ObserveIngestError()
				slog.Warn("rehost: asset ingestion failed",
					"entity", req.Spec.EntityID, "kind", req.Spec.Kind,
					"source_url", req.SourceURL, "error", err)
			}
			results[i] = Result{Request: req, Hosted: hosted, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
