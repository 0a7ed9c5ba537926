// Command rehost ingests a scrape result's asset URLs into hosted
// storage and reconciles the catalog snapshot against the previously
// published index.
//
// The scrape input is a JSON array of catalog entities whose image fields
// still point at upstream source URLs. Those fields are replaced with
// hosted URLs where ingestion succeeds; failed slots keep their source
// URL so a flaky asset never blanks published data.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scratchatlas/rehost"
	"github.com/scratchatlas/rehost/blobstore"
	"github.com/scratchatlas/rehost/config"
	"github.com/scratchatlas/rehost/content"
	"github.com/scratchatlas/rehost/fetch"
	"github.com/scratchatlas/rehost/manifest"
	"github.com/scratchatlas/rehost/snapshot"
)

func main() {
	var (
		inputPath = flag.String("input", "", "path to scraped entities JSON (required)")
		namespace = flag.String("namespace", "tickets", "storage key namespace")
	)
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: rehost -input scrape.json [-namespace tickets]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *inputPath, *namespace); err != nil {
		slog.Error("rehost: run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, inputPath, namespace string) error {
	runCfg := config.ResolveRun(os.Getenv)
	storageCfg, err := config.ResolveStorage(os.Getenv)
	if err != nil {
		return err
	}

	entities, err := loadEntities(inputPath)
	if err != nil {
		return err
	}
	// A listing that parsed zero rows signals upstream breakage, not an
	// empty catalog.
	if err := rehost.CheckRun(len(entities), nil, 0); err != nil {
		return err
	}

	store, err := config.OpenStore(ctx, storageCfg)
	if err != nil {
		return fmt.Errorf("open storage backend: %w", err)
	}
	defer store.Close()
	slog.Info("rehost: storage backend selected", "kind", string(storageCfg.Kind))

	var storage rehost.Storage = store
	if runCfg.DryRun {
		storage = blobstore.NewDryRun(store)
	}

	var mirror *manifest.Mirror
	if runCfg.MirrorRemote && !runCfg.DryRun {
		mirror = manifest.NewMirror(store)
	}
	man := loadManifest(ctx, runCfg, mirror)

	fetchOpts := fetch.DefaultOptions()
	fetchOpts.Timeout = runCfg.FetchTimeout
	fetchOpts.MaxAttempts = runCfg.MaxAttempts
	fetchOpts.AllowedHosts = runCfg.AllowedHosts
	fetchOpts.AllowPrivate = runCfg.AllowPrivate
	if runCfg.BrowserEnabled {
		browser, err := fetch.NewChromeBrowser(fetch.ChromeOptions{PoolSize: runCfg.BrowserPoolSize})
		if err != nil {
			slog.Warn("rehost: headless browser unavailable, direct fetch only", "error", err)
		} else {
			fetchOpts.Browser = browser
			defer browser.Close()
		}
	}
	fetcher := fetch.NewClient(fetchOpts)

	opts := rehost.DefaultIngestorOptions()
	opts.Concurrency = runCfg.Concurrency
	opts.DryRun = runCfg.DryRun
	opts.RehostAll = runCfg.RehostAll
	opts.OnlyMissing = runCfg.OnlyMissing
	if runCfg.Metrics {
		opts.Metrics = rehost.NewIngestMetrics(prometheus.DefaultRegisterer)
	}

	ing, err := rehost.NewIngestor(storage, fetcher, man, opts)
	if err != nil {
		return err
	}
	defer ing.Close()

	report := ingestAssets(ctx, ing, entities, namespace)
	slog.Info("rehost: coverage", "summary", report.Summary())

	if !runCfg.DryRun {
		saveManifest(ctx, runCfg, mirror, man)
	}

	rec := &snapshot.Reconciler{
		IndexPath:    runCfg.IndexPath,
		HistoryPath:  runCfg.HistoryPath,
		MergeLogPath: runCfg.MergeLogPath,
	}
	prev := rec.LoadPrevious()
	snap, delta := rec.Reconcile(prev, entities)
	counts := delta.Counts()
	slog.Info("rehost: reconciled",
		"new", counts.New, "continuing", counts.Continuing, "ended", counts.Ended)

	merged := snapshot.MergeHistory(rec.LoadHistory(), snap)
	if err := rec.WriteHistory(merged); err != nil {
		if errors.Is(err, snapshot.ErrTruncationGuard) {
			// Protective no-op; the previous file stays intact.
			slog.Warn("rehost: history kept from previous run")
		} else {
			return err
		}
	}
	if err := rec.PublishIndex(snap, delta); err != nil {
		return err
	}
	if err := rec.AppendMergeLog(delta, len(merged)); err != nil {
		slog.Warn("rehost: merge log append failed", "error", err)
	}

	return rehost.CheckRun(len(snap.Entities), report, runCfg.MinCoverage)
}

// ingestAssets hosts every image slot and substitutes hosted URLs into
// the entities in place.
func ingestAssets(ctx context.Context, ing *rehost.Ingestor, entities []snapshot.Entity, namespace string) *rehost.CoverageReport {
	type slot struct {
		entity int
		kind   string
	}

	var reqs []rehost.Request
	var slots []slot
	for i, e := range entities {
		if e.TicketImageURL != "" {
			reqs = append(reqs, rehost.Request{
				SourceURL: e.TicketImageURL,
				Spec:      content.KeySpec{Namespace: namespace, EntityID: e.ID, Kind: "ticket"},
			})
			slots = append(slots, slot{entity: i, kind: "ticket"})
		}
		if e.OddsImageURL != "" {
			reqs = append(reqs, rehost.Request{
				SourceURL: e.OddsImageURL,
				Spec:      content.KeySpec{Namespace: namespace, EntityID: e.ID, Kind: "odds"},
			})
			slots = append(slots, slot{entity: i, kind: "odds"})
		}
	}

	results := ing.EnsureAll(ctx, reqs)

	report := rehost.NewCoverageReport()
	for i, res := range results {
		s := slots[i]
		report.Add(s.kind, res.Err == nil)
		if res.Err != nil {
			// Entity keeps its original source URL.
			continue
		}
		switch s.kind {
		case "ticket":
			entities[s.entity].TicketImageURL = res.Hosted.URL
		case "odds":
			entities[s.entity].OddsImageURL = res.Hosted.URL
		}
	}
	return report
}

func loadEntities(path string) ([]snapshot.Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scrape input: %w", err)
	}
	var entities []snapshot.Entity
	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, fmt.Errorf("parse scrape input: %w", err)
	}
	return entities, nil
}

// loadManifest merges the local manifest file with the remote mirror so
// dedup state survives machine changes.
func loadManifest(ctx context.Context, cfg config.RunConfig, mirror *manifest.Mirror) *manifest.Manifest {
	man := manifest.Load(cfg.ManifestPath)
	if mirror != nil {
		remote, err := mirror.Load(ctx)
		if err != nil {
			slog.Warn("rehost: manifest mirror load failed, using local only", "error", err)
		} else {
			man.Absorb(remote)
		}
	}
	return man
}

func saveManifest(ctx context.Context, cfg config.RunConfig, mirror *manifest.Mirror, man *manifest.Manifest) {
	if !man.Dirty() {
		return
	}
	if err := manifest.Save(cfg.ManifestPath, man); err != nil {
		slog.Warn("rehost: manifest save failed", "error", err)
	}
	if mirror != nil {
		if err := mirror.Save(ctx, man); err != nil {
			slog.Warn("rehost: manifest mirror save failed", "error", err)
		}
	}
}
