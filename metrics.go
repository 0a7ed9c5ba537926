package rehost

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics is optional; a nil receiver or nil collector is a no-op
// so instrumentation never dictates control flow.
type IngestMetrics struct {
	FetchTotal       prometheus.Counter
	FetchErrors      prometheus.Counter
	FetchBrowserUsed prometheus.Counter
	FetchLatency     prometheus.Histogram

	ManifestHits prometheus.Counter
	HeadHits     prometheus.Counter
	CacheHits    prometheus.Counter

	PutTotal   prometheus.Counter
	PutErrors  prometheus.Counter
	PutBytes   prometheus.Counter
	PutLatency prometheus.Histogram

	IngestErrors prometheus.Counter
}

// NewIngestMetrics builds and registers the full metric set.
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	m := &IngestMetrics{
		FetchTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rehost_fetch_total", Help: "Source fetch attempts."}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rehost_fetch_errors_total", Help: "Source fetches that exhausted all fallbacks."}),
		FetchBrowserUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rehost_fetch_browser_total", Help: "Fetches served by the headless browser fallback."}),
		FetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "rehost_fetch_seconds", Help: "Source fetch latency.",
			Buckets: prometheus.DefBuckets}),
		ManifestHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rehost_manifest_hits_total", Help: "Assets resolved from the manifest without fetching."}),
		HeadHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rehost_head_hits_total", Help: "Uploads skipped because the content-addressed key already existed."}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rehost_fetch_cache_hits_total", Help: "Fetches served from the in-run bytes cache."}),
		PutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rehost_put_total", Help: "Storage puts."}),
		PutErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rehost_put_errors_total", Help: "Failed storage puts."}),
		PutBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rehost_put_bytes_total", Help: "Bytes uploaded."}),
		PutLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "rehost_put_seconds", Help: "Storage put latency.",
			Buckets: prometheus.DefBuckets}),
		IngestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rehost_ingest_errors_total", Help: "Assets that failed ingestion after all fallbacks."}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FetchTotal, m.FetchErrors, m.FetchBrowserUsed, m.FetchLatency,
			m.ManifestHits, m.HeadHits, m.CacheHits,
			m.PutTotal, m.PutErrors, m.PutBytes, m.PutLatency,
			m.IngestErrors,
		)
	}
	return m
}

func (m *IngestMetrics) incCounter(c prometheus.Counter) {
	if m == nil || c == nil {
		return
	}
	c.Inc()
}

func (m *IngestMetrics) addCounter(c prometheus.Counter, v float64) {
	if m == nil || c == nil || v == 0 {
		return
	}
	c.Add(v)
}

func (m *IngestMetrics) observe(h prometheus.Histogram, d time.Duration) {
	if m == nil || h == nil {
		return
	}
	h.Observe(d.Seconds())
}

func (m *IngestMetrics) ObserveManifestHit() {
	if m == nil {
		return
	}
	m.incCounter(m.ManifestHits)
}

func (m *IngestMetrics) ObserveHeadHit() {
	if m == nil {
		return
	}
	m.incCounter(m.HeadHits)
}

func (m *IngestMetrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.incCounter(m.CacheHits)
}

func (m *IngestMetrics) ObserveIngestError() {
	if m == nil {
		return
	}
	m.incCounter(m.IngestErrors)
}

func (m *IngestMetrics) ObserveFetch(d time.Duration, viaBrowser bool, err error) {
	if m == nil {
		return
	}
	m.incCounter(m.FetchTotal)
	m.observe(m.FetchLatency, d)
	if viaBrowser {
		m.incCounter(m.FetchBrowserUsed)
	}
	if err != nil {
		m.incCounter(m.FetchErrors)
	}
}

func (m *IngestMetrics) ObservePut(d time.Duration, bytes int, err error) {
	if m == nil {
		return
	}
	m.incCounter(m.PutTotal)
	m.observe(m.PutLatency, d)
	if err != nil {
		m.incCounter(m.PutErrors)
		return
	}
	m.addCounter(m.PutBytes, float64(bytes))
}
