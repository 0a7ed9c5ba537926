package rehost

import (
	"github.com/dgraph-io/ristretto/v2"
)

// cachedFetch holds one downloaded asset for the duration of a run so
// multiple slots pointing at the same source URL cost one download.
type cachedFetch struct {
	body         []byte
	declaredType string
}

const fetchCacheAvgItem = 256 * 1024

func newFetchCache(maxBytes int64) (*ristretto.Cache[string, cachedFetch], error) {
	if maxBytes <= 0 {
		maxBytes = DefaultFetchCacheSize
	}
	return ristretto.NewCache(&ristretto.Config[string, cachedFetch]{
		NumCounters: fetchCacheCounters(maxBytes),
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
}

func fetchCacheCounters(maxCost int64) int64 {
	entries := maxCost / fetchCacheAvgItem
	if entries < 1 {
		entries = 1
	}
	counters := entries * 10
	if counters < 1024 {
		counters = 1024
	}
	return counters
}
