// Package manifest is the persistent dedup cache mapping an upstream
// source URL to its last-known hosted asset. It is loaded at process
// start, mutated in memory per ingested asset, and persisted at end of
// run, optionally mirrored to remote storage so runs on different
// machines share state.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Entry records where a source URL's bytes live now. The sha256 matches
// the bytes stored at Key at write time; reuse re-verifies via a head
// check, not a re-hash.
type Entry struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ETag        string `json:"etag,omitempty"`
	Bytes       int64  `json:"bytes"`
	ContentType string `json:"content_type"`
	SHA256      string `json:"sha256"`
}

func (e Entry) valid() bool {
	return e.Key != "" && e.URL != "" && e.SHA256 != ""
}

// Manifest maps source URL to Entry. Safe for concurrent readers and
// writers; ingestion workers share one instance.
type Manifest struct {
	mu      sync.RWMutex
	entries map[string]Entry
	dirty   bool
}

func New() *Manifest {
	return &Manifest{entries: make(map[string]Entry)}
}

func (m *Manifest) Get(sourceURL string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[sourceURL]
	return e, ok
}

func (m *Manifest) Put(sourceURL string, e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[sourceURL] = e
	m.dirty = true
}

func (m *Manifest) Delete(sourceURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[sourceURL]; ok {
		delete(m.entries, sourceURL)
		m.dirty = true
	}
}

func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Dirty reports whether the manifest changed since load.
func (m *Manifest) Dirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dirty
}

// Entries returns a copy of the underlying map.
func (m *Manifest) Entries() map[string]Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Entry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// Absorb copies entries from other that this manifest does not already
// have. Used when merging a remote mirror on CAS conflict; local entries
// win since they reflect this run's verified uploads.
func (m *Manifest) Absorb(other *Manifest) {
	theirs := other.Entries()
	m.mu.Lock()
	defer m.mu.Unlock()
	for url, e := range theirs {
		if _, ok := m.entries[url]; !ok {
			m.entries[url] = e
		}
	}
}

func Encode(m *Manifest) ([]byte, error) {
	return json.MarshalIndent(m.Entries(), "", "  ")
}

// Decode parses manifest JSON. Entries failing schema validation are
// dropped; anything else malformed yields an empty manifest and an error
// the caller may log but must not treat as fatal.
func Decode(data []byte) (*Manifest, error) {
	var raw map[string]Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return New(), fmt.Errorf("decode manifest: %w", err)
	}

	m := New()
	for url, e := range raw {
		if !e.valid() {
			slog.Warn("rehost: dropping invalid manifest entry", "source_url", url)
			continue
		}
		m.entries[url] = e
	}
	return m, nil
}

// Load reads the manifest file at path. A missing or malformed file is an
// empty manifest, never a crash.
func Load(path string) *Manifest {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("rehost: manifest unreadable, starting empty", "path", path, "error", err)
		}
		return New()
	}

	m, err := Decode(data)
	if err != nil {
		slog.Warn("rehost: manifest malformed, starting empty", "path", path, "error", err)
	}
	return m
}

// Save persists the manifest atomically (temp file + rename).
func Save(path string, m *Manifest) error {
	data, err := Encode(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp manifest: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}
