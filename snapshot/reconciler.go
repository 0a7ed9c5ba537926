package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/segmentio/ksuid"
)

// ErrTruncationGuard marks a refused history write. It protects the file,
// not the process: callers log it and move on.
var ErrTruncationGuard = errors.New("merge result smaller than existing history, refusing to overwrite")

// Reconciler diffs a fresh entity list against the last published
// snapshot and maintains the on-disk history merge. Runs strictly after
// all ingestion completes; single-threaded.
type Reconciler struct {
	IndexPath    string
	HistoryPath  string
	MergeLogPath string
}

// Reconcile classifies lifecycle and applies carry-forward to continuing
// entities. The returned snapshot contains exactly the currently live set.
func (r *Reconciler) Reconcile(prev *Snapshot, current []Entity) (*Snapshot, Delta) {
	var prevIDs []string
	prevByID := make(map[string]Entity)
	if prev != nil {
		prevIDs = prev.IDs()
		for _, e := range prev.Entities {
			prevByID[e.ID] = e
		}
	}

	nowIDs := make([]string, 0, len(current))
	for _, e := range current {
		nowIDs = append(nowIDs, e.ID)
	}
	delta := Diff(prevIDs, nowIDs)

	merged := make([]Entity, len(current))
	copy(merged, current)
	for i := range merged {
		if prevEnt, ok := prevByID[merged[i].ID]; ok {
			CarryForward(prevEnt, &merged[i])
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })

	return &Snapshot{UpdatedAt: time.Now().UTC(), Entities: merged}, delta
}

// LoadPrevious reads the last published index. Missing or malformed files
// yield nil so a first run or a damaged file starts clean.
func (r *Reconciler) LoadPrevious() *Snapshot {
	data, err := os.ReadFile(r.IndexPath)
	if err != nil {
		return nil
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		slog.Warn("rehost: previous index malformed, treating as first run", "path", r.IndexPath, "error", err)
		return nil
	}
	return &Snapshot{UpdatedAt: idx.UpdatedAt, Entities: idx.Entities}
}

// MergeHistory folds the current snapshot into the full historical entity
// set: live entities replace their historical versions, ended entities
// are retained.
func MergeHistory(history []Entity, snap *Snapshot) []Entity {
	byID := make(map[string]Entity, len(history)+len(snap.Entities))
	for _, e := range history {
		byID[e.ID] = e
	}
	for _, e := range snap.Entities {
		if old, ok := byID[e.ID]; ok {
			CarryForward(old, &e)
		}
		byID[e.ID] = e
	}

	merged := make([]Entity, 0, len(byID))
	for _, e := range byID {
		merged = append(merged, e)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })
	return merged
}

// WriteHistory persists the merged history, refusing to shrink it. A
// transient scrape failure that parses zero games must never silently
// erase history; the correct recovery is to keep the previous file.
func (r *Reconciler) WriteHistory(merged []Entity) error {
	newData, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	if oldData, err := os.ReadFile(r.HistoryPath); err == nil {
		var old []Entity
		if err := json.Unmarshal(oldData, &old); err == nil {
			if len(merged) < len(old) || (len(merged) == len(old) && len(newData) < len(oldData)) {
				slog.Warn("rehost: anti-truncation guard tripped, keeping previous history",
					"path", r.HistoryPath,
					"old_count", len(old), "new_count", len(merged),
					"old_bytes", len(oldData), "new_bytes", len(newData))
				return ErrTruncationGuard
			}
		}
	}

	return writeFileAtomic(r.HistoryPath, newData)
}

// LoadHistory reads the historical entity set; missing or malformed files
// are empty.
func (r *Reconciler) LoadHistory() []Entity {
	data, err := os.ReadFile(r.HistoryPath)
	if err != nil {
		return nil
	}
	var history []Entity
	if err := json.Unmarshal(data, &history); err != nil {
		slog.Warn("rehost: history malformed, treating as empty", "path", r.HistoryPath, "error", err)
		return nil
	}
	return history
}

// MergeLogEntry is one line of the reconciliation audit trail.
type MergeLogEntry struct {
	ID     ksuid.KSUID `json:"id"`
	At     time.Time   `json:"at"`
	Counts Counts      `json:"counts"`
	Total  int         `json:"total"`
}

// AppendMergeLog records a reconciliation next to the history file.
func (r *Reconciler) AppendMergeLog(delta Delta, total int) error {
	if r.MergeLogPath == "" {
		return nil
	}
	entry := MergeLogEntry{
		ID:     ksuid.New(),
		At:     time.Now().UTC(),
		Counts: delta.Counts(),
		Total:  total,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode merge log entry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.MergeLogPath), 0755); err != nil {
		return fmt.Errorf("create merge log dir: %w", err)
	}
	f, err := os.OpenFile(r.MergeLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open merge log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append merge log: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".history-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
