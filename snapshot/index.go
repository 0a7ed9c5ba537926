package snapshot

import (
	"encoding/json"
	"fmt"
	"time"
)

// Index is the published JSON consumed by the presentation layer.
type Index struct {
	UpdatedAt  time.Time  `json:"updatedAt"`
	Count      int        `json:"count"`
	DeltaIndex DeltaIndex `json:"deltaIndex"`
	Entities   []Entity   `json:"entities"`
}

type DeltaIndex struct {
	New        []string `json:"new"`
	Continuing []string `json:"continuing"`
	Ended      []string `json:"ended"`
	Counts     Counts   `json:"counts"`
}

// PublishIndex writes the live index for a reconciled snapshot.
func (r *Reconciler) PublishIndex(snap *Snapshot, delta Delta) error {
	idx := Index{
		UpdatedAt: snap.UpdatedAt,
		Count:     len(snap.Entities),
		DeltaIndex: DeltaIndex{
			New:        delta.New,
			Continuing: delta.Continuing,
			Ended:      delta.Ended,
			Counts:     delta.Counts(),
		},
		Entities: snap.Entities,
	}

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := writeFileAtomic(r.IndexPath, data); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}
