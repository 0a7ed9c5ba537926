// Package snapshot reconciles freshly scraped catalog entities against the
// previously published snapshot: lifecycle classification, a monotonic
// history merge with an anti-truncation guard, and the published index.
package snapshot

import (
	"sort"
	"time"
)

// Entity is a scraped catalog record, e.g. one scratch-ticket game. Asset
// URL fields start as upstream source URLs and are replaced by hosted
// URLs during ingestion. Optional numeric fields are pointers so a failed
// per-field scrape is distinguishable from zero.
type Entity struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`

	Price       *float64 `json:"price,omitempty"`
	OverallOdds *float64 `json:"overallOdds,omitempty"`

	TicketImageURL string `json:"ticketImageUrl,omitempty"`
	OddsImageURL   string `json:"oddsImageUrl,omitempty"`

	LaunchDate string `json:"launchDate,omitempty"`
	EndDate    string `json:"endDate,omitempty"`
}

// Snapshot is one run's view of the live catalog.
type Snapshot struct {
	UpdatedAt time.Time `json:"updatedAt"`
	Entities  []Entity  `json:"entities"`
}

func (s *Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Entities))
	for _, e := range s.Entities {
		ids = append(ids, e.ID)
	}
	return ids
}

// Delta classifies entity lifecycle between two runs.
type Delta struct {
	New        []string `json:"new"`
	Continuing []string `json:"continuing"`
	Ended      []string `json:"ended"`
}

// Counts summarizes a delta for the published index.
type Counts struct {
	New        int `json:"new"`
	Continuing int `json:"continuing"`
	Ended      int `json:"ended"`
}

func (d Delta) Counts() Counts {
	return Counts{New: len(d.New), Continuing: len(d.Continuing), Ended: len(d.Ended)}
}

// Diff computes the lifecycle delta: new = now − prev, continuing =
// now ∩ prev, ended = prev − now. Output slices are sorted.
func Diff(prevIDs, nowIDs []string) Delta {
	prev := make(map[string]struct{}, len(prevIDs))
	for _, id := range prevIDs {
		prev[id] = struct{}{}
	}
	now := make(map[string]struct{}, len(nowIDs))
	for _, id := range nowIDs {
		now[id] = struct{}{}
	}

	var d Delta
	for id := range now {
		if _, ok := prev[id]; ok {
			d.Continuing = append(d.Continuing, id)
		} else {
			d.New = append(d.New, id)
		}
	}
	for id := range prev {
		if _, ok := now[id]; !ok {
			d.Ended = append(d.Ended, id)
		}
	}

	sort.Strings(d.New)
	sort.Strings(d.Continuing)
	sort.Strings(d.Ended)
	return d
}

// CarryForward fills fields the current run failed to re-scrape for a
// continuing entity from the previous run's value, so a partial per-field
// failure degrades gracefully instead of blanking published data.
func CarryForward(prev Entity, cur *Entity) {
	if cur.Name == "" {
		cur.Name = prev.Name
	}
	if cur.Price == nil {
		cur.Price = prev.Price
	}
	if cur.OverallOdds == nil {
		cur.OverallOdds = prev.OverallOdds
	}
	if cur.TicketImageURL == "" {
		cur.TicketImageURL = prev.TicketImageURL
	}
	if cur.OddsImageURL == "" {
		cur.OddsImageURL = prev.OddsImageURL
	}
	if cur.LaunchDate == "" {
		cur.LaunchDate = prev.LaunchDate
	}
	if cur.EndDate == "" {
		cur.EndDate = prev.EndDate
	}
}
