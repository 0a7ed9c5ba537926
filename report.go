package rehost

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNoEntities marks a run that produced nothing; systemic upstream
	// breakage, fatal to the run.
	ErrNoEntities = errors.New("run produced zero entities")

	// ErrLowCoverage marks a run whose hosted/total ratio fell below the
	// configured threshold.
	ErrLowCoverage = errors.New("asset coverage below threshold")
)

// CoverageReport tallies hosted vs. total asset slots per kind so an
// operator can judge whether a partial run is acceptable to publish.
type CoverageReport struct {
	hosted map[string]int
	total  map[string]int
}

func NewCoverageReport() *CoverageReport {
	return &CoverageReport{
		hosted: make(map[string]int),
		total:  make(map[string]int),
	}
}

func (r *CoverageReport) Add(kind string, hosted bool) {
	r.total[kind]++
	if hosted {
		r.hosted[kind]++
	}
}

func (r *CoverageReport) Ratio() float64 {
	var hosted, total int
	for _, n := range r.total {
		total += n
	}
	for _, n := range r.hosted {
		hosted += n
	}
	if total == 0 {
		return 1
	}
	return float64(hosted) / float64(total)
}

// Summary renders per-kind coverage, e.g. "odds=9/10 (90.0%) ticket=10/10 (100.0%)".
func (r *CoverageReport) Summary() string {
	kinds := make([]string, 0, len(r.total))
	for kind := range r.total {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		total := r.total[kind]
		hosted := r.hosted[kind]
		pct := 100.0
		if total > 0 {
			pct = float64(hosted) / float64(total) * 100
		}
		parts = append(parts, fmt.Sprintf("%s=%d/%d (%.1f%%)", kind, hosted, total, pct))
	}
	return strings.Join(parts, " ")
}

// CheckRun applies the aggregate guards: zero entities and low coverage
// are promoted to fatal failures because they indicate systemic upstream
// breakage rather than a single flaky asset.
func CheckRun(entityCount int, report *CoverageReport, minCoverage float64) error {
	if entityCount == 0 {
		return ErrNoEntities
	}
	if report != nil && minCoverage > 0 {
		if ratio := report.Ratio(); ratio < minCoverage {
			return fmt.Errorf("%w: %s (ratio %.2f < %.2f)", ErrLowCoverage, report.Summary(), ratio, minCoverage)
		}
	}
	return nil
}
