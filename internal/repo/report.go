package repo

import (
	"fmt"

	"github.com/systemshift/mxvc/internal/metrics"
	"github.com/systemshift/mxvc/internal/store"
)

// RebaseReport counts what a rewrite did. Nothing is left out so callers
// can tell the user about every outcome.
type RebaseReport struct {
	// Rewritten counts targets moved to their new location.
	Rewritten int
	// Skipped counts targets whose parents were already the requested ones.
	Skipped int
	// RebasedDescendants counts non-target commits rewritten to follow.
	RebasedDescendants int
	// AbandonedEmpty lists targets abandoned because they became empty.
	AbandonedEmpty []store.CommitID
	// AbandonedDivergent lists targets abandoned because an equivalent
	// commit with the same change id already existed at the destination.
	AbandonedDivergent []store.CommitID
	// Conflicted counts written commits whose tree has conflicts.
	Conflicted int
	// Replacements maps each rewritten or abandoned commit to what now
	// stands in for it.
	Replacements map[store.CommitID][]store.CommitID
}

func newReport() *RebaseReport {
	return &RebaseReport{Replacements: map[store.CommitID][]store.CommitID{}}
}

// Empty reports whether nothing was rewritten, skipped or abandoned.
func (r *RebaseReport) Empty() bool {
	return r.Rewritten == 0 && r.Skipped == 0 && r.RebasedDescendants == 0 &&
		len(r.AbandonedEmpty) == 0 && len(r.AbandonedDivergent) == 0
}

// Summary returns one line per non-zero count.
func (r *RebaseReport) Summary() []string {
	var lines []string
	add := func(n int, format string) {
		if n > 0 {
			lines = append(lines, fmt.Sprintf(format, n))
		}
	}
	add(r.Skipped, "Skipped rebase of %d commits that were already in place")
	add(r.Rewritten, "Rebased %d commits to destination")
	add(r.RebasedDescendants, "Rebased %d descendant commits")
	add(len(r.AbandonedEmpty), "Abandoned %d newly emptied commits")
	add(len(r.AbandonedDivergent), "Abandoned %d divergent commits that were already present in the destination")
	add(r.Conflicted, "%d commits have conflicts")
	return lines
}

func (r *RebaseReport) observe(m *metrics.Metrics) {
	m.CommitsRewritten.WithLabelValues(metrics.KindRebased).Add(float64(r.Rewritten + r.RebasedDescendants))
	m.CommitsRewritten.WithLabelValues(metrics.KindSkipped).Add(float64(r.Skipped))
	m.CommitsRewritten.WithLabelValues(metrics.KindAbandoned).Add(float64(len(r.AbandonedEmpty) + len(r.AbandonedDivergent)))
}
