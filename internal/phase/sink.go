// Package phase implements the Phase Sequencer: the two-stage orchestration
// spec.md §4.5 describes — build/seed Stage A, run it to quiescence, assemble
// and write its CSV, build/seed Stage B from Stage A's output, run it to
// quiescence, then assemble and write the final CSV.
//
// Grounded on internal/campaign/intelligence_gatherer.go's errgroup-based
// parallel-fan-out-with-shared-mutex-buffer shape in the teacher repo,
// narrowed from its N-independent-gatherers pattern to N-identical-workers
// draining one shared queue.Stage.
package phase

import (
	"sync"

	"harvester/internal/extract"
)

// rowBuffer is the per-stage row accumulator spec.md §4.5 step 3/6
// describes ("Row buffers per stage are appended under a per-buffer lock;
// consumed once by the Sequencer after quiescence"). It satisfies
// worker.RowSink.
type rowBuffer struct {
	mu       sync.Mutex
	listings []extract.ListingRow
	details  []extract.DetailRow
}

func newRowBuffer() *rowBuffer { return &rowBuffer{} }

func (b *rowBuffer) AddListing(r extract.ListingRow) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listings = append(b.listings, r)
}

func (b *rowBuffer) AddDetail(r extract.DetailRow) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.details = append(b.details, r)
}

func (b *rowBuffer) snapshotListings() []extract.ListingRow {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]extract.ListingRow(nil), b.listings...)
}

func (b *rowBuffer) snapshotDetails() []extract.DetailRow {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]extract.DetailRow(nil), b.details...)
}

// dedupeListings applies spec.md §4.5 step 3's rule: deduplicate by
// (url, intent, segment), keeping the first row seen for each key (rows
// arrive in completion order, not seed order, so "first seen" is simply
// "whichever worker finished first" — any later duplicate is discarded).
func dedupeListings(rows []extract.ListingRow) []extract.ListingRow {
	type key struct{ url, intent, segment string }
	seen := make(map[key]bool, len(rows))
	out := make([]extract.ListingRow, 0, len(rows))
	for _, r := range rows {
		k := key{r.URL, r.Intent, r.Segment}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}
