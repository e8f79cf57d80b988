package memory

import (
	"cmp"
	"maps"
	"slices"
)

type revisionKey struct {
	aggregateID string
	revision    int64
}

// aggregateBucket indexes one aggregate's events in the shared log.
type aggregateBucket struct {
	// log indices in position order
	positions []int
	revisions map[int64]int
}

func newAggregateBucket() *aggregateBucket {
	return &aggregateBucket{
		positions: make([]int, 0),
		revisions: make(map[int64]int),
	}
}

func (b *aggregateBucket) has(revision int64) bool {
	_, ok := b.revisions[revision]
	return ok
}

func (b *aggregateBucket) add(revision int64, idx int) {
	b.positions = append(b.positions, idx)
	b.revisions[revision] = idx
}

// byRevision returns the log indices ordered by ascending revision.
func (b *aggregateBucket) byRevision() []int {
	revs := slices.SortedFunc(maps.Keys(b.revisions), cmp.Compare[int64])
	out := make([]int, len(revs))
	for i, rev := range revs {
		out[i] = b.revisions[rev]
	}
	return out
}
