// Package reduce merges per-shard partial results into one coherent, globally
// ordered response. Reduction is the only place in the query path where
// ordering matters: arrival order of shard callbacks is arbitrary, so every
// ordering decision here is deterministic and input-order independent.
package reduce

import (
	"container/heap"
	"sort"

	"github.com/dreamware/scatter/internal/search"
)

// RankedHit is a hit plus the stable shard position it came from. The shard
// index participates in tie-breaking and later routes the fetch phase.
type RankedHit struct {
	Hit        search.Hit
	ShardIndex int
	ContextID  string
	Target     search.ShardTarget
}

// ReducedQueryPhase is the outcome of reducing a query phase: the global
// top-K (after pagination), the merged total, merged aggregation values, and
// the per-shard continuation entries when scrolling.
type ReducedQueryPhase struct {
	TopHits       []RankedHit
	Total         search.TotalHits
	MaxScore      float64
	Aggregations  map[string]float64
	ScrollEntries []search.ScrollEntry
}

// ReduceQueryPhase merges N per-shard query results into the global top-K.
//
// Ordering is score descending with a fixed tie-break of (shard index
// ascending, doc ID ascending), so two runs over the same partial results
// produce byte-identical orderings no matter how the inputs are permuted.
// Pagination (from/size) is applied against the global ordering.
func ReduceQueryPhase(results []*search.QueryResult, req *search.Request) *ReducedQueryPhase {
	// Sort inputs by shard position so reduction is independent of the
	// order results arrived in.
	sorted := append([]*search.QueryResult(nil), results...)
	sort.Slice(sorted, func(a, b int) bool {
		return sorted[a].ShardIndex() < sorted[b].ShardIndex()
	})

	reduced := &ReducedQueryPhase{
		Total:        mergeTotals(sorted, req.TrackTotalHits),
		Aggregations: mergeAggregations(sorted),
	}

	want := req.From + req.Size
	top := mergeTopHits(sorted, want)
	if req.From < len(top) {
		reduced.TopHits = top[req.From:]
	}

	for _, r := range sorted {
		if r.MaxScore > reduced.MaxScore {
			reduced.MaxScore = r.MaxScore
		}
		if req.Scroll > 0 && r.ContextID != "" {
			t := r.Target()
			reduced.ScrollEntries = append(reduced.ScrollEntries, search.ScrollEntry{
				Shard:        t.Shard,
				ClusterAlias: t.ClusterAlias,
				NodeID:       t.NodeID,
				NodeAddr:     t.NodeAddr,
				ContextID:    r.ContextID,
			})
		}
	}
	return reduced
}

// mergeTopHits performs a k-way merge over the per-shard sorted hit lists
// using a cursor heap, stopping once `want` hits are taken.
func mergeTopHits(sorted []*search.QueryResult, want int) []RankedHit {
	h := &cursorHeap{}
	for _, r := range sorted {
		if len(r.Hits) == 0 {
			continue
		}
		h.items = append(h.items, cursor{result: r, pos: 0})
	}
	heap.Init(h)

	out := make([]RankedHit, 0, want)
	for h.Len() > 0 && len(out) < want {
		c := h.items[0]
		hit := c.result.Hits[c.pos]
		t := c.result.Target()
		hit.Index = t.QualifiedIndex()
		out = append(out, RankedHit{
			Hit:        hit,
			ShardIndex: c.result.ShardIndex(),
			ContextID:  c.result.ContextID,
			Target:     t,
		})
		if c.pos+1 < len(c.result.Hits) {
			h.items[0].pos++
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
	}
	return out
}

// cursor walks one shard's sorted hit list during the k-way merge.
type cursor struct {
	result *search.QueryResult
	pos    int
}

type cursorHeap struct {
	items []cursor
}

func (h *cursorHeap) Len() int { return len(h.items) }

// Less orders cursors by their current hit: score descending, then shard
// index, then doc ID. The full tie-break is what makes global ordering
// deterministic for identical scores.
func (h *cursorHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	ha, hb := a.result.Hits[a.pos], b.result.Hits[b.pos]
	if ha.Score != hb.Score {
		return ha.Score > hb.Score
	}
	if a.result.ShardIndex() != b.result.ShardIndex() {
		return a.result.ShardIndex() < b.result.ShardIndex()
	}
	return ha.ID < hb.ID
}

func (h *cursorHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *cursorHeap) Push(x any)    { h.items = append(h.items, x.(cursor)) }
func (h *cursorHeap) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}

// mergeTotals sums per-shard totals. With tracking disabled the sum of the
// returned hits is only a lower bound, reported via the "gte" relation.
func mergeTotals(sorted []*search.QueryResult, track bool) search.TotalHits {
	var sum int64
	for _, r := range sorted {
		sum += r.TotalHits
	}
	if track {
		return search.TotalHits{Value: sum, Relation: search.RelationEqual}
	}
	return search.TotalHits{Value: sum, Relation: search.RelationGreaterOrEqual}
}

// mergeAggregations combines per-shard aggregation partials pairwise. The
// merge is associative, so combining in shard-index order gives the same
// numeric result (within floating-point tolerance) as any other order.
func mergeAggregations(sorted []*search.QueryResult) map[string]float64 {
	merged := map[string]*search.AggPartial{}
	for _, r := range sorted {
		for name, partial := range r.Aggregations {
			if acc, ok := merged[name]; ok {
				acc.Merge(partial)
			} else {
				cp := *partial
				merged[name] = &cp
			}
		}
	}
	if len(merged) == 0 {
		return nil
	}
	out := make(map[string]float64, len(merged))
	for name, p := range merged {
		out[name] = p.Value()
	}
	return out
}

// AttachFetchedDocs joins fetch-phase documents onto the reduced top hits.
// Hits whose owning shard has no fetch result (its fetch failed) are dropped;
// the shard-level failure is reported separately by the coordinator.
func AttachFetchedDocs(reduced *ReducedQueryPhase, fetched map[int]*search.FetchResult) []search.Hit {
	out := make([]search.Hit, 0, len(reduced.TopHits))
	for _, rh := range reduced.TopHits {
		fr, ok := fetched[rh.ShardIndex]
		if !ok {
			continue
		}
		hit := rh.Hit
		if doc, ok := fr.Docs[hit.ID]; ok {
			hit.Source = doc
		}
		out = append(out, hit)
	}
	return out
}

// Hits shapes the reduced hits into the response hit section.
func Hits(reduced *ReducedQueryPhase, hits []search.Hit) search.Hits {
	return search.Hits{
		Total:    reduced.Total,
		MaxScore: reduced.MaxScore,
		Hits:     hits,
	}
}

// BareHits extracts the hit values from the reduced top hits, for
// single-round-trip flows where sources arrived with the query results.
func BareHits(reduced *ReducedQueryPhase) []search.Hit {
	out := make([]search.Hit, len(reduced.TopHits))
	for i, rh := range reduced.TopHits {
		out[i] = rh.Hit
	}
	return out
}
