package coordinator

import (
	"context"
	"time"

	"github.com/dreamware/scatter/internal/search"
)

// PhaseKind names the per-shard operation a request asks for.
type PhaseKind string

const (
	// PhaseQuery asks a shard for its scored top-N hit references.
	PhaseQuery PhaseKind = "query"

	// PhaseDfsQuery is the query phase preceded by the distributed term
	// statistics round, so shards score against global frequencies.
	PhaseDfsQuery PhaseKind = "dfs_query"

	// PhaseFetch asks a shard for the documents behind already-ranked hits.
	PhaseFetch PhaseKind = "fetch"

	// PhaseQueryFetch runs both phases on the shard in one round trip.
	PhaseQueryFetch PhaseKind = "query_fetch"

	// PhaseScroll resumes a node-side search context and returns the next
	// batch with sources attached.
	PhaseScroll PhaseKind = "scroll"
)

// ShardRequest is one per-shard unit of work shipped to a replica.
type ShardRequest struct {
	Phase          PhaseKind                 `json:"phase"`
	Shard          search.ShardID            `json:"shard"`
	Query          search.Query              `json:"query"`
	Size           int                       `json:"size,omitempty"`
	TrackTotalHits bool                      `json:"track_total_hits,omitempty"`
	Aggregations   map[string]search.AggSpec `json:"aggregations,omitempty"`
	Scroll         time.Duration             `json:"scroll,omitempty"`
	DocIDs         []string                  `json:"doc_ids,omitempty"`
	ContextID      string                    `json:"context_id,omitempty"`
	CollapseField  string                    `json:"collapse_field,omitempty"`
}

// Transport sends one shard request to one replica and completes the
// callback with either a result or an error. Implementations decide the
// threading: callbacks may arrive on arbitrary goroutines, concurrently with
// each other, or synchronously on the calling goroutine. The coordinator is
// written to tolerate all three.
type Transport interface {
	SendShardRequest(ctx context.Context, target search.ShardTarget, req *ShardRequest, cb func(search.PerShardResult, error))
}
