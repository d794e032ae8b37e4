package search

import (
	"errors"
	"time"
)

// SearchType selects the phase strategy used to execute a request.
type SearchType string

const (
	// QueryThenFetch runs a query round to every shard, reduces to the
	// global top-K, then fetches documents only from the shards that own
	// top-K entries. This is the default.
	QueryThenFetch SearchType = "query_then_fetch"

	// DfsQueryThenFetch is QueryThenFetch preceded by a distributed term
	// statistics exchange so shards score against global frequencies.
	DfsQueryThenFetch SearchType = "dfs_query_then_fetch"

	// QueryAndFetch collapses both phases into a single round trip. The
	// coordinator forces this mode whenever exactly one shard participates,
	// since a separate fetch round buys nothing there.
	QueryAndFetch SearchType = "query_and_fetch"

	// ScrollQueryAndFetch resumes a scroll from per-shard continuation
	// state instead of resolving shards freshly.
	ScrollQueryAndFetch SearchType = "scroll_query_and_fetch"
)

// Query is the minimal query surface the coordinator ships to shards: a term
// match on a single field. Query planning and rewriting live outside this
// module.
type Query struct {
	Field string `json:"field"`
	Term  string `json:"term"`
}

// CollapseSpec asks for field collapsing: top-level hits are grouped by the
// collapse field and each group's representative inner hits are fetched in a
// secondary expand round.
type CollapseSpec struct {
	// Field holds the collapse key on each hit.
	Field string `json:"field"`

	// InnerHitName is the key the expanded hits are attached under.
	InnerHitName string `json:"inner_hit_name"`

	// InnerHitSize is how many inner hits to request per group.
	InnerHitSize int `json:"inner_hit_size"`
}

// Request is one logical search as accepted from the caller, before shard
// resolution.
type Request struct {
	// Indices are index patterns, each optionally prefixed "alias:".
	Indices []string `json:"indices"`

	Query Query `json:"query"`

	// Size is the number of global top hits to return.
	Size int `json:"size"`

	// From is the pagination offset into the global ordering.
	From int `json:"from"`

	// TrackTotalHits controls whether the total is an exact sum or a lower
	// bound once hits are collected.
	TrackTotalHits bool `json:"track_total_hits"`

	// Scroll, when positive, requests a scroll cursor with this keep-alive.
	Scroll time.Duration `json:"scroll,omitempty"`

	Type SearchType `json:"type,omitempty"`

	Collapse *CollapseSpec `json:"collapse,omitempty"`

	Aggregations map[string]AggSpec `json:"aggregations,omitempty"`

	// Routing narrows shard resolution to the shard owning this key, when
	// non-empty.
	Routing string `json:"routing,omitempty"`
}

// DefaultSize is used when a request does not name a top-K size.
const DefaultSize = 10

// Normalize fills defaults and validates the request shape.
func (r *Request) Normalize() error {
	if len(r.Indices) == 0 {
		return errors.New("search: at least one index pattern is required")
	}
	if r.Size < 0 || r.From < 0 {
		return errors.New("search: size and from must be non-negative")
	}
	if r.Size == 0 {
		r.Size = DefaultSize
	}
	if r.Type == "" {
		r.Type = QueryThenFetch
	}
	if r.Collapse != nil {
		if r.Collapse.Field == "" {
			return errors.New("search: collapse requires a field")
		}
		if r.Collapse.InnerHitName == "" {
			r.Collapse.InnerHitName = r.Collapse.Field
		}
		if r.Collapse.InnerHitSize <= 0 {
			r.Collapse.InnerHitSize = 3
		}
	}
	return nil
}

// TotalHits is the merged hit count together with its relation: "eq" when the
// count is exact, "gte" when it is a lower bound because total tracking was
// disabled.
type TotalHits struct {
	Value    int64  `json:"value"`
	Relation string `json:"relation"`
}

const (
	RelationEqual          = "eq"
	RelationGreaterOrEqual = "gte"
)

// Hits is the merged, globally ordered hit section of a response.
type Hits struct {
	Total    TotalHits `json:"total"`
	MaxScore float64   `json:"max_score"`
	Hits     []Hit     `json:"hits"`
}

// Response is the merged outcome of one search. ShardFailures may be
// non-empty even when the search as a whole succeeded; partial success is the
// expected steady state under partial cluster degradation.
type Response struct {
	TookMillis       int64              `json:"took_ms"`
	TimedOut         bool               `json:"timed_out"`
	TotalShards      int                `json:"total_shards"`
	SuccessfulShards int                `json:"successful_shards"`
	SkippedShards    int                `json:"skipped_shards"`
	FailedShards     int                `json:"failed_shards"`
	ShardFailures    []*ShardFailure    `json:"shard_failures,omitempty"`
	Hits             Hits               `json:"hits"`
	Aggregations     map[string]float64 `json:"aggregations,omitempty"`
	ScrollID         string             `json:"scroll_id,omitempty"`
}
