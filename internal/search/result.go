package search

import (
	"encoding/json"
	"fmt"
)

// PerShardResult is one shard's contribution to a phase. Implementations are
// QueryResult, FetchResult, and QueryFetchResult. The shard index is the
// shard's stable position within the phase's group and is assigned by the
// coordinator, not the node.
type PerShardResult interface {
	// ShardIndex returns the shard's position in the phase group.
	ShardIndex() int
	// SetShardIndex records the shard's position in the phase group.
	SetShardIndex(i int)
	// Target returns the replica that produced this result.
	Target() ShardTarget
	// SetTarget records the replica that produced this result.
	SetTarget(t ShardTarget)
}

// resultMeta carries the coordinator-assigned provenance shared by all result
// variants. It never travels on the wire.
type resultMeta struct {
	shardIndex int
	target     ShardTarget
}

func (m *resultMeta) ShardIndex() int         { return m.shardIndex }
func (m *resultMeta) SetShardIndex(i int)     { m.shardIndex = i }
func (m *resultMeta) Target() ShardTarget     { return m.target }
func (m *resultMeta) SetTarget(t ShardTarget) { m.target = t }

// Hit is a single scored document as returned by a shard or by the final
// merged response.
type Hit struct {
	ID            string           `json:"id"`
	Index         string           `json:"index"`
	Score         float64          `json:"score"`
	Source        json.RawMessage  `json:"source,omitempty"`
	CollapseValue *string          `json:"collapse_value,omitempty"`
	InnerHits     map[string][]Hit `json:"inner_hits,omitempty"`
}

// QueryResult is the query-phase payload from one shard: its local top-N
// scored hits (sorted by score descending), the shard-local total, and any
// aggregation partials. ContextID names the node-side search context that a
// later fetch or scroll round must address.
type QueryResult struct {
	resultMeta

	Hits         []Hit                  `json:"hits"`
	TotalHits    int64                  `json:"total_hits"`
	MaxScore     float64                `json:"max_score"`
	Aggregations map[string]*AggPartial `json:"aggregations,omitempty"`
	ContextID    string                 `json:"context_id,omitempty"`
}

// FetchResult is the fetch-phase payload from one shard: full document
// sources keyed by document ID.
type FetchResult struct {
	resultMeta

	Docs map[string]json.RawMessage `json:"docs"`
}

// QueryFetchResult is the single-round-trip payload used when one shard can
// answer both phases at once: query results whose hits already carry their
// sources.
type QueryFetchResult struct {
	resultMeta

	Query QueryResult `json:"query"`
}

// QueryPayload returns the query half of a combined result with the
// coordinator-assigned provenance copied onto it, ready for reduction.
func (r *QueryFetchResult) QueryPayload() *QueryResult {
	q := r.Query
	q.SetShardIndex(r.ShardIndex())
	q.SetTarget(r.Target())
	return &q
}

// ShardFailure records one shard's terminal failure after every candidate
// replica was exhausted. Failures are collected, never thrown from callback
// threads; the coordinator's single finalization path decides what they mean
// for the request as a whole.
type ShardFailure struct {
	Target    ShardTarget `json:"target"`
	Reason    string      `json:"reason"`
	Retryable bool        `json:"retryable,omitempty"`

	// Cause is the underlying error, kept off the wire.
	Cause error `json:"-"`
}

// NewShardFailure builds a failure for the given replica and cause.
func NewShardFailure(target ShardTarget, cause error, retryable bool) *ShardFailure {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	return &ShardFailure{
		Target:    target,
		Reason:    reason,
		Retryable: retryable,
		Cause:     cause,
	}
}

func (f *ShardFailure) Error() string {
	return fmt.Sprintf("shard %s failed: %s", f.Target, f.Reason)
}

func (f *ShardFailure) Unwrap() error { return f.Cause }

// AggPartial is one shard's contribution to a numeric aggregation. Partials
// merge associatively: combining in any order yields the same result within
// floating-point tolerance.
type AggPartial struct {
	Kind  AggKind `json:"kind"`
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// AggKind selects which statistic an aggregation reports.
type AggKind string

const (
	AggSum   AggKind = "sum"
	AggMin   AggKind = "min"
	AggMax   AggKind = "max"
	AggAvg   AggKind = "avg"
	AggCount AggKind = "count"
)

// AggSpec asks the shards to compute one aggregation over a numeric field.
type AggSpec struct {
	Kind  AggKind `json:"kind"`
	Field string  `json:"field"`
}

// Merge folds other into p. Merging is commutative and associative so the
// reducer may combine partials pairwise in any order.
func (p *AggPartial) Merge(other *AggPartial) {
	if other == nil || other.Count == 0 {
		return
	}
	if p.Count == 0 {
		*p = *other
		return
	}
	p.Sum += other.Sum
	if other.Min < p.Min {
		p.Min = other.Min
	}
	if other.Max > p.Max {
		p.Max = other.Max
	}
	p.Count += other.Count
}

// Value finalizes the partial into the statistic named by its kind.
func (p *AggPartial) Value() float64 {
	switch p.Kind {
	case AggSum:
		return p.Sum
	case AggMin:
		return p.Min
	case AggMax:
		return p.Max
	case AggCount:
		return float64(p.Count)
	case AggAvg:
		if p.Count == 0 {
			return 0
		}
		return p.Sum / float64(p.Count)
	}
	return 0
}
