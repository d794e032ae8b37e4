package shard

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/scatter/internal/search"
	"github.com/dreamware/scatter/internal/storage"
)

// QueryParams is one query-phase execution against a shard.
type QueryParams struct {
	Query          search.Query
	Size           int
	TrackTotalHits bool
	Aggregations   map[string]search.AggSpec
	Scroll         time.Duration
	CollapseField  string

	// WithSources attaches document sources to the hits, turning the
	// result into a single-round-trip query+fetch.
	WithSources bool
}

// Shard executes per-shard search work over its document store: scoring for
// the query phase, point lookups for the fetch phase, and scroll context
// bookkeeping for continuations.
type Shard struct {
	ID      int
	Index   string
	Primary bool
	Store   storage.DocStore

	mu       sync.Mutex
	contexts map[string]*scrollContext

	stats OperationStats
}

// OperationStats tracks operation counts for a shard.
type OperationStats struct {
	Queries uint64
	Fetches uint64
	Scrolls uint64
}

// scrollContext is the node-side continuation state for one scroll: the
// ranked hits not yet returned, popped batch by batch.
type scrollContext struct {
	remaining []search.Hit
	batchSize int
	expiresAt time.Time
}

// New creates a shard with in-memory storage.
func New(index string, id int, primary bool) *Shard {
	return &Shard{
		ID:       id,
		Index:    index,
		Primary:  primary,
		Store:    storage.NewMemoryStore(),
		contexts: make(map[string]*scrollContext),
	}
}

// Put stores a document in the shard.
func (s *Shard) Put(id string, doc []byte) error {
	return s.Store.Put(id, doc)
}

// Delete removes a document from the shard.
func (s *Shard) Delete(id string) error {
	return s.Store.Delete(id)
}

// Query scores every document against the term query and returns the shard's
// top-N, sorted by score descending with doc ID as tie-break so shard-local
// ordering is deterministic. When params.Scroll is positive a scroll context
// is registered and its ID returned with the result.
func (s *Shard) Query(params QueryParams) (*search.QueryResult, error) {
	atomic.AddUint64(&s.stats.Queries, 1)
	if params.Size <= 0 {
		params.Size = search.DefaultSize
	}

	var ranked []search.Hit
	aggs := make(map[string]*search.AggPartial, len(params.Aggregations))
	for name, spec := range params.Aggregations {
		aggs[name] = &search.AggPartial{Kind: spec.Kind}
	}

	for _, id := range s.Store.IDs() {
		raw, err := s.Store.Get(id)
		if err != nil {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("shard %d: document %q is not valid JSON: %w", s.ID, id, err)
		}

		score := scoreDoc(doc, params.Query)
		if score <= 0 {
			continue
		}

		hit := search.Hit{ID: id, Index: s.Index, Score: score}
		if params.WithSources {
			hit.Source = raw
		}
		if params.CollapseField != "" {
			if v, ok := doc[params.CollapseField].(string); ok {
				hit.CollapseValue = &v
			}
		}
		ranked = append(ranked, hit)

		for name, spec := range params.Aggregations {
			if v, ok := numericField(doc, spec.Field); ok {
				aggs[name].Merge(&search.AggPartial{Kind: spec.Kind, Count: 1, Sum: v, Min: v, Max: v})
			}
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})

	res := &search.QueryResult{TotalHits: int64(len(ranked))}
	if len(ranked) > 0 {
		res.MaxScore = ranked[0].Score
	}
	top := ranked
	if len(top) > params.Size {
		top = top[:params.Size]
	}
	res.Hits = top
	if len(aggs) > 0 {
		res.Aggregations = aggs
	}

	if params.Scroll > 0 {
		res.ContextID = s.registerContext(ranked[min(params.Size, len(ranked)):], params.Size, params.Scroll)
	}
	return res, nil
}

// Fetch returns document sources for already-ranked hit IDs. Missing IDs are
// skipped rather than failed; the ranked reference simply has no source.
func (s *Shard) Fetch(ids []string) *search.FetchResult {
	atomic.AddUint64(&s.stats.Fetches, 1)
	docs := make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		if raw, err := s.Store.Get(id); err == nil {
			docs[id] = raw
		}
	}
	return &search.FetchResult{Docs: docs}
}

// Scroll pops the next batch from a scroll context, refreshing its
// keep-alive. The context is removed once drained.
func (s *Shard) Scroll(contextID string, keepAlive time.Duration) (*search.QueryFetchResult, error) {
	atomic.AddUint64(&s.stats.Scrolls, 1)

	s.mu.Lock()
	ctx, ok := s.contexts[contextID]
	if !ok || time.Now().After(ctx.expiresAt) {
		delete(s.contexts, contextID)
		s.mu.Unlock()
		return nil, fmt.Errorf("shard %d: no search context %q", s.ID, contextID)
	}
	n := min(ctx.batchSize, len(ctx.remaining))
	batch := ctx.remaining[:n]
	ctx.remaining = ctx.remaining[n:]
	if keepAlive > 0 {
		ctx.expiresAt = time.Now().Add(keepAlive)
	}
	drained := len(ctx.remaining) == 0
	if drained {
		delete(s.contexts, contextID)
	}
	s.mu.Unlock()

	q := search.QueryResult{TotalHits: int64(len(batch))}
	for _, hit := range batch {
		if raw, err := s.Store.Get(hit.ID); err == nil {
			hit.Source = raw
		}
		if hit.Score > q.MaxScore {
			q.MaxScore = hit.Score
		}
		q.Hits = append(q.Hits, hit)
	}
	if !drained {
		q.ContextID = contextID
	}
	return &search.QueryFetchResult{Query: q}, nil
}

// PurgeExpired drops scroll contexts whose keep-alive lapsed and reports how
// many were removed.
func (s *Shard) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, ctx := range s.contexts {
		if now.After(ctx.expiresAt) {
			delete(s.contexts, id)
			purged++
		}
	}
	return purged
}

// OpenContexts reports the number of live scroll contexts.
func (s *Shard) OpenContexts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contexts)
}

// Stats returns current operation counters and storage statistics.
func (s *Shard) Stats() (OperationStats, storage.StoreStats) {
	return OperationStats{
		Queries: atomic.LoadUint64(&s.stats.Queries),
		Fetches: atomic.LoadUint64(&s.stats.Fetches),
		Scrolls: atomic.LoadUint64(&s.stats.Scrolls),
	}, s.Store.Stats()
}

func (s *Shard) registerContext(remaining []search.Hit, batchSize int, keepAlive time.Duration) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.contexts[id] = &scrollContext{
		remaining: remaining,
		batchSize: batchSize,
		expiresAt: time.Now().Add(keepAlive),
	}
	s.mu.Unlock()
	return id
}

// scoreDoc scores a document as the term frequency of the query term in the
// queried field, case-insensitive. Zero means no match.
func scoreDoc(doc map[string]any, q search.Query) float64 {
	v, ok := doc[q.Field].(string)
	if !ok {
		return 0
	}
	term := strings.ToLower(q.Term)
	score := 0.0
	for _, tok := range strings.Fields(strings.ToLower(v)) {
		if tok == term {
			score++
		}
	}
	return score
}

func numericField(doc map[string]any, field string) (float64, bool) {
	switch v := doc[field].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
