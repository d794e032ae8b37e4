package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dreamware/scatter/internal/reduce"
	"github.com/dreamware/scatter/internal/search"
)

// SearchFunc executes a complete sub-search. The expand phase uses it to
// issue the secondary field-collapsing searches without depending on the
// serving layer.
type SearchFunc func(ctx context.Context, req *search.Request) (*search.Response, error)

// Search drives one logical search request across its resolved shard group:
// one or two phases of per-shard dispatch, reduction, and optionally the
// expand phase. A Search is single-use; build a new one per request.
//
// The zero value is not usable; construct with NewSearch.
type Search struct {
	logger    *zap.Logger
	transport Transport
	metrics   *Metrics
	req       *search.Request
	group     []*search.ShardIterator
	timer     *search.TimeProvider
	expandFn  SearchFunc

	cancelled atomic.Bool
}

// NewSearch builds an execution over an already-resolved shard group.
// metrics may be nil.
func NewSearch(logger *zap.Logger, transport Transport, metrics *Metrics, req *search.Request, group []*search.ShardIterator, timer *search.TimeProvider) *Search {
	return &Search{
		logger:    logger,
		transport: transport,
		metrics:   metrics,
		req:       req,
		group:     group,
		timer:     timer,
	}
}

// SetExpandFunc wires the sub-search used by the expand phase. Required when
// the request collapses.
func (s *Search) SetExpandFunc(fn SearchFunc) { s.expandFn = fn }

// Cancel marks the search cancelled. In-flight shard callbacks that arrive
// afterwards are discarded without mutating shared state; the finalization
// path is never invoked twice.
func (s *Search) Cancel() { s.cancelled.Store(true) }

// Execute starts the search and completes cb exactly once with either the
// merged response or a terminal error. The calling goroutine never blocks on
// shard responses; cb runs on whichever goroutine completed the last shard.
func (s *Search) Execute(ctx context.Context, cb func(*search.Response, error)) {
	if len(s.group) == 0 {
		cb(nil, ErrNoShards)
		return
	}

	mode := s.req.Type
	// A single shard gains nothing from a separate fetch round trip; force
	// the single-round-trip mode.
	if len(s.group) == 1 && (mode == search.QueryThenFetch || mode == search.DfsQueryThenFetch) {
		mode = search.QueryAndFetch
	}

	switch mode {
	case search.QueryAndFetch:
		s.runQueryFetch(ctx, cb)
	case search.QueryThenFetch:
		s.runQueryThenFetch(ctx, PhaseQuery, cb)
	case search.DfsQueryThenFetch:
		s.runQueryThenFetch(ctx, PhaseDfsQuery, cb)
	default:
		cb(nil, fmt.Errorf("coordinator: unsupported search type %q", mode))
	}
}

// ExecuteSync is the blocking form of Execute.
func (s *Search) ExecuteSync(ctx context.Context) (*search.Response, error) {
	type outcome struct {
		resp *search.Response
		err  error
	}
	done := make(chan outcome, 1)
	s.Execute(ctx, func(resp *search.Response, err error) {
		done <- outcome{resp, err}
	})
	select {
	case o := <-done:
		return o.resp, o.err
	case <-ctx.Done():
		s.Cancel()
		return nil, ctx.Err()
	}
}

// perShardSize is how many hits each shard must return so the global
// pagination window can be filled from any combination of shards.
func (s *Search) perShardSize() int {
	return s.req.From + s.req.Size
}

func (s *Search) baseRequest(phase PhaseKind) *ShardRequest {
	return &ShardRequest{
		Phase:          phase,
		Query:          s.req.Query,
		Size:           s.perShardSize(),
		TrackTotalHits: s.req.TrackTotalHits,
		Aggregations:   s.req.Aggregations,
		Scroll:         s.req.Scroll,
		CollapseField:  collapseField(s.req),
	}
}

func collapseField(req *search.Request) string {
	if req.Collapse == nil {
		return ""
	}
	return req.Collapse.Field
}

// runQueryFetch executes the single-round-trip mode: every shard answers
// query and fetch at once, and reduction is terminal.
func (s *Search) runQueryFetch(ctx context.Context, cb func(*search.Response, error)) {
	exec := &phaseExecutor{
		phase:     PhaseQueryFetch,
		logger:    s.logger,
		transport: s.transport,
		group:     s.group,
		arena:     newPhaseArena(len(s.group)),
		cancelled: &s.cancelled,
		buildRequest: func(int) *ShardRequest {
			return s.baseRequest(PhaseQueryFetch)
		},
		onDone: func(a *phaseArena) {
			if s.cancelled.Load() {
				cb(nil, ErrCancelled)
				return
			}
			if a.successCount() == 0 {
				s.failAllShards(PhaseQueryFetch, a, cb)
				return
			}
			queryResults := make([]*search.QueryResult, 0, a.successCount())
			for _, res := range a.results {
				if qfr, ok := res.(*search.QueryFetchResult); ok {
					queryResults = append(queryResults, qfr.QueryPayload())
				}
			}
			reduced := reduce.ReduceQueryPhase(queryResults, s.req)
			resp := s.buildResponse(reduced, reduce.BareHits(reduced), a.collectFailures(), a.successCount())
			s.deliver(ctx, resp, cb)
		},
	}
	exec.run(ctx)
}

// runQueryThenFetch executes the default two-phase mode: a query round over
// the full group, reduction to the global top-K, then a fetch round scoped to
// the shards that own top-K entries.
func (s *Search) runQueryThenFetch(ctx context.Context, queryPhase PhaseKind, cb func(*search.Response, error)) {
	exec := &phaseExecutor{
		phase:     queryPhase,
		logger:    s.logger,
		transport: s.transport,
		group:     s.group,
		arena:     newPhaseArena(len(s.group)),
		cancelled: &s.cancelled,
		buildRequest: func(int) *ShardRequest {
			return s.baseRequest(queryPhase)
		},
		onDone: func(a *phaseArena) {
			if s.cancelled.Load() {
				cb(nil, ErrCancelled)
				return
			}
			if a.successCount() == 0 {
				s.failAllShards(queryPhase, a, cb)
				return
			}
			queryResults := make([]*search.QueryResult, 0, a.successCount())
			for _, res := range a.results {
				if qr, ok := res.(*search.QueryResult); ok {
					queryResults = append(queryResults, qr)
				}
			}
			reduced := reduce.ReduceQueryPhase(queryResults, s.req)
			if len(reduced.TopHits) == 0 {
				resp := s.buildResponse(reduced, []search.Hit{}, a.collectFailures(), a.successCount())
				s.deliver(ctx, resp, cb)
				return
			}
			s.runFetchPhase(ctx, reduced, a.collectFailures(), a.successCount(), cb)
		},
	}
	exec.run(ctx)
}

// runFetchPhase contacts only the shards that own entries in the reduced
// top-K, each at the exact replica that served its query phase. A shard that
// fails here becomes a shard failure and its hits are dropped; the request
// still succeeds on the remainder.
func (s *Search) runFetchPhase(ctx context.Context, reduced *reduce.ReducedQueryPhase, queryFailures []*search.ShardFailure, querySuccesses int, cb func(*search.Response, error)) {
	docIDs := make(map[int][]string)
	contexts := make(map[int]string)
	targets := make(map[int]search.ShardTarget)
	for _, rh := range reduced.TopHits {
		docIDs[rh.ShardIndex] = append(docIDs[rh.ShardIndex], rh.Hit.ID)
		contexts[rh.ShardIndex] = rh.ContextID
		targets[rh.ShardIndex] = rh.Target
	}

	fetchShards := make([]int, 0, len(docIDs))
	for idx := range docIDs {
		fetchShards = append(fetchShards, idx)
	}
	sort.Ints(fetchShards)

	// The fetch round goes back to the replica that built the query-phase
	// context; there is no alternative candidate to retry.
	fetchGroup := make([]*search.ShardIterator, len(fetchShards))
	for fi, qi := range fetchShards {
		t := targets[qi]
		fetchGroup[fi] = search.NewShardIterator(t.Shard, t.ClusterAlias, t.OriginalIndices, []search.ShardTarget{t})
	}

	exec := &phaseExecutor{
		phase:     PhaseFetch,
		logger:    s.logger,
		transport: s.transport,
		group:     fetchGroup,
		arena:     newPhaseArena(len(fetchGroup)),
		cancelled: &s.cancelled,
		buildRequest: func(fi int) *ShardRequest {
			qi := fetchShards[fi]
			return &ShardRequest{
				Phase:     PhaseFetch,
				DocIDs:    docIDs[qi],
				ContextID: contexts[qi],
			}
		},
		onDone: func(a *phaseArena) {
			if s.cancelled.Load() {
				cb(nil, ErrCancelled)
				return
			}
			fetched := make(map[int]*search.FetchResult, a.successCount())
			for fi, res := range a.results {
				if fr, ok := res.(*search.FetchResult); ok {
					fetched[fetchShards[fi]] = fr
				}
			}
			fetchFailures := a.collectFailures()
			failures := append(queryFailures, fetchFailures...)
			hits := reduce.AttachFetchedDocs(reduced, fetched)
			resp := s.buildResponse(reduced, hits, failures, querySuccesses-len(fetchFailures))
			s.deliver(ctx, resp, cb)
		},
	}
	exec.run(ctx)
}

// failAllShards resolves the request to the aggregate phase-level error.
func (s *Search) failAllShards(phase PhaseKind, a *phaseArena, cb func(*search.Response, error)) {
	failures := a.collectFailures()
	s.metrics.AllShardsFailed()
	cb(nil, &AllShardsFailedError{Phase: string(phase), Failures: failures})
}

func (s *Search) buildResponse(reduced *reduce.ReducedQueryPhase, hits []search.Hit, failures []*search.ShardFailure, successful int) *search.Response {
	resp := &search.Response{
		TotalShards:      len(s.group),
		SuccessfulShards: successful,
		FailedShards:     len(failures),
		ShardFailures:    failures,
		Hits:             reduce.Hits(reduced, hits),
		Aggregations:     reduced.Aggregations,
	}
	if s.req.Scroll > 0 && len(reduced.ScrollEntries) > 0 {
		resp.ScrollID = search.EncodeScrollID(reduced.ScrollEntries)
	}
	return resp
}

// deliver runs the optional expand phase and completes the callback. The
// took-time is stamped last so it covers every phase, from the monotonic
// clock only.
func (s *Search) deliver(ctx context.Context, resp *search.Response, cb func(*search.Response, error)) {
	if s.req.Collapse != nil {
		if err := ExpandCollapsedHits(ctx, s.expandFn, s.req, resp); err != nil {
			s.metrics.ExpandFailed()
			cb(nil, fmt.Errorf("coordinator: expand phase failed: %w", err))
			return
		}
	}
	resp.TookMillis = s.timer.TookMillis()
	s.metrics.SearchCompleted(resp)
	cb(resp, nil)
}
