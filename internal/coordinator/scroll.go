package coordinator

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/scatter/internal/reduce"
	"github.com/dreamware/scatter/internal/search"
)

// ScrollSearch continues a scroll from the per-shard continuation state
// encoded in the cursor, instead of resolving shards freshly. Each entry is
// dispatched straight back to the node that owns its search context; there is
// no alternative replica to retry, since the context lives on exactly one
// node.
type ScrollSearch struct {
	logger    *zap.Logger
	transport Transport
	metrics   *Metrics
	entries   []search.ScrollEntry
	keepAlive time.Duration
	timer     *search.TimeProvider

	cancelled atomic.Bool
}

// NewScrollSearch builds a continuation over decoded scroll entries.
func NewScrollSearch(logger *zap.Logger, transport Transport, metrics *Metrics, entries []search.ScrollEntry, keepAlive time.Duration, timer *search.TimeProvider) *ScrollSearch {
	return &ScrollSearch{
		logger:    logger,
		transport: transport,
		metrics:   metrics,
		entries:   entries,
		keepAlive: keepAlive,
		timer:     timer,
	}
}

// Cancel marks the scroll cancelled; late callbacks are discarded.
func (s *ScrollSearch) Cancel() { s.cancelled.Store(true) }

// Execute dispatches one scroll round and completes cb exactly once. The
// phase skeleton is the same as a fresh search: atomic countdown, per-slot
// results, exactly-once finalization; only shard acquisition differs.
func (s *ScrollSearch) Execute(ctx context.Context, cb func(*search.Response, error)) {
	if len(s.entries) == 0 {
		cb(nil, ErrNoShards)
		return
	}

	group := make([]*search.ShardIterator, len(s.entries))
	for i, e := range s.entries {
		target := search.ShardTarget{
			Shard:        e.Shard,
			NodeID:       e.NodeID,
			NodeAddr:     e.NodeAddr,
			ClusterAlias: e.ClusterAlias,
		}
		group[i] = search.NewShardIterator(e.Shard, e.ClusterAlias, nil, []search.ShardTarget{target})
	}

	exec := &phaseExecutor{
		phase:     PhaseScroll,
		logger:    s.logger,
		transport: s.transport,
		group:     group,
		arena:     newPhaseArena(len(group)),
		cancelled: &s.cancelled,
		buildRequest: func(i int) *ShardRequest {
			return &ShardRequest{
				Phase:     PhaseScroll,
				ContextID: s.entries[i].ContextID,
				Scroll:    s.keepAlive,
			}
		},
		onDone: func(a *phaseArena) {
			if s.cancelled.Load() {
				cb(nil, ErrCancelled)
				return
			}
			if a.successCount() == 0 {
				s.metrics.AllShardsFailed()
				cb(nil, &AllShardsFailedError{Phase: string(PhaseScroll), Failures: a.collectFailures()})
				return
			}

			queryResults := make([]*search.QueryResult, 0, a.successCount())
			batch := 0
			for _, res := range a.results {
				if qfr, ok := res.(*search.QueryFetchResult); ok {
					qr := qfr.QueryPayload()
					batch += len(qr.Hits)
					queryResults = append(queryResults, qr)
				}
			}

			// A scroll round returns everything the shards produced, in
			// global order; pagination happened when the contexts were
			// created.
			roundReq := &search.Request{
				Size:           batch,
				TrackTotalHits: true,
				Scroll:         s.keepAlive,
			}
			if roundReq.Size == 0 {
				roundReq.Size = search.DefaultSize
			}
			reduced := reduce.ReduceQueryPhase(queryResults, roundReq)

			failures := a.collectFailures()
			resp := &search.Response{
				TookMillis:       s.timer.TookMillis(),
				TotalShards:      len(group),
				SuccessfulShards: a.successCount(),
				FailedShards:     len(failures),
				ShardFailures:    failures,
				Hits:             reduce.Hits(reduced, reduce.BareHits(reduced)),
			}
			if len(reduced.ScrollEntries) > 0 {
				resp.ScrollID = search.EncodeScrollID(reduced.ScrollEntries)
			}
			s.metrics.ScrollContinued()
			cb(resp, nil)
		},
	}
	exec.run(ctx)
}

// ExecuteSync is the blocking form of Execute.
func (s *ScrollSearch) ExecuteSync(ctx context.Context) (*search.Response, error) {
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
