package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dreamware/scatter/internal/search"
)

// phaseArena is the per-phase mutable state: an atomic countdown of
// outstanding shard responses and result/failure arrays indexed by stable
// shard position. Each slot is written at most once, by whichever callback
// (success or final-retry failure) terminates that shard; the countdown's
// zero-crossing is the sole finalization trigger. No mutex gates completion,
// so re-entrant same-thread callbacks cannot deadlock or double-finalize.
type phaseArena struct {
	outstanding atomic.Int32
	successful  atomic.Int32

	results []search.PerShardResult

	// failures is allocated lazily; most phases never see one.
	failuresOnce sync.Once
	failures     []*search.ShardFailure
}

func newPhaseArena(n int) *phaseArena {
	a := &phaseArena{results: make([]search.PerShardResult, n)}
	a.outstanding.Store(int32(n))
	return a
}

// success stores a result at its stable shard position. Must be followed by
// exactly one countdown call for the same position.
func (a *phaseArena) success(i int, res search.PerShardResult) {
	a.results[i] = res
	a.successful.Add(1)
}

// failure records a terminal shard failure at its stable position.
func (a *phaseArena) failure(i int, f *search.ShardFailure) {
	a.failuresOnce.Do(func() {
		a.failures = make([]*search.ShardFailure, len(a.results))
	})
	a.failures[i] = f
}

// countdown decrements the outstanding count and reports whether this call
// crossed zero. The crossing happens exactly once across the union of
// success and failure callbacks.
func (a *phaseArena) countdown() bool {
	return a.outstanding.Add(-1) == 0
}

// successCount returns how many shards completed successfully.
func (a *phaseArena) successCount() int {
	return int(a.successful.Load())
}

// collectFailures returns the recorded failures in shard-position order.
func (a *phaseArena) collectFailures() []*search.ShardFailure {
	if a.failures == nil {
		return nil
	}
	var out []*search.ShardFailure
	for _, f := range a.failures {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

// phaseExecutor drives one phase: it dispatches exactly one in-flight request
// per shard group, walks each group's replica candidates on failure, and
// invokes onDone exactly once when the last shard terminates.
//
// Replica retries are strictly sequential within a shard (never two replicas
// of the same shard in flight) and do not consume the countdown. Across
// shards, dispatch is fully concurrent with no ordering guarantee.
type phaseExecutor struct {
	phase     PhaseKind
	logger    *zap.Logger
	transport Transport
	group     []*search.ShardIterator
	arena     *phaseArena

	// cancelled is shared across all phases of one search; a set flag makes
	// every late callback an idempotent discard.
	cancelled *atomic.Bool

	// buildRequest produces the per-shard request for a stable position.
	buildRequest func(shardIndex int) *ShardRequest

	// onDone runs exactly once, on whichever goroutine crossed zero.
	onDone func(a *phaseArena)
}

// run dispatches the whole group. The arena's countdown is pre-set to the
// group size before the first dispatch, so even a synchronous callback chain
// cannot cross zero until every shard has terminated.
func (p *phaseExecutor) run(ctx context.Context) {
	for i, it := range p.group {
		p.dispatch(ctx, i, it)
	}
}

// dispatch sends the next candidate replica of shard position i. The
// external deadline is checked before every dispatch, including retries.
func (p *phaseExecutor) dispatch(ctx context.Context, i int, it *search.ShardIterator) {
	target, ok := it.Next()
	if !ok {
		p.terminate(i, search.NewShardFailure(search.ShardTarget{Shard: it.ShardID(), ClusterAlias: it.ClusterAlias()},
			errors.New("no candidate replicas"), false))
		return
	}

	if err := ctx.Err(); err != nil {
		p.onShardFailure(ctx, i, it, target, err)
		return
	}

	req := p.buildRequest(i)
	req.Shard = target.Shard
	p.transport.SendShardRequest(ctx, target, req, func(res search.PerShardResult, err error) {
		if p.cancelled.Load() {
			// Late arrival after cancellation: discard without touching
			// shared state.
			return
		}
		if err != nil {
			p.onShardFailure(ctx, i, it, target, err)
			return
		}
		res.SetShardIndex(i)
		res.SetTarget(target)
		p.arena.success(i, res)
		p.countdown()
	})
}

// onShardFailure retries the next untried replica when one exists; the retry
// does not decrement the countdown. Once the iterator is exhausted the shard
// terminates with a recorded failure.
func (p *phaseExecutor) onShardFailure(ctx context.Context, i int, it *search.ShardIterator, target search.ShardTarget, err error) {
	if it.Remaining() > 0 {
		p.logger.Debug("shard attempt failed, trying next replica",
			zap.Stringer("shard", target.Shard),
			zap.String("node", target.NodeID),
			zap.Int("remaining", it.Remaining()),
			zap.Error(err))
		p.dispatch(ctx, i, it)
		return
	}
	p.logger.Warn("shard failed on all replicas",
		zap.Stringer("shard", target.Shard),
		zap.String("cluster", target.ClusterAlias),
		zap.Error(err))
	p.terminate(i, search.NewShardFailure(target, err, false))
}

// terminate records a final failure for shard position i and counts it down.
func (p *phaseExecutor) terminate(i int, f *search.ShardFailure) {
	p.arena.failure(i, f)
	p.countdown()
}

func (p *phaseExecutor) countdown() {
	if p.arena.countdown() {
		p.onDone(p.arena)
	}
}
