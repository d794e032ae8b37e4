// Package coordinator implements Scatter's scatter-gather phase machinery:
// the state machine that fans one logical search out across a resolved shard
// group, tracks partial completion, and finalizes exactly once.
//
// # Phase state machine
//
// Every search runs one or two phases over the same skeleton
// (phaseExecutor + phaseArena):
//
//	CREATED → DISPATCHING → AWAITING_RESPONSES → REDUCING → (NEXT_PHASE | DONE | FAILED)
//
//   - start: an empty shard group fails immediately with ErrNoShards;
//     otherwise the outstanding count is pre-set to the group size and one
//     request is dispatched per shard, to its first candidate replica.
//   - success callback: the result lands at the shard's stable position and
//     the count decrements.
//   - failure callback: while the shard's iterator has untried replicas, the
//     next one is dispatched without touching the count; once exhausted, a
//     ShardFailure is recorded and the count decrements like a success.
//   - zero crossing: with zero successes the phase fails with an aggregate
//     AllShardsFailedError; otherwise reduction proceeds on whatever
//     succeeded. Partial results are normal operation, not an error.
//
// # Concurrency discipline
//
// Shard callbacks arrive on arbitrary goroutines, possibly concurrently,
// possibly synchronously on the dispatching goroutine. The only
// request-scoped shared state is the phase arena: pre-sized arrays written
// at most once per slot, plus the atomic countdown whose zero-crossing is
// the sole finalization trigger. No mutex gates completion, so re-entrant
// same-thread completion cannot deadlock and finalization cannot run twice.
// Cancellation flips a flag that turns every late callback into an
// idempotent discard.
//
// # Variants
//
// Phase behavior differences (query-then-fetch, dfs-query-then-fetch,
// query-and-fetch, scroll) are parameterizations of the shared skeleton, not
// subclasses: Search picks the phase kind and the onDone continuation;
// ScrollSearch rebuilds its group from a cursor's per-shard continuation
// entries. A group of exactly one shard is always forced into the
// single-round-trip query-and-fetch mode.
//
// The package also hosts the expand phase (post-reduction field collapsing,
// all-or-nothing), the node health monitor feeding replica ordering, and the
// coordinator's Prometheus metrics.
package coordinator
