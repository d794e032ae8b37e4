// Package remote implements cross-cluster indirection for Scatter searches.
//
// # Overview
//
// A search may address indices on the local cluster, on configured remote
// clusters, or both, using patterns of the form "alias:index". This package
// owns the two steps that happen before any shard is contacted:
//
//  1. Grouping: Registry.GroupIndices splits the requested patterns into one
//     group per cluster, preserving each group's original pattern strings so
//     responses can report shard targets in "alias:pattern" form.
//
//  2. Resolution: FetchShardGroups asks every involved remote cluster for
//     its shard groups in parallel and joins before returning, yielding
//     ShardIterators the coordinator drives identically to local ones.
//
// # Grouping policy
//
// A pattern with no alias prefix, or whose prefix matches no configured
// cluster, stays local. Wildcard prefixes ("clu*:logs") expand against all
// configured aliases. The empty alias is reserved for the local cluster and
// can never be configured. Exclusion patterns that collide with a configured
// alias are rejected as ambiguous, synchronously, before dispatch.
//
// # Failure model
//
// Configuration problems (bad alias, malformed seed) fail at Registry
// construction. Resolution failures are per-cluster: a cluster is tried seed
// by seed and only reported unreachable when every seed failed, which fails
// the whole resolution join.
package remote
