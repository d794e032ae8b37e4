// Package routing owns the coordinator's view of where shards live and turns
// index patterns into the ordered shard groups a search phase drives.
//
// # Components
//
//   - Table: the authoritative local routing state. Indices are registered
//     with a fixed shard count; nodes are assigned as primaries or replicas
//     per shard. Resolution expands '*' globs and '-' exclusions against the
//     registered names and yields one ShardIterator per matched shard.
//
//   - Replica ordering: within a shard, the primary is tried first, then
//     replicas in registration order. A HealthProvider feeds consecutive
//     probe misses into the ordering; nodes past the configured miss
//     threshold are moved to the back rather than removed, so an entirely
//     degraded replica set is still tried instead of failing outright.
//
//   - BuildGroups: merges remote and local iterators into one deterministic
//     flat collection, remote first. The coordinator indexes results by
//     position in this collection, so its stability is a correctness
//     requirement, not a nicety.
//
// # Concurrency
//
// Table is safe for concurrent use; reads copy out and no lock is held
// across external calls. ShardIterators returned by resolution are owned by
// the requesting search and are not shared.
package routing
