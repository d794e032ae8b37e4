// Package search defines the value types shared by every layer of Scatter's
// distributed query path: shard identity and provenance (ShardID,
// ShardTarget), replica iteration (ShardIterator), per-shard phase payloads
// (QueryResult, FetchResult, QueryFetchResult), collected failures
// (ShardFailure), the request/response surface, the two-clock TimeProvider,
// and the opaque scroll cursor codec.
//
// # Design
//
// The types here are deliberately passive. All coordination logic lives in
// internal/coordinator and all merging logic in internal/reduce; this package
// only guarantees that every partial result and every failure carries enough
// context (shard, cluster alias, node, original index patterns) for the final
// response to report provenance accurately.
//
// # Clocks
//
// TimeProvider separates the absolute wall clock (date-math resolution) from
// the relative monotonic clock (elapsed-time measurement). Took-times are
// computed only from the monotonic delta and clamped at zero, so a system
// clock stepping backward mid-request can never produce a negative duration.
//
// # Scroll cursors
//
// A scroll ID is a base64-encoded JSON token holding one entry per shard:
// the node that owns the search context and the context ID to resume. The
// cursor is opaque to callers; only EncodeScrollID/DecodeScrollID interpret
// it.
package search
