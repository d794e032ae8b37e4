// Package cluster holds the shared wire types and HTTP helpers used by every
// process in a Scatter deployment.
//
// # Overview
//
// Scatter clusters are built from two process kinds: a coordinator, which
// owns the routing table and drives scatter-gather searches, and data nodes,
// which host shards and execute per-shard query/fetch work. They exchange a
// small set of JSON messages defined here:
//
//   - NodeInfo / RegisterRequest: node startup registration
//   - ResolveShardsRequest / ResolveShardsResponse: shard resolution, served
//     by coordinators both to local callers and to remote clusters during
//     cross-cluster search
//
// # Transport
//
// All inter-process communication is JSON over HTTP. PostJSON and GetJSON
// wrap the request/response cycle with context propagation and a bounded
// client timeout; callers supply fully-formed URLs built from NodeInfo.Addr
// (normalized by NormalizeAddr).
//
// The package deliberately contains no coordination logic; it exists so the
// coordinator, the node, and the remote-cluster client agree on one wire
// vocabulary without importing each other.
package cluster
