// Package storage provides the document store backing a Scatter shard.
//
// A DocStore holds raw JSON documents keyed by ID. The interface is
// deliberately small: shards need deterministic iteration (sorted IDs),
// point reads for the fetch phase, and writes for ingest. The only
// implementation is an in-memory map guarded by an RWMutex; durability is
// out of scope for this system, which assumes a pre-built storage engine as
// an external collaborator.
package storage
