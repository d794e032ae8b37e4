// Package shard implements the data-node side of a search: scoring documents
// for the query phase, serving source lookups for the fetch phase, and
// holding scroll contexts for continuations.
//
// # Scoring
//
// Ranking is deliberately simple term-frequency scoring over a single field.
// Documents are JSON objects; the queried field is tokenized on whitespace
// and the score is the number of tokens equal to the query term,
// case-insensitive. Shard-local ordering is score descending with document ID
// as tie-break, which keeps results deterministic for identical corpora.
//
// # Scroll contexts
//
// A query with a keep-alive registers the ranked hits beyond the first batch
// under a generated context ID. Each Scroll call pops the next batch and
// refreshes the keep-alive; the context is removed when drained or when
// PurgeExpired reaps it.
package shard
