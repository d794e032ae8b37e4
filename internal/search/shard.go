package search

import "fmt"

// ShardID identifies a logical shard independently of which physical replica
// serves it. The index UUID disambiguates indices that were deleted and
// recreated under the same name.
type ShardID struct {
	Index string `json:"index"`
	UUID  string `json:"uuid,omitempty"`
	ID    int    `json:"id"`
}

func (s ShardID) String() string {
	return fmt.Sprintf("[%s][%d]", s.Index, s.ID)
}

// ShardTarget names one physical replica of a shard together with the
// provenance context the caller used to reach it: the cluster alias (empty for
// the local cluster) and the original, possibly wildcarded, index patterns.
// Targets are attached to every partial result and every failure so that the
// final response can report exactly which shard, cluster, and node produced
// each piece.
//
// ShardTarget values are treated as immutable once built.
type ShardTarget struct {
	// Shard is the logical shard this target serves.
	Shard ShardID `json:"shard"`

	// NodeID identifies the node hosting the replica.
	NodeID string `json:"node_id"`

	// NodeAddr is the base URL of the node, e.g. "http://10.0.0.5:8081".
	NodeAddr string `json:"node_addr"`

	// ClusterAlias is the configured remote-cluster alias, or empty for the
	// local cluster.
	ClusterAlias string `json:"cluster_alias,omitempty"`

	// OriginalIndices are the index patterns the caller used for this
	// cluster, kept so qualified names can be reconstructed in responses.
	OriginalIndices []string `json:"original_indices,omitempty"`
}

// QualifiedIndex returns the index name in "alias:index" form for remote
// targets and the plain index name for local targets.
func (t ShardTarget) QualifiedIndex() string {
	if t.ClusterAlias == "" {
		return t.Shard.Index
	}
	return t.ClusterAlias + ":" + t.Shard.Index
}

func (t ShardTarget) String() string {
	return fmt.Sprintf("%s%s node[%s]", clusterPrefix(t.ClusterAlias), t.Shard, t.NodeID)
}

func clusterPrefix(alias string) string {
	if alias == "" {
		return ""
	}
	return alias + ":"
}

// ShardIterator owns the ordered list of candidate replicas for one shard.
// The coordinator consumes it during dispatch: the first candidate receives
// the initial request and each failure advances to the next candidate until
// the iterator is exhausted.
//
// A ShardIterator is consumed by at most one in-flight request at a time
// (replica retries are strictly sequential), so it needs no internal locking.
type ShardIterator struct {
	shard    ShardID
	cluster  string
	original []string
	targets  []ShardTarget
	pos      int
}

// NewShardIterator builds an iterator over the given replica targets. The
// cluster alias and original index patterns are stamped onto every target so
// downstream results carry full provenance.
func NewShardIterator(shard ShardID, clusterAlias string, originalIndices []string, targets []ShardTarget) *ShardIterator {
	stamped := make([]ShardTarget, len(targets))
	for i, t := range targets {
		t.Shard = shard
		t.ClusterAlias = clusterAlias
		t.OriginalIndices = originalIndices
		stamped[i] = t
	}
	return &ShardIterator{
		shard:    shard,
		cluster:  clusterAlias,
		original: originalIndices,
		targets:  stamped,
	}
}

// ShardID returns the logical shard this iterator resolves.
func (it *ShardIterator) ShardID() ShardID { return it.shard }

// ClusterAlias returns the cluster alias the iterator belongs to, empty for
// the local cluster.
func (it *ShardIterator) ClusterAlias() string { return it.cluster }

// OriginalIndices returns the caller's index-pattern context for this shard.
func (it *ShardIterator) OriginalIndices() []string { return it.original }

// Next yields the next untried replica, or ok=false when every candidate has
// been consumed.
func (it *ShardIterator) Next() (ShardTarget, bool) {
	if it.pos >= len(it.targets) {
		return ShardTarget{}, false
	}
	t := it.targets[it.pos]
	it.pos++
	return t, true
}

// Remaining reports how many untried replicas are left.
func (it *ShardIterator) Remaining() int {
	return len(it.targets) - it.pos
}

// Size reports the total number of candidate replicas.
func (it *ShardIterator) Size() int { return len(it.targets) }

// Reset rewinds the iterator to its first candidate.
func (it *ShardIterator) Reset() { it.pos = 0 }
