package routing

import (
	"sort"

	"github.com/dreamware/scatter/internal/search"
)

// BuildGroups merges remotely-resolved and locally-resolved shard iterators
// into the single flat collection a phase coordinator drives. Remote entries
// come first, then local; both halves are sorted so the collection is
// deterministic and stable for a given request. Shard positions handed out by
// the coordinator index into this order, so stability here is what keeps
// per-shard result slots stable for the life of a phase.
func BuildGroups(remoteIters, localIters []*search.ShardIterator) []*search.ShardIterator {
	remote := append([]*search.ShardIterator(nil), remoteIters...)
	local := append([]*search.ShardIterator(nil), localIters...)

	sort.SliceStable(remote, func(a, b int) bool {
		return lessIter(remote[a], remote[b])
	})
	sort.SliceStable(local, func(a, b int) bool {
		return lessIter(local[a], local[b])
	})

	out := make([]*search.ShardIterator, 0, len(remote)+len(local))
	out = append(out, remote...)
	out = append(out, local...)
	return out
}

func lessIter(a, b *search.ShardIterator) bool {
	if a.ClusterAlias() != b.ClusterAlias() {
		return a.ClusterAlias() < b.ClusterAlias()
	}
	if a.ShardID().Index != b.ShardID().Index {
		return a.ShardID().Index < b.ShardID().Index
	}
	return a.ShardID().ID < b.ShardID().ID
}
