package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubHealth reports fixed miss counts per node.
type stubHealth map[string]int

func (h stubHealth) Misses(nodeID string) int { return h[nodeID] }

func newTestTable(t *testing.T) *Table {
	t.Helper()
	tbl := NewTable(3)
	require.NoError(t, tbl.AddIndex("logs", 2))
	require.NoError(t, tbl.AssignReplica("logs", 0, "node-1", "node-1:8081", true))
	require.NoError(t, tbl.AssignReplica("logs", 0, "node-2", "node-2:8081", false))
	require.NoError(t, tbl.AssignReplica("logs", 1, "node-2", "node-2:8081", true))
	require.NoError(t, tbl.AssignReplica("logs", 1, "node-1", "node-1:8081", false))
	return tbl
}

func TestAddIndex(t *testing.T) {
	tbl := NewTable(3)
	require.NoError(t, tbl.AddIndex("logs", 4))
	assert.Equal(t, 4, tbl.NumShards("logs"))
	assert.Equal(t, []string{"logs"}, tbl.Indices())

	// Re-adding is a no-op, not an error, so node re-registration stays
	// idempotent.
	require.NoError(t, tbl.AddIndex("logs", 8))
	assert.Equal(t, 4, tbl.NumShards("logs"))

	assert.Error(t, tbl.AddIndex("", 4))
	assert.Error(t, tbl.AddIndex("bad", 0))
}

func TestAssignReplica(t *testing.T) {
	tbl := NewTable(3)
	require.NoError(t, tbl.AddIndex("logs", 2))

	assert.Error(t, tbl.AssignReplica("ghost", 0, "n", "a", true), "unknown index")
	assert.Error(t, tbl.AssignReplica("logs", 5, "n", "a", true), "shard out of range")
	assert.Error(t, tbl.AssignReplica("logs", 0, "", "a", true), "empty node ID")

	require.NoError(t, tbl.AssignReplica("logs", 0, "node-1", "node-1:8081", true))
	// Re-assigning the same node updates the address in place instead of
	// duplicating the replica.
	require.NoError(t, tbl.AssignReplica("logs", 0, "node-1", "node-1:9999", true))

	iters, err := tbl.ResolveShards([]string{"logs"}, "")
	require.NoError(t, err)
	require.Len(t, iters, 1, "shard 1 has no replicas and is skipped")
	require.Equal(t, 1, iters[0].Size())
	tgt, _ := iters[0].Next()
	assert.Equal(t, "http://node-1:9999", tgt.NodeAddr)
}

func TestResolveShardsOrdering(t *testing.T) {
	tbl := newTestTable(t)
	require.NoError(t, tbl.AddIndex("audit", 1))
	require.NoError(t, tbl.AssignReplica("audit", 0, "node-1", "node-1:8081", true))

	iters, err := tbl.ResolveShards([]string{"*"}, "")
	require.NoError(t, err)
	require.Len(t, iters, 3)

	// Sorted by index name, then shard number.
	assert.Equal(t, "audit", iters[0].ShardID().Index)
	assert.Equal(t, "logs", iters[1].ShardID().Index)
	assert.Equal(t, 0, iters[1].ShardID().ID)
	assert.Equal(t, 1, iters[2].ShardID().ID)

	// Primary first within each shard.
	tgt, _ := iters[1].Next()
	assert.Equal(t, "node-1", tgt.NodeID)
	tgt, _ = iters[2].Next()
	assert.Equal(t, "node-2", tgt.NodeID)
}

func TestResolveShardsDeterministic(t *testing.T) {
	tbl := newTestTable(t)
	a, err := tbl.ResolveShards([]string{"logs"}, "")
	require.NoError(t, err)
	b, err := tbl.ResolveShards([]string{"logs"}, "")
	require.NoError(t, err)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ShardID(), b[i].ShardID())
		for {
			ta, oka := a[i].Next()
			tb, okb := b[i].Next()
			require.Equal(t, oka, okb)
			if !oka {
				break
			}
			assert.Equal(t, ta, tb)
		}
	}
}

func TestResolveShardsHealthPartition(t *testing.T) {
	tbl := newTestTable(t)
	tbl.SetHealthProvider(stubHealth{"node-1": 5})

	iters, err := tbl.ResolveShards([]string{"logs"}, "")
	require.NoError(t, err)

	// Shard 0's primary lives on the degraded node-1, which must now be
	// ordered after the healthy replica.
	first, _ := iters[0].Next()
	second, _ := iters[0].Next()
	assert.Equal(t, "node-2", first.NodeID)
	assert.Equal(t, "node-1", second.NodeID)
}

func TestResolveShardsBelowThresholdKeepsOrder(t *testing.T) {
	tbl := newTestTable(t)
	tbl.SetHealthProvider(stubHealth{"node-1": 2})

	iters, err := tbl.ResolveShards([]string{"logs"}, "")
	require.NoError(t, err)
	first, _ := iters[0].Next()
	assert.Equal(t, "node-1", first.NodeID, "misses below the threshold must not reorder")
}

func TestResolveShardsWithRoutingKey(t *testing.T) {
	tbl := newTestTable(t)

	iters, err := tbl.ResolveShards([]string{"logs"}, "user-42")
	require.NoError(t, err)
	require.Len(t, iters, 1, "a routing key narrows each index to one shard")
	assert.Equal(t, ShardForRouting("user-42", 2), iters[0].ShardID().ID)
}

func TestShardForRoutingStable(t *testing.T) {
	for _, key := range []string{"", "a", "user-42", "user-43"} {
		got := ShardForRouting(key, 7)
		assert.Equal(t, got, ShardForRouting(key, 7), "hash must be deterministic")
		assert.GreaterOrEqual(t, got, 0)
		assert.Less(t, got, 7)
	}
	assert.NotEqual(t, ShardForRouting("user-42", 64), ShardForRouting("user-47", 64),
		"distinct keys should generally land on distinct shards")
}

func TestExpandPatterns(t *testing.T) {
	tbl := newTestTable(t)
	require.NoError(t, tbl.AddIndex("audit", 1))
	require.NoError(t, tbl.AssignReplica("audit", 0, "node-1", "node-1:8081", true))

	tests := []struct {
		name     string
		patterns []string
		indices  []string
	}{
		{name: "exact", patterns: []string{"logs"}, indices: []string{"logs"}},
		{name: "glob", patterns: []string{"*"}, indices: []string{"audit", "logs"}},
		{name: "glob with exclusion", patterns: []string{"*", "-audit"}, indices: []string{"logs"}},
		{name: "no match", patterns: []string{"ghost-*"}, indices: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iters, err := tbl.ResolveShards(tt.patterns, "")
			require.NoError(t, err)
			seen := map[string]bool{}
			for _, it := range iters {
				seen[it.ShardID().Index] = true
			}
			assert.Len(t, seen, len(tt.indices))
			for _, idx := range tt.indices {
				assert.True(t, seen[idx], "expected index %q", idx)
			}
		})
	}

	_, err := tbl.ResolveShards([]string{""}, "")
	assert.Error(t, err, "empty pattern")
}

func TestRemoveNode(t *testing.T) {
	tbl := newTestTable(t)
	tbl.RemoveNode("node-1")

	iters, err := tbl.ResolveShards([]string{"logs"}, "")
	require.NoError(t, err)
	for _, it := range iters {
		require.Equal(t, 1, it.Size())
		tgt, _ := it.Next()
		assert.Equal(t, "node-2", tgt.NodeID)
	}
}

func TestResolvedShardsWireForm(t *testing.T) {
	tbl := newTestTable(t)
	shards, err := tbl.ResolvedShards([]string{"logs"}, "")
	require.NoError(t, err)
	require.Len(t, shards, 2)
	for _, rs := range shards {
		assert.Equal(t, "logs", rs.Shard.Index)
		require.Len(t, rs.Targets, 2)
		for _, tgt := range rs.Targets {
			assert.Nil(t, tgt.OriginalIndices, "local pattern context must be stripped on the wire")
		}
	}
}
