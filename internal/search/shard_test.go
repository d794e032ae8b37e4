package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTargets(n int) []ShardTarget {
	out := make([]ShardTarget, n)
	for i := range out {
		out[i] = ShardTarget{
			NodeID:   string(rune('a' + i)),
			NodeAddr: "http://node",
		}
	}
	return out
}

func TestShardIteratorWalksReplicasInOrder(t *testing.T) {
	shard := ShardID{Index: "logs", UUID: "u1", ID: 2}
	it := NewShardIterator(shard, "west", []string{"west:logs*"}, testTargets(3))

	require.Equal(t, 3, it.Size())
	seen := []string{}
	for {
		tgt, ok := it.Next()
		if !ok {
			break
		}
		// Every target carries the shard identity and cluster context.
		assert.Equal(t, shard, tgt.Shard)
		assert.Equal(t, "west", tgt.ClusterAlias)
		assert.Equal(t, []string{"west:logs*"}, tgt.OriginalIndices)
		seen = append(seen, tgt.NodeID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.Equal(t, 0, it.Remaining())
}

func TestShardIteratorRemaining(t *testing.T) {
	it := NewShardIterator(ShardID{Index: "logs", ID: 0}, "", nil, testTargets(2))

	assert.Equal(t, 2, it.Remaining())
	_, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, 1, it.Remaining())
	_, ok = it.Next()
	require.True(t, ok)
	assert.Equal(t, 0, it.Remaining())

	_, ok = it.Next()
	assert.False(t, ok, "exhausted iterator must keep returning false")
	_, ok = it.Next()
	assert.False(t, ok)
}

func TestShardIteratorReset(t *testing.T) {
	it := NewShardIterator(ShardID{Index: "logs", ID: 0}, "", nil, testTargets(2))
	_, _ = it.Next()
	_, _ = it.Next()
	require.Equal(t, 0, it.Remaining())

	it.Reset()
	assert.Equal(t, 2, it.Remaining())
	tgt, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, "a", tgt.NodeID)
}

func TestShardIteratorEmpty(t *testing.T) {
	it := NewShardIterator(ShardID{Index: "logs", ID: 0}, "", nil, nil)
	assert.Equal(t, 0, it.Size())
	_, ok := it.Next()
	assert.False(t, ok)
}

func TestQualifiedIndex(t *testing.T) {
	tests := []struct {
		name   string
		target ShardTarget
		want   string
	}{
		{
			name:   "local shard uses bare index",
			target: ShardTarget{Shard: ShardID{Index: "logs"}},
			want:   "logs",
		},
		{
			name:   "remote shard is alias qualified",
			target: ShardTarget{Shard: ShardID{Index: "logs"}, ClusterAlias: "west"},
			want:   "west:logs",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.target.QualifiedIndex())
		})
	}
}
