package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrollIDRoundTrip(t *testing.T) {
	entries := []ScrollEntry{
		{
			Shard:     ShardID{Index: "logs", UUID: "u1", ID: 0},
			NodeID:    "node-1",
			NodeAddr:  "http://node-1:8081",
			ContextID: "ctx-a",
		},
		{
			Shard:        ShardID{Index: "logs", UUID: "u1", ID: 1},
			ClusterAlias: "west",
			NodeID:       "node-2",
			NodeAddr:     "http://node-2:8081",
			ContextID:    "ctx-b",
		},
	}

	id := EncodeScrollID(entries)
	require.NotEmpty(t, id)

	decoded, err := DecodeScrollID(id)
	require.NoError(t, err)
	assert.Equal(t, entries, decoded)
}

func TestScrollIDsAreDistinct(t *testing.T) {
	entries := []ScrollEntry{{Shard: ShardID{Index: "logs"}, NodeID: "n", NodeAddr: "a", ContextID: "c"}}
	assert.NotEqual(t, EncodeScrollID(entries), EncodeScrollID(entries),
		"two scrolls over the same shards must not share a cursor")
}

func TestDecodeScrollIDRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{name: "not base64", id: "!!!not-base64!!!"},
		{name: "base64 but not json", id: "bm90LWpzb24"},
		{name: "empty string", id: ""},
		{name: "valid json, no entries", id: EncodeScrollID(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeScrollID(tt.id)
			assert.Error(t, err)
		})
	}
}
