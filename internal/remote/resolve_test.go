package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dreamware/scatter/internal/cluster"
	"github.com/dreamware/scatter/internal/search"
)

// fakeResolver serves canned shard groups per cluster alias.
type fakeResolver struct {
	shards map[string][]cluster.ResolvedShard
	errs   map[string]error
}

func (f *fakeResolver) ResolveRemoteShards(_ context.Context, alias string, _ []string) ([]cluster.ResolvedShard, map[string]string, error) {
	if err := f.errs[alias]; err != nil {
		return nil, nil, err
	}
	return f.shards[alias], nil, nil
}

func resolvedShard(index string, id int, nodes ...string) cluster.ResolvedShard {
	rs := cluster.ResolvedShard{Shard: search.ShardID{Index: index, ID: id}}
	for _, n := range nodes {
		rs.Targets = append(rs.Targets, search.ShardTarget{NodeID: n, NodeAddr: "http://" + n})
	}
	return rs
}

func TestFetchShardGroupsOrdering(t *testing.T) {
	resolver := &fakeResolver{shards: map[string][]cluster.ResolvedShard{
		// Deliberately unsorted input per cluster.
		"west": {resolvedShard("logs", 1, "w1"), resolvedShard("audit", 0, "w2"), resolvedShard("logs", 0, "w1")},
		"east": {resolvedShard("logs", 0, "e1")},
	}}
	groups := map[string][]string{
		"west":       {"logs*", "audit"},
		"east":       {"logs*"},
		LocalCluster: {"ignored-locally"},
	}

	iters, err := FetchShardGroups(context.Background(), resolver, groups)
	require.NoError(t, err)
	require.Len(t, iters, 4, "the local group must not be resolved remotely")

	type key struct {
		alias, index string
		shard        int
	}
	var got []key
	for _, it := range iters {
		got = append(got, key{it.ClusterAlias(), it.ShardID().Index, it.ShardID().ID})
	}
	assert.Equal(t, []key{
		{"east", "logs", 0},
		{"west", "audit", 0},
		{"west", "logs", 0},
		{"west", "logs", 1},
	}, got)

	// Targets carry the original per-cluster patterns.
	tgt, ok := iters[1].Next()
	require.True(t, ok)
	assert.Equal(t, []string{"logs*", "audit"}, tgt.OriginalIndices)
	assert.Equal(t, "west", tgt.ClusterAlias)
}

func TestFetchShardGroupsPropagatesClusterFailure(t *testing.T) {
	boom := errors.New("cluster unreachable")
	resolver := &fakeResolver{
		shards: map[string][]cluster.ResolvedShard{"west": {resolvedShard("logs", 0, "w1")}},
		errs:   map[string]error{"east": boom},
	}

	_, err := FetchShardGroups(context.Background(), resolver, map[string][]string{
		"west": {"logs"},
		"east": {"logs"},
	})
	assert.ErrorIs(t, err, boom)
}

func TestFetchShardGroupsRejectsEmptyTargets(t *testing.T) {
	resolver := &fakeResolver{shards: map[string][]cluster.ResolvedShard{
		"west": {{Shard: search.ShardID{Index: "logs", ID: 0}}},
	}}
	_, err := FetchShardGroups(context.Background(), resolver, map[string][]string{"west": {"logs"}})
	assert.Error(t, err)
}

func TestFetchShardGroupsNoRemotes(t *testing.T) {
	iters, err := FetchShardGroups(context.Background(), &fakeResolver{}, map[string][]string{
		LocalCluster: {"logs"},
	})
	require.NoError(t, err)
	assert.Empty(t, iters)
}

func TestHTTPResolverTriesSeedsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/shards/resolve", r.URL.Path)
		var req cluster.ResolveShardsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"logs"}, req.Indices)
		json.NewEncoder(w).Encode(cluster.ResolveShardsResponse{ //nolint:errcheck
			Shards: []cluster.ResolvedShard{resolvedShard("logs", 0, "n1")},
		})
	}))
	defer srv.Close()

	registry, err := NewRegistry([]ClusterSeed{{
		Alias: "west",
		// The first seed points at a closed port; the resolver must fall
		// through to the live one.
		Seeds: []string{"http://127.0.0.1:1", strings.TrimPrefix(srv.URL, "http://")},
	}})
	require.NoError(t, err)

	resolver := NewHTTPResolver(registry, zaptest.NewLogger(t))
	shards, _, err := resolver.ResolveRemoteShards(context.Background(), "west", []string{"logs"})
	require.NoError(t, err)
	require.Len(t, shards, 1)
	assert.Equal(t, "logs", shards[0].Shard.Index)
}

func TestHTTPResolverUnknownCluster(t *testing.T) {
	registry, err := NewRegistry(nil)
	require.NoError(t, err)
	resolver := NewHTTPResolver(registry, zaptest.NewLogger(t))
	_, _, err = resolver.ResolveRemoteShards(context.Background(), "ghost", []string{"logs"})
	assert.Error(t, err)
}
