package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dreamware/scatter/internal/search"
)

func scrollEntries(n int) []search.ScrollEntry {
	out := make([]search.ScrollEntry, n)
	for i := range out {
		out[i] = search.ScrollEntry{
			Shard:     search.ShardID{Index: "logs", ID: i},
			NodeID:    fmt.Sprintf("n%d", i),
			NodeAddr:  fmt.Sprintf("http://n%d", i),
			ContextID: fmt.Sprintf("ctx-%d", i),
		}
	}
	return out
}

func scrollBatch(shard int, drained bool) *search.QueryFetchResult {
	q := search.QueryResult{
		Hits: []search.Hit{{
			ID:     fmt.Sprintf("doc-%d", shard),
			Score:  float64(shard + 1),
			Source: json.RawMessage(`{}`),
		}},
		TotalHits: 1,
		MaxScore:  float64(shard + 1),
	}
	if !drained {
		q.ContextID = fmt.Sprintf("ctx-%d", shard)
	}
	return &search.QueryFetchResult{Query: q}
}

func TestScrollSearchContinues(t *testing.T) {
	tr := &fakeTransport{}
	tr.handler = func(target search.ShardTarget, req *ShardRequest) (search.PerShardResult, error) {
		require.Equal(t, PhaseScroll, req.Phase)
		require.Equal(t, fmt.Sprintf("ctx-%d", target.Shard.ID), req.ContextID)
		require.Equal(t, time.Minute, req.Scroll)
		return scrollBatch(target.Shard.ID, false), nil
	}

	s := NewScrollSearch(zaptest.NewLogger(t), tr, nil, scrollEntries(2), time.Minute, testTimer())
	resp, err := s.ExecuteSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, resp.TotalShards)
	assert.Equal(t, 2, resp.SuccessfulShards)
	require.Len(t, resp.Hits.Hits, 2)
	// Global order across the round's batches.
	assert.Equal(t, "doc-1", resp.Hits.Hits[0].ID)
	assert.Equal(t, "doc-0", resp.Hits.Hits[1].ID)

	// Live contexts produce a fresh cursor for the next round.
	require.NotEmpty(t, resp.ScrollID)
	entries, err := search.DecodeScrollID(resp.ScrollID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestScrollSearchDrainedShardsLeaveTheCursor(t *testing.T) {
	tr := &fakeTransport{}
	tr.handler = func(target search.ShardTarget, _ *ShardRequest) (search.PerShardResult, error) {
		// Shard 0 is drained and returns no continuation context.
		return scrollBatch(target.Shard.ID, target.Shard.ID == 0), nil
	}

	s := NewScrollSearch(zaptest.NewLogger(t), tr, nil, scrollEntries(2), time.Minute, testTimer())
	resp, err := s.ExecuteSync(context.Background())
	require.NoError(t, err)

	entries, err := search.DecodeScrollID(resp.ScrollID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Shard.ID)
}

func TestScrollSearchPartialFailure(t *testing.T) {
	tr := &fakeTransport{}
	tr.handler = func(target search.ShardTarget, _ *ShardRequest) (search.PerShardResult, error) {
		if target.Shard.ID == 0 {
			return nil, errors.New("context expired")
		}
		return scrollBatch(target.Shard.ID, false), nil
	}

	s := NewScrollSearch(zaptest.NewLogger(t), tr, nil, scrollEntries(2), time.Minute, testTimer())
	resp, err := s.ExecuteSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, resp.SuccessfulShards)
	assert.Equal(t, 1, resp.FailedShards)
	require.Len(t, resp.Hits.Hits, 1)
	assert.Equal(t, "doc-1", resp.Hits.Hits[0].ID)
}

func TestScrollSearchAllFailed(t *testing.T) {
	tr := &fakeTransport{}
	tr.handler = func(search.ShardTarget, *ShardRequest) (search.PerShardResult, error) {
		return nil, errors.New("gone")
	}

	s := NewScrollSearch(zaptest.NewLogger(t), tr, nil, scrollEntries(2), time.Minute, testTimer())
	_, err := s.ExecuteSync(context.Background())

	var allFailed *AllShardsFailedError
	require.ErrorAs(t, err, &allFailed)
	assert.Len(t, allFailed.Failures, 2)
}

func TestScrollSearchNoEntries(t *testing.T) {
	s := NewScrollSearch(zaptest.NewLogger(t), &fakeTransport{}, nil, nil, time.Minute, testTimer())
	_, err := s.ExecuteSync(context.Background())
	assert.ErrorIs(t, err, ErrNoShards)
}

func TestScrollSearchSingleInFlightPerShard(t *testing.T) {
	// A scroll has exactly one candidate per shard: a failure is terminal
	// with no retry dispatch.
	tr := &fakeTransport{}
	tr.handler = func(target search.ShardTarget, _ *ShardRequest) (search.PerShardResult, error) {
		if target.Shard.ID == 0 {
			return nil, errors.New("gone")
		}
		return scrollBatch(target.Shard.ID, false), nil
	}

	s := NewScrollSearch(zaptest.NewLogger(t), tr, nil, scrollEntries(2), time.Minute, testTimer())
	_, err := s.ExecuteSync(context.Background())
	require.NoError(t, err)
	assert.Len(t, tr.calls, 2, "one dispatch per scroll entry, no replica retries")
}
