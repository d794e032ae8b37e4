package shard

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/scatter/internal/search"
)

func seededShard(t *testing.T) *Shard {
	t.Helper()
	s := New("logs", 0, true)
	docs := map[string]string{
		"d1": `{"msg":"error error error","level":"error","latency":120,"user":"alice"}`,
		"d2": `{"msg":"error while parsing","level":"error","latency":30,"user":"bob"}`,
		"d3": `{"msg":"all good","level":"info","latency":5,"user":"alice"}`,
		"d4": `{"msg":"ERROR in disguise","level":"warn","latency":50,"user":"carol"}`,
	}
	for id, doc := range docs {
		require.NoError(t, s.Put(id, []byte(doc)))
	}
	return s
}

func TestQueryScoresByTermFrequency(t *testing.T) {
	s := seededShard(t)

	res, err := s.Query(QueryParams{Query: search.Query{Field: "msg", Term: "error"}, Size: 10})
	require.NoError(t, err)

	// d1 has the term three times, d2 and d4 once (matching is
	// case-insensitive), d3 not at all.
	require.Len(t, res.Hits, 3)
	assert.Equal(t, "d1", res.Hits[0].ID)
	assert.Equal(t, 3.0, res.Hits[0].Score)
	assert.Equal(t, int64(3), res.TotalHits)
	assert.Equal(t, 3.0, res.MaxScore)

	// Equal scores tie-break on doc ID.
	assert.Equal(t, "d2", res.Hits[1].ID)
	assert.Equal(t, "d4", res.Hits[2].ID)

	// Query phase returns references only.
	for _, h := range res.Hits {
		assert.Nil(t, h.Source)
	}
}

func TestQuerySizeLimitsHitsNotTotal(t *testing.T) {
	s := seededShard(t)
	res, err := s.Query(QueryParams{Query: search.Query{Field: "msg", Term: "error"}, Size: 1})
	require.NoError(t, err)
	assert.Len(t, res.Hits, 1)
	assert.Equal(t, int64(3), res.TotalHits, "the shard-local total counts all matches")
}

func TestQueryWithSources(t *testing.T) {
	s := seededShard(t)
	res, err := s.Query(QueryParams{Query: search.Query{Field: "level", Term: "info"}, Size: 10, WithSources: true})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.JSONEq(t, `{"msg":"all good","level":"info","latency":5,"user":"alice"}`, string(res.Hits[0].Source))
}

func TestQueryCollapseValues(t *testing.T) {
	s := seededShard(t)
	res, err := s.Query(QueryParams{
		Query:         search.Query{Field: "msg", Term: "error"},
		Size:          10,
		CollapseField: "user",
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 3)
	require.NotNil(t, res.Hits[0].CollapseValue)
	assert.Equal(t, "alice", *res.Hits[0].CollapseValue)
}

func TestQueryAggregations(t *testing.T) {
	s := seededShard(t)
	res, err := s.Query(QueryParams{
		Query: search.Query{Field: "msg", Term: "error"},
		Size:  10,
		Aggregations: map[string]search.AggSpec{
			"lat": {Kind: search.AggAvg, Field: "latency"},
		},
	})
	require.NoError(t, err)

	require.Contains(t, res.Aggregations, "lat")
	p := res.Aggregations["lat"]
	// Partials cover the matched docs d1, d2, d4.
	assert.Equal(t, int64(3), p.Count)
	assert.Equal(t, 200.0, p.Sum)
	assert.Equal(t, 30.0, p.Min)
	assert.Equal(t, 120.0, p.Max)
}

func TestQueryRejectsBrokenDocument(t *testing.T) {
	s := New("logs", 0, true)
	require.NoError(t, s.Put("bad", []byte("not json")))
	_, err := s.Query(QueryParams{Query: search.Query{Field: "msg", Term: "x"}, Size: 10})
	assert.Error(t, err)
}

func TestFetch(t *testing.T) {
	s := seededShard(t)
	fr := s.Fetch([]string{"d1", "ghost", "d3"})
	assert.Len(t, fr.Docs, 2)
	assert.Contains(t, fr.Docs, "d1")
	assert.NotContains(t, fr.Docs, "ghost")
}

func TestScrollWalksRankedHitsInBatches(t *testing.T) {
	s := New("logs", 0, true)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Put(fmt.Sprintf("d%d", i), []byte(`{"msg":"hit"}`)))
	}

	res, err := s.Query(QueryParams{
		Query:  search.Query{Field: "msg", Term: "hit"},
		Size:   2,
		Scroll: time.Minute,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.ContextID)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, 1, s.OpenContexts())

	// Second batch.
	batch, err := s.Scroll(res.ContextID, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch.Query.Hits, 2)
	assert.Equal(t, "d2", batch.Query.Hits[0].ID)
	assert.NotNil(t, batch.Query.Hits[0].Source, "scroll batches carry sources")
	assert.Equal(t, res.ContextID, batch.Query.ContextID)

	// Final, short batch drains the context.
	batch, err = s.Scroll(res.ContextID, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch.Query.Hits, 1)
	assert.Empty(t, batch.Query.ContextID, "a drained context stops advertising itself")
	assert.Equal(t, 0, s.OpenContexts())

	_, err = s.Scroll(res.ContextID, time.Minute)
	assert.Error(t, err, "a drained context is gone")
}

func TestScrollUnknownContext(t *testing.T) {
	s := New("logs", 0, true)
	_, err := s.Scroll("ghost", time.Minute)
	assert.Error(t, err)
}

func TestPurgeExpired(t *testing.T) {
	s := New("logs", 0, true)
	require.NoError(t, s.Put("d1", []byte(`{"msg":"hit hit"}`)))
	require.NoError(t, s.Put("d2", []byte(`{"msg":"hit"}`)))

	res, err := s.Query(QueryParams{
		Query:  search.Query{Field: "msg", Term: "hit"},
		Size:   1,
		Scroll: time.Minute,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.ContextID)

	assert.Equal(t, 0, s.PurgeExpired(time.Now()))
	assert.Equal(t, 1, s.PurgeExpired(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 0, s.OpenContexts())

	_, err = s.Scroll(res.ContextID, time.Minute)
	assert.Error(t, err)
}

func TestStatsCounters(t *testing.T) {
	s := seededShard(t)
	_, _ = s.Query(QueryParams{Query: search.Query{Field: "msg", Term: "error"}, Size: 10})
	_ = s.Fetch([]string{"d1"})
	_, _ = s.Scroll("ghost", time.Minute)

	ops, store := s.Stats()
	assert.Equal(t, uint64(1), ops.Queries)
	assert.Equal(t, uint64(1), ops.Fetches)
	assert.Equal(t, uint64(1), ops.Scrolls)
	assert.Equal(t, 4, store.Docs)
}
