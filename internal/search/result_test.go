package search

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggPartialMerge(t *testing.T) {
	tests := []struct {
		name string
		a, b AggPartial
		want AggPartial
	}{
		{
			name: "two populated partials",
			a:    AggPartial{Kind: AggSum, Count: 2, Sum: 10, Min: 3, Max: 7},
			b:    AggPartial{Kind: AggSum, Count: 1, Sum: 1, Min: 1, Max: 1},
			want: AggPartial{Kind: AggSum, Count: 3, Sum: 11, Min: 1, Max: 7},
		},
		{
			name: "empty left side adopts right",
			a:    AggPartial{Kind: AggMin},
			b:    AggPartial{Kind: AggMin, Count: 2, Sum: 9, Min: 4, Max: 5},
			want: AggPartial{Kind: AggMin, Count: 2, Sum: 9, Min: 4, Max: 5},
		},
		{
			name: "empty right side is a no-op",
			a:    AggPartial{Kind: AggMax, Count: 1, Sum: 2, Min: 2, Max: 2},
			b:    AggPartial{Kind: AggMax},
			want: AggPartial{Kind: AggMax, Count: 1, Sum: 2, Min: 2, Max: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a
			got.Merge(&tt.b)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAggPartialMergeAssociative(t *testing.T) {
	parts := []AggPartial{
		{Kind: AggAvg, Count: 3, Sum: 30, Min: 5, Max: 15},
		{Kind: AggAvg, Count: 1, Sum: 100, Min: 100, Max: 100},
		{Kind: AggAvg},
		{Kind: AggAvg, Count: 2, Sum: 4, Min: 1, Max: 3},
	}

	// (a+b)+(c+d) must match ((a+b)+c)+d.
	left := parts[0]
	left.Merge(&parts[1])
	right := parts[2]
	right.Merge(&parts[3])
	grouped := left
	grouped.Merge(&right)

	sequential := parts[0]
	for i := 1; i < len(parts); i++ {
		p := parts[i]
		sequential.Merge(&p)
	}

	assert.Equal(t, sequential, grouped)
	assert.InDelta(t, 134.0/6.0, sequential.Value(), 1e-9)
}

func TestAggPartialValue(t *testing.T) {
	p := AggPartial{Count: 4, Sum: 20, Min: 2, Max: 11}
	tests := []struct {
		kind AggKind
		want float64
	}{
		{AggSum, 20},
		{AggMin, 2},
		{AggMax, 11},
		{AggCount, 4},
		{AggAvg, 5},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			p := p
			p.Kind = tt.kind
			assert.Equal(t, tt.want, p.Value())
		})
	}

	t.Run("avg of nothing is zero", func(t *testing.T) {
		empty := AggPartial{Kind: AggAvg}
		assert.Equal(t, 0.0, empty.Value())
	})
}

func TestShardFailureCarriesCause(t *testing.T) {
	cause := errors.New("connection refused")
	target := ShardTarget{Shard: ShardID{Index: "logs", ID: 3}, NodeID: "node-1"}
	f := NewShardFailure(target, cause, true)

	assert.ErrorIs(t, f, cause)
	assert.Contains(t, f.Error(), "[logs][3]")
	assert.Contains(t, f.Error(), "connection refused")
	assert.True(t, f.Retryable)
}

func TestQueryPayloadCopiesProvenance(t *testing.T) {
	qfr := &QueryFetchResult{Query: QueryResult{TotalHits: 7}}
	qfr.SetShardIndex(4)
	qfr.SetTarget(ShardTarget{NodeID: "node-9"})

	q := qfr.QueryPayload()
	require.Equal(t, int64(7), q.TotalHits)
	assert.Equal(t, 4, q.ShardIndex())
	assert.Equal(t, "node-9", q.Target().NodeID)
}
