package coordinator

import (
	"errors"
	"fmt"

	"github.com/dreamware/scatter/internal/search"
)

// ErrNoShards is returned when shard resolution yields an empty group; there
// is nothing to search on, which is terminal before any dispatch.
var ErrNoShards = errors.New("coordinator: no shards to search on")

// ErrCancelled is returned when a search is cancelled before it finalizes.
var ErrCancelled = errors.New("coordinator: search cancelled")

// AllShardsFailedError aggregates the collected shard failures when every
// shard in a phase failed. Only the last per-shard cause is kept as the
// proximate cause for unwrapping, so aggregate traces stay readable.
type AllShardsFailedError struct {
	Phase    string
	Failures []*search.ShardFailure
}

func (e *AllShardsFailedError) Error() string {
	return fmt.Sprintf("coordinator: all %d shards failed in %s phase", len(e.Failures), e.Phase)
}

// Unwrap exposes the last shard failure's cause as the proximate cause.
func (e *AllShardsFailedError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[len(e.Failures)-1].Cause
}
