package coordinator

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/scatter/internal/search"
)

// ExpandCollapsedHits runs the post-reduction field-collapsing phase: for
// every top-level hit carrying a non-null collapse value, one secondary
// sub-search fetches that group's inner hits, and the results are attached
// under the configured inner-hit name.
//
// Unlike shard-level tolerance, expansion is all-or-nothing: any sub-search
// failure fails the whole request, because partially expanded groups would be
// silently wrong. Hits without a collapse value are skipped; when no hit
// carries one, the phase performs zero network calls and the response passes
// through unchanged.
func ExpandCollapsedHits(ctx context.Context, fn SearchFunc, req *search.Request, resp *search.Response) error {
	collapse := req.Collapse
	if collapse == nil {
		return nil
	}

	var expandable []int
	for i, hit := range resp.Hits.Hits {
		if hit.CollapseValue != nil {
			expandable = append(expandable, i)
		}
	}
	if len(expandable) == 0 {
		return nil
	}
	if fn == nil {
		return errors.New("coordinator: collapse requested but no expand search function configured")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, i := range expandable {
		g.Go(func() error {
			hit := &resp.Hits.Hits[i]
			sub := &search.Request{
				Indices: req.Indices,
				Query:   search.Query{Field: collapse.Field, Term: *hit.CollapseValue},
				Size:    collapse.InnerHitSize,
			}
			inner, err := fn(gctx, sub)
			if err != nil {
				return err
			}
			if hit.InnerHits == nil {
				hit.InnerHits = make(map[string][]search.Hit, 1)
			}
			hit.InnerHits[collapse.InnerHitName] = inner.Hits.Hits
			return nil
		})
	}
	return g.Wait()
}
