package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/scatter/internal/cluster"
	"github.com/dreamware/scatter/internal/search"
)

// ShardResolver fetches the shard groups a remote cluster would search for a
// set of index patterns. One call resolves one cluster; callers fan out over
// all configured clusters in parallel.
type ShardResolver interface {
	ResolveRemoteShards(ctx context.Context, alias string, indices []string) ([]cluster.ResolvedShard, map[string]string, error)
}

// HTTPResolver resolves remote shards by asking a remote coordinator's
// /shards/resolve endpoint, trying each configured seed in order until one
// answers.
type HTTPResolver struct {
	registry *Registry
	logger   *zap.Logger
}

// NewHTTPResolver builds a resolver over the registry's configured seeds.
func NewHTTPResolver(registry *Registry, logger *zap.Logger) *HTTPResolver {
	return &HTTPResolver{registry: registry, logger: logger}
}

// ResolveRemoteShards implements ShardResolver against live remote clusters.
func (h *HTTPResolver) ResolveRemoteShards(ctx context.Context, alias string, indices []string) ([]cluster.ResolvedShard, map[string]string, error) {
	seeds := h.registry.Seeds(alias)
	if len(seeds) == 0 {
		return nil, nil, fmt.Errorf("remote: no such cluster %q", alias)
	}

	var lastErr error
	for _, seed := range seeds {
		var resp cluster.ResolveShardsResponse
		err := cluster.PostJSON(ctx, seed+"/shards/resolve", cluster.ResolveShardsRequest{Indices: indices}, &resp)
		if err == nil {
			return resp.Shards, resp.AliasFilters, nil
		}
		lastErr = err
		h.logger.Warn("remote seed unreachable",
			zap.String("cluster", alias),
			zap.String("seed", seed),
			zap.Error(err))
	}
	return nil, nil, fmt.Errorf("remote: cluster %q unreachable: %w", alias, lastErr)
}

// FetchShardGroups resolves every remote group in parallel and joins before
// returning, so shard-group building always starts from a complete picture.
// The returned iterators are ordered deterministically: by cluster alias,
// then index name, then shard number. Each iterator is tagged with its
// cluster alias and the original patterns the caller used for that cluster.
func FetchShardGroups(ctx context.Context, resolver ShardResolver, groups map[string][]string) ([]*search.ShardIterator, error) {
	aliases := make([]string, 0, len(groups))
	for alias := range groups {
		if alias == LocalCluster {
			continue
		}
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	if len(aliases) == 0 {
		return nil, nil
	}

	perAlias := make([][]cluster.ResolvedShard, len(aliases))
	g, gctx := errgroup.WithContext(ctx)
	for i, alias := range aliases {
		g.Go(func() error {
			shards, _, err := resolver.ResolveRemoteShards(gctx, alias, groups[alias])
			if err != nil {
				return err
			}
			perAlias[i] = shards
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*search.ShardIterator
	for i, alias := range aliases {
		shards := perAlias[i]
		sort.Slice(shards, func(a, b int) bool {
			if shards[a].Shard.Index != shards[b].Shard.Index {
				return shards[a].Shard.Index < shards[b].Shard.Index
			}
			return shards[a].Shard.ID < shards[b].Shard.ID
		})
		original := append([]string(nil), groups[alias]...)
		for _, rs := range shards {
			if len(rs.Targets) == 0 {
				return nil, errors.New("remote: resolved shard has no targets")
			}
			out = append(out, search.NewShardIterator(rs.Shard, alias, original, rs.Targets))
		}
	}
	return out, nil
}
