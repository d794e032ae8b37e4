package remote

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/dreamware/scatter/internal/cluster"
)

// LocalCluster is the reserved group key for the local cluster. The empty
// alias can never be claimed by a configured remote cluster.
const LocalCluster = ""

// ClusterSeed configures one remote cluster: its alias and the seed addresses
// of its coordinators.
type ClusterSeed struct {
	Alias string
	Seeds []string
}

// Registry knows the configured remote clusters and splits index-pattern
// lists into per-cluster groups. Construction validates the configuration up
// front; grouping never performs network I/O.
type Registry struct {
	clusters map[string][]string // alias -> normalized seed URLs
}

// NewRegistry validates the configured remote clusters and builds a registry.
// Invalid aliases (empty, containing ':', duplicated) and malformed seed
// addresses are configuration failures surfaced here, before any dispatch.
func NewRegistry(seeds []ClusterSeed) (*Registry, error) {
	r := &Registry{clusters: make(map[string][]string, len(seeds))}
	for _, s := range seeds {
		if s.Alias == LocalCluster {
			return nil, fmt.Errorf("remote: empty cluster alias is reserved for the local cluster")
		}
		if strings.Contains(s.Alias, ":") {
			return nil, fmt.Errorf("remote: cluster alias %q must not contain ':'", s.Alias)
		}
		if _, dup := r.clusters[s.Alias]; dup {
			return nil, fmt.Errorf("remote: duplicate cluster alias %q", s.Alias)
		}
		if len(s.Seeds) == 0 {
			return nil, fmt.Errorf("remote: cluster %q has no seed addresses", s.Alias)
		}
		normalized := make([]string, 0, len(s.Seeds))
		for _, seed := range s.Seeds {
			n, err := normalizeSeed(seed)
			if err != nil {
				return nil, fmt.Errorf("remote: cluster %q: %w", s.Alias, err)
			}
			normalized = append(normalized, n)
		}
		r.clusters[s.Alias] = normalized
	}
	return r, nil
}

// normalizeSeed checks that a seed is a resolvable host:port (with optional
// http scheme) and returns it as a URL base.
func normalizeSeed(seed string) (string, error) {
	withScheme := cluster.NormalizeAddr(seed)
	u, err := url.Parse(withScheme)
	if err != nil {
		return "", fmt.Errorf("malformed seed address %q: %w", seed, err)
	}
	if _, _, err := net.SplitHostPort(u.Host); err != nil {
		return "", fmt.Errorf("malformed seed address %q: expected host:port: %w", seed, err)
	}
	return withScheme, nil
}

// Aliases returns the configured remote aliases in sorted order.
func (r *Registry) Aliases() []string {
	out := make([]string, 0, len(r.clusters))
	for alias := range r.clusters {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// IsConfigured reports whether alias names a configured remote cluster.
func (r *Registry) IsConfigured(alias string) bool {
	_, ok := r.clusters[alias]
	return ok
}

// Seeds returns the normalized seed URLs for a configured alias.
func (r *Registry) Seeds(alias string) []string {
	return append([]string(nil), r.clusters[alias]...)
}

// GroupIndices splits the requested index patterns into a group per cluster.
// The returned map is keyed by cluster alias, with LocalCluster holding
// everything that stays local. Per group, the original (unqualified) pattern
// strings are preserved so responses can reconstruct qualified names.
//
// Policy:
//   - "alias:pattern" goes to that cluster when the alias is configured.
//   - A wildcard alias prefix such as "clu*:pattern" expands against every
//     configured alias it matches.
//   - A pattern with no prefix, or whose prefix matches no configured
//     cluster, belongs to the local group unchanged.
//   - Excluding a name that collides with a configured alias ("-alias" or
//     "-alias:pattern") is ambiguous and rejected.
func (r *Registry) GroupIndices(patterns []string) (map[string][]string, error) {
	groups := make(map[string][]string)
	for _, p := range patterns {
		if strings.HasPrefix(p, "-") {
			if err := r.checkExclusion(p); err != nil {
				return nil, err
			}
			groups[LocalCluster] = append(groups[LocalCluster], p)
			continue
		}

		sep := strings.Index(p, ":")
		if sep < 0 {
			groups[LocalCluster] = append(groups[LocalCluster], p)
			continue
		}

		prefix, rest := p[:sep], p[sep+1:]
		if rest == "" {
			rest = "*"
		}

		if strings.Contains(prefix, "*") {
			matched := false
			for _, alias := range r.Aliases() {
				if ok, _ := path.Match(prefix, alias); ok {
					groups[alias] = append(groups[alias], rest)
					matched = true
				}
			}
			if !matched {
				groups[LocalCluster] = append(groups[LocalCluster], p)
			}
			continue
		}

		if r.IsConfigured(prefix) {
			groups[prefix] = append(groups[prefix], rest)
			continue
		}
		groups[LocalCluster] = append(groups[LocalCluster], p)
	}
	return groups, nil
}

// checkExclusion rejects exclusion patterns whose name collides with a
// configured cluster alias; such a pattern cannot be disambiguated between
// "drop this index" and "drop this cluster".
func (r *Registry) checkExclusion(p string) error {
	body := strings.TrimPrefix(p, "-")
	name := body
	if sep := strings.Index(body, ":"); sep >= 0 {
		name = body[:sep]
	}
	if r.IsConfigured(name) {
		return fmt.Errorf("remote: exclusion %q is ambiguous: %q is a configured cluster alias", p, name)
	}
	if strings.Contains(name, "*") {
		for _, alias := range r.Aliases() {
			if ok, _ := path.Match(name, alias); ok {
				return fmt.Errorf("remote: exclusion %q is ambiguous: it matches cluster alias %q", p, alias)
			}
		}
	}
	return nil
}
