package routing

import (
	"errors"
	"fmt"
	"hash/fnv"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dreamware/scatter/internal/cluster"
	"github.com/dreamware/scatter/internal/search"
)

// Assignment places one replica of a shard on a node.
type Assignment struct {
	NodeID   string `json:"node_id"`
	NodeAddr string `json:"node_addr"`
	Primary  bool   `json:"primary"`
}

// IndexRouting is the routing metadata for one index: a fixed shard count and
// the replica assignments per shard. Shard counts are fixed at creation; the
// slice index is the shard number.
type IndexRouting struct {
	Name   string         `json:"name"`
	UUID   string         `json:"uuid"`
	Shards [][]Assignment `json:"shards"`
}

// HealthProvider reports how many consecutive health probes a node has
// missed. The table uses it to order replicas so degraded nodes are tried
// last. A nil provider means every node counts as healthy.
type HealthProvider interface {
	Misses(nodeID string) int
}

// Table is the coordinator's authoritative shard routing state, mapping index
// names to per-shard replica assignments. It is the local implementation of
// shard resolution: given index patterns it yields the ordered ShardIterators
// the phase coordinator drives.
//
// Reads take an RLock and return copies; no lock is held during external
// calls.
type Table struct {
	mu        sync.RWMutex
	indices   map[string]*IndexRouting
	health    HealthProvider
	maxMisses int
}

// NewTable creates an empty routing table. maxMisses is the consecutive-miss
// threshold past which a node's replicas are deprioritized; it is a tunable
// tied to cluster size, not a constant.
func NewTable(maxMisses int) *Table {
	if maxMisses <= 0 {
		maxMisses = 3
	}
	return &Table{
		indices:   make(map[string]*IndexRouting),
		maxMisses: maxMisses,
	}
}

// SetHealthProvider wires node-health information into replica ordering.
func (t *Table) SetHealthProvider(h HealthProvider) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.health = h
}

// AddIndex registers an index with a fixed shard count. Adding an existing
// index is a no-op so repeated node registrations stay idempotent.
func (t *Table) AddIndex(name string, numShards int) error {
	if name == "" {
		return errors.New("routing: index name cannot be empty")
	}
	if numShards <= 0 {
		return fmt.Errorf("routing: index %q needs a positive shard count", name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.indices[name]; exists {
		return nil
	}
	t.indices[name] = &IndexRouting{
		Name:   name,
		UUID:   uuid.NewString(),
		Shards: make([][]Assignment, numShards),
	}
	return nil
}

// AssignReplica places a replica of index/shard on a node. Re-assigning the
// same node updates its address in place.
func (t *Table) AssignReplica(index string, shard int, nodeID, nodeAddr string, primary bool) error {
	if nodeID == "" {
		return errors.New("routing: node ID cannot be empty")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ir, ok := t.indices[index]
	if !ok {
		return fmt.Errorf("routing: unknown index %q", index)
	}
	if shard < 0 || shard >= len(ir.Shards) {
		return fmt.Errorf("routing: invalid shard %d for index %q, must be in [0, %d)", shard, index, len(ir.Shards))
	}
	a := Assignment{NodeID: nodeID, NodeAddr: cluster.NormalizeAddr(nodeAddr), Primary: primary}
	for i, existing := range ir.Shards[shard] {
		if existing.NodeID == nodeID {
			ir.Shards[shard][i] = a
			return nil
		}
	}
	ir.Shards[shard] = append(ir.Shards[shard], a)
	return nil
}

// RemoveNode drops every replica assignment held by the given node, typically
// after the health monitor declares it dead.
func (t *Table) RemoveNode(nodeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ir := range t.indices {
		for s, replicas := range ir.Shards {
			kept := replicas[:0]
			for _, a := range replicas {
				if a.NodeID != nodeID {
					kept = append(kept, a)
				}
			}
			ir.Shards[s] = kept
		}
	}
}

// Indices returns all registered index names in sorted order.
func (t *Table) Indices() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.indices))
	for name := range t.indices {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NumShards returns an index's shard count, or 0 when unknown.
func (t *Table) NumShards(index string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if ir, ok := t.indices[index]; ok {
		return len(ir.Shards)
	}
	return 0
}

// ShardForRouting maps a routing key to the shard number that owns it, using
// FNV-1a so the mapping is deterministic across processes.
func ShardForRouting(key string, numShards int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32()) % numShards
}

// ResolveShards resolves index patterns into ordered shard iterators for the
// local cluster. When routing is non-empty, only the shard owning the routing
// key is resolved per index. Iterators are ordered by index name then shard
// number; within one shard, the primary is first, followed by replicas, with
// replicas on degraded nodes moved to the back.
func (t *Table) ResolveShards(patterns []string, routing string) ([]*search.ShardIterator, error) {
	matched, err := t.expandPatterns(patterns)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*search.ShardIterator
	for _, name := range matched {
		ir := t.indices[name]
		shardNums := make([]int, 0, len(ir.Shards))
		if routing != "" {
			shardNums = append(shardNums, ShardForRouting(routing, len(ir.Shards)))
		} else {
			for s := range ir.Shards {
				shardNums = append(shardNums, s)
			}
		}
		for _, s := range shardNums {
			replicas := ir.Shards[s]
			if len(replicas) == 0 {
				continue
			}
			targets := t.orderReplicas(replicas)
			shardID := search.ShardID{Index: name, UUID: ir.UUID, ID: s}
			out = append(out, search.NewShardIterator(shardID, remoteLocalAlias, patterns, targets))
		}
	}
	return out, nil
}

// remoteLocalAlias is the cluster alias stamped on locally-resolved shards.
const remoteLocalAlias = ""

// ResolvedShards returns the wire form of ResolveShards, served to remote
// clusters over /shards/resolve.
func (t *Table) ResolvedShards(patterns []string, routing string) ([]cluster.ResolvedShard, error) {
	iters, err := t.ResolveShards(patterns, routing)
	if err != nil {
		return nil, err
	}
	out := make([]cluster.ResolvedShard, 0, len(iters))
	for _, it := range iters {
		targets := make([]search.ShardTarget, 0, it.Size())
		for {
			tgt, ok := it.Next()
			if !ok {
				break
			}
			// Strip the local pattern context; the requesting cluster
			// stamps its own.
			tgt.OriginalIndices = nil
			targets = append(targets, tgt)
		}
		out = append(out, cluster.ResolvedShard{Shard: it.ShardID(), Targets: targets})
	}
	return out, nil
}

// expandPatterns matches patterns (with '*' globs and '-' exclusions) against
// the registered index names, returning matches sorted by name.
func (t *Table) expandPatterns(patterns []string) ([]string, error) {
	t.mu.RLock()
	names := make([]string, 0, len(t.indices))
	for name := range t.indices {
		names = append(names, name)
	}
	t.mu.RUnlock()
	sort.Strings(names)

	matched := make(map[string]bool)
	for _, p := range patterns {
		if p == "" {
			return nil, errors.New("routing: empty index pattern")
		}
		if strings.HasPrefix(p, "-") {
			body := strings.TrimPrefix(p, "-")
			for _, name := range names {
				if ok, _ := path.Match(body, name); ok || body == name {
					delete(matched, name)
				}
			}
			continue
		}
		for _, name := range names {
			if ok, _ := path.Match(p, name); ok || p == name {
				matched[name] = true
			}
		}
	}

	out := make([]string, 0, len(matched))
	for name := range matched {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// orderReplicas produces the candidate order for one shard: primary first,
// then replicas in registration order, then a stable partition that moves
// nodes past the miss threshold to the back.
func (t *Table) orderReplicas(replicas []Assignment) []search.ShardTarget {
	ordered := make([]Assignment, 0, len(replicas))
	for _, a := range replicas {
		if a.Primary {
			ordered = append(ordered, a)
		}
	}
	for _, a := range replicas {
		if !a.Primary {
			ordered = append(ordered, a)
		}
	}

	healthy := make([]Assignment, 0, len(ordered))
	var degraded []Assignment
	for _, a := range ordered {
		if t.health != nil && t.health.Misses(a.NodeID) >= t.maxMisses {
			degraded = append(degraded, a)
		} else {
			healthy = append(healthy, a)
		}
	}
	ordered = append(healthy, degraded...)

	targets := make([]search.ShardTarget, len(ordered))
	for i, a := range ordered {
		targets[i] = search.ShardTarget{NodeID: a.NodeID, NodeAddr: a.NodeAddr}
	}
	return targets
}
