package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/dreamware/scatter/internal/cluster"
	"github.com/dreamware/scatter/internal/coordinator"
	"github.com/dreamware/scatter/internal/search"
)

// handleRegister accepts a node announcement and folds it into the routing
// table. The first node to register an index holds its primaries; later
// registrants of the same index become replicas of every shard. Registration
// is idempotent so nodes can repeat it after reconnects.
func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Node.ID == "" || req.Node.Addr == "" {
		http.Error(w, "missing id/addr", http.StatusBadRequest)
		return
	}
	if req.Index == "" || req.NumShards <= 0 {
		http.Error(w, "missing index/num_shards", http.StatusBadRequest)
		return
	}

	if err := s.table.AddIndex(req.Index, req.NumShards); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if got := s.table.NumShards(req.Index); got != req.NumShards {
		http.Error(w, fmt.Sprintf("index %q already has %d shards", req.Index, got), http.StatusConflict)
		return
	}

	s.mu.Lock()
	idx := slices.IndexFunc(s.nodes, func(n cluster.NodeInfo) bool { return n.ID == req.Node.ID })
	if idx >= 0 {
		s.nodes[idx] = req.Node
	} else {
		s.nodes = append(s.nodes, req.Node)
	}
	if s.primaries[req.Index] == "" {
		s.primaries[req.Index] = req.Node.ID
	}
	primary := s.primaries[req.Index] == req.Node.ID
	s.mu.Unlock()

	for shard := 0; shard < req.NumShards; shard++ {
		if err := s.table.AssignReplica(req.Index, shard, req.Node.ID, req.Node.Addr, primary); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	s.logger.Info("node registered",
		zap.String("node", req.Node.ID),
		zap.String("index", req.Index),
		zap.Int("shards", req.NumShards),
		zap.Bool("primary", primary))
	w.WriteHeader(http.StatusNoContent)
}

// handleListNodes returns the registered nodes with their health state.
func (s *server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	nodes := append([]cluster.NodeInfo(nil), s.nodes...)
	s.mu.RUnlock()

	type nodeStatus struct {
		cluster.NodeInfo
		Healthy bool `json:"healthy"`
		Misses  int  `json:"misses"`
	}
	out := make([]nodeStatus, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, nodeStatus{
			NodeInfo: n,
			Healthy:  s.health.IsHealthy(n.ID),
			Misses:   s.health.Misses(n.ID),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct { //nolint:errcheck
		Nodes []nodeStatus `json:"nodes"`
	}{Nodes: out})
}

// handleSearch executes one search request end to end.
func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	resp, err := s.executeSearch(r.Context(), &req)
	if err != nil {
		s.writeSearchError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp) //nolint:errcheck
}

// scrollRequest is the body of /search/scroll: the cursor from the previous
// round and the keep-alive for the next one.
type scrollRequest struct {
	ScrollID string `json:"scroll_id"`
	Scroll   string `json:"scroll,omitempty"`
}

// handleScroll continues a scroll from an opaque cursor.
func (s *server) handleScroll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req scrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	entries, err := search.DecodeScrollID(req.ScrollID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	keepAlive := s.cfg.Node.ScrollKeepAlive
	if req.Scroll != "" {
		keepAlive, err = time.ParseDuration(req.Scroll)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid scroll keep-alive: %v", err), http.StatusBadRequest)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Coordinator.SearchTimeout)
	defer cancel()
	exec := coordinator.NewScrollSearch(s.logger, s.transport, s.metrics, entries, keepAlive, search.SystemTimeProvider())
	resp, err := exec.ExecuteSync(ctx)
	if err != nil {
		s.writeSearchError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp) //nolint:errcheck
}

// writeSearchError maps pipeline errors onto HTTP statuses: bad requests are
// the caller's fault, all-shards-failed and missing shards are 503, timeouts
// are 504, anything else 500.
func (s *server) writeSearchError(w http.ResponseWriter, err error) {
	var allFailed *coordinator.AllShardsFailedError
	switch {
	case errors.As(err, &allFailed):
		http.Error(w, allFailed.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, coordinator.ErrNoShards):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, coordinator.ErrCancelled):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	case strings.HasPrefix(err.Error(), "search:"), strings.HasPrefix(err.Error(), "remote:"), strings.HasPrefix(err.Error(), "routing:"):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleResolveShards serves shard resolution to remote coordinators.
func (s *server) handleResolveShards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.ResolveShardsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	shards, err := s.table.ResolvedShards(req.Indices, req.Routing)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cluster.ResolveShardsResponse{Shards: shards}) //nolint:errcheck
}

// handleShards dumps the routing table for inspection.
func (s *server) handleShards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	indices := s.table.Indices()
	type indexView struct {
		Index     string                  `json:"index"`
		NumShards int                     `json:"num_shards"`
		Shards    []cluster.ResolvedShard `json:"shards"`
	}
	out := make([]indexView, 0, len(indices))
	for _, name := range indices {
		shards, err := s.table.ResolvedShards([]string{name}, "")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out = append(out, indexView{Index: name, NumShards: s.table.NumShards(name), Shards: shards})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct { //nolint:errcheck
		Indices []indexView `json:"indices"`
	}{Indices: out})
}

// handleShardAssign manually places a replica, for rebalancing and tests.
func (s *server) handleShardAssign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Index    string `json:"index"`
		Shard    int    `json:"shard"`
		NodeID   string `json:"node_id"`
		NodeAddr string `json:"node_addr"`
		Primary  bool   `json:"primary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.table.AssignReplica(req.Index, req.Shard, req.NodeID, req.NodeAddr, req.Primary); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDoc routes a document operation to the shard owning its ID via the
// routing hash, forwarding to the primary-first replica of that shard.
//
// Path: /docs/{index}/{id}
func (s *server) handleDoc(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/docs/")
	slash := strings.Index(rest, "/")
	if slash <= 0 || slash == len(rest)-1 {
		http.Error(w, "path must be /docs/{index}/{id}", http.StatusBadRequest)
		return
	}
	index, docID := rest[:slash], rest[slash+1:]

	iters, err := s.table.ResolveShards([]string{index}, docID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(iters) == 0 {
		http.Error(w, fmt.Sprintf("no shards assigned for index %q", index), http.StatusServiceUnavailable)
		return
	}
	target, ok := iters[0].Next()
	if !ok {
		http.Error(w, "no replica available", http.StatusServiceUnavailable)
		return
	}

	url := fmt.Sprintf("%s/shard/%d/docs/%s", target.NodeAddr, target.Shard.ID, docID)
	s.forward(w, r, url)
}

// forward relays the request body and method to a node, copying the node's
// response back to the client.
func (s *server) forward(w http.ResponseWriter, r *http.Request, url string) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Coordinator.PerShardTimeout)
	defer cancel()

	var body io.Reader
	if r.Method == http.MethodPut || r.Method == http.MethodPost {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, url, body)
	if err != nil {
		http.Error(w, "failed to create request", http.StatusInternalServerError)
		return
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to forward request: %v", err), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body) //nolint:errcheck
}
