// Package main implements the Scatter data node, which hosts the shards of an
// index and serves the per-shard phases of a distributed search.
//
// The node is the worker half of the system, responsible for:
//   - Hosting a fixed number of shards for its configured index
//   - Executing query, fetch, combined, and scroll phases
//   - Ingesting and deleting documents
//   - Registering with the coordinator on startup
//   - Answering health probes and expiring stale scroll contexts
//
// HTTP API:
//
//	GET    /health                  - Health probe
//	POST   /shard/{n}/exec          - Execute one search phase on shard n
//	PUT    /shard/{n}/docs/{id}     - Store a document
//	GET    /shard/{n}/docs/{id}     - Retrieve a document
//	DELETE /shard/{n}/docs/{id}     - Delete a document
//	GET    /info                    - Node and shard statistics
//
// Configuration comes from an optional YAML file (--config) merged with
// SCATTER_* environment variables:
//
//	SCATTER_NODE_ID=node-1 \
//	SCATTER_NODE_PUBLIC_ADDR=http://localhost:8081 \
//	SCATTER_NODE_COORDINATOR_ADDR=http://localhost:8080 \
//	SCATTER_HTTP_LISTEN=:8081 \
//	./node
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dreamware/scatter/internal/cluster"
	"github.com/dreamware/scatter/internal/config"
	"github.com/dreamware/scatter/internal/coordinator"
	"github.com/dreamware/scatter/internal/logging"
	"github.com/dreamware/scatter/internal/search"
	"github.com/dreamware/scatter/internal/shard"
	"github.com/dreamware/scatter/internal/transport"
)

// Node is the runtime state of a data node: its identity and the shards it
// hosts. Shards are created up front from configuration; the map is read-only
// after construction, so handlers access it without locking. The purge mutex
// only serializes the scroll reaper against shutdown.
type Node struct {
	cfg    *config.Config
	logger *zap.Logger
	shards map[int]*shard.Shard

	purgeMu   sync.Mutex
	purgeStop chan struct{}
}

// NewNode builds a node with cfg.Node.NumShards primary shards of the
// configured index.
func NewNode(cfg *config.Config, logger *zap.Logger) *Node {
	shards := make(map[int]*shard.Shard, cfg.Node.NumShards)
	for i := 0; i < cfg.Node.NumShards; i++ {
		shards[i] = shard.New(cfg.Node.Index, i, true)
	}
	return &Node{
		cfg:       cfg,
		logger:    logger,
		shards:    shards,
		purgeStop: make(chan struct{}),
	}
}

// Shard returns the hosted shard with the given ID, or nil.
func (n *Node) Shard(id int) *shard.Shard {
	return n.shards[id]
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "node",
		Short:        "Scatter data node: hosts shards and serves search phases",
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	return cmd
}

// run starts the node, registers it with the coordinator, and serves until a
// shutdown signal arrives.
func run(cfg *config.Config) error {
	if cfg.Node.ID == "" {
		return errors.New("node: id is required (SCATTER_NODE_ID)")
	}
	if cfg.Node.CoordinatorAddr == "" {
		return errors.New("node: coordinator address is required (SCATTER_NODE_COORDINATOR_ADDR)")
	}

	logger, err := logging.NewLogger(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	node := NewNode(cfg, logger)
	logger.Info("node initialized",
		zap.String("id", cfg.Node.ID),
		zap.String("index", cfg.Node.Index),
		zap.Int("shards", cfg.Node.NumShards))

	server := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           node.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("node listening",
			zap.String("listen", cfg.HTTP.Listen),
			zap.String("public", cfg.Node.PublicAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if err := node.register(context.Background()); err != nil {
		return err
	}
	node.startScrollReaper()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	node.stopScrollReaper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	logger.Info("node stopped")
	return nil
}

func (n *Node) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/shard/", n.handleShardRequest)
	mux.HandleFunc("/info", n.handleInfo)
	return mux
}

// register announces the node to the coordinator, retrying to ride out
// coordinator startup delays. Registration carries the hosted index and its
// shard count so the coordinator can build routing without a separate
// assignment protocol.
func (n *Node) register(ctx context.Context) error {
	body := cluster.RegisterRequest{
		Node:      cluster.NodeInfo{ID: n.cfg.Node.ID, Addr: n.cfg.Node.PublicAddr},
		Index:     n.cfg.Node.Index,
		NumShards: n.cfg.Node.NumShards,
	}
	url := cluster.NormalizeAddr(n.cfg.Node.CoordinatorAddr) + "/register"

	var lastErr error
	for i := 0; i < 10; i++ {
		if lastErr = cluster.PostJSON(ctx, url, body, nil); lastErr == nil {
			n.logger.Info("registered with coordinator", zap.String("coordinator", n.cfg.Node.CoordinatorAddr))
			return nil
		}
		n.logger.Warn("register retry", zap.Int("attempt", i+1), zap.Error(lastErr))
		time.Sleep(400 * time.Millisecond)
	}
	return fmt.Errorf("node: failed to register with coordinator: %w", lastErr)
}

// startScrollReaper periodically drops scroll contexts whose keep-alive
// lapsed, so abandoned scrolls don't pin ranked hit lists forever.
func (n *Node) startScrollReaper() {
	interval := n.cfg.Node.ScrollKeepAlive / 2
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-n.purgeStop:
				return
			case <-ticker.C:
				n.purgeMu.Lock()
				now := time.Now()
				purged := 0
				for _, s := range n.shards {
					purged += s.PurgeExpired(now)
				}
				n.purgeMu.Unlock()
				if purged > 0 {
					n.logger.Debug("purged scroll contexts", zap.Int("count", purged))
				}
			}
		}
	}()
}

func (n *Node) stopScrollReaper() {
	close(n.purgeStop)
}

// handleShardRequest routes /shard/{n}/... paths to the hosted shard:
// /shard/{n}/exec runs a search phase, /shard/{n}/docs/{id} manages
// documents.
func (n *Node) handleShardRequest(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/shard/")
	slash := strings.Index(rest, "/")
	if slash == -1 {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	shardID, err := strconv.Atoi(rest[:slash])
	if err != nil {
		http.Error(w, "invalid shard ID", http.StatusBadRequest)
		return
	}
	s := n.Shard(shardID)
	if s == nil {
		http.Error(w, fmt.Sprintf("shard %d not hosted here", shardID), http.StatusNotFound)
		return
	}

	switch tail := rest[slash+1:]; {
	case tail == "exec" && r.Method == http.MethodPost:
		n.handleExec(s, w, r)
	case strings.HasPrefix(tail, "docs/"):
		n.handleDoc(s, strings.TrimPrefix(tail, "docs/"), w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// handleExec executes one search phase against a shard and answers with the
// transport envelope. Phase failures are reported inside the envelope with
// status 200; the coordinator turns them into shard failures. Only transport
// level problems (bad JSON, unknown phase) use error status codes.
func (n *Node) handleExec(s *shard.Shard, w http.ResponseWriter, r *http.Request) {
	var req coordinator.ShardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var env transport.ShardResponse
	switch req.Phase {
	case coordinator.PhaseQuery, coordinator.PhaseDfsQuery:
		// Term statistics are shard-local here, so the dfs variant scores
		// the same way; the phase is still honored so wire semantics match.
		res, err := s.Query(queryParams(&req, false))
		if err != nil {
			env.Error = err.Error()
			break
		}
		env.Query = res
	case coordinator.PhaseQueryFetch:
		res, err := s.Query(queryParams(&req, true))
		if err != nil {
			env.Error = err.Error()
			break
		}
		env.QueryFetch = &search.QueryFetchResult{Query: *res}
	case coordinator.PhaseFetch:
		env.Fetch = s.Fetch(req.DocIDs)
	case coordinator.PhaseScroll:
		res, err := s.Scroll(req.ContextID, req.Scroll)
		if err != nil {
			env.Error = err.Error()
			break
		}
		env.QueryFetch = res
	default:
		http.Error(w, fmt.Sprintf("unknown phase %q", req.Phase), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(&env); err != nil {
		n.logger.Warn("encode shard response", zap.Error(err))
	}
}

func queryParams(req *coordinator.ShardRequest, withSources bool) shard.QueryParams {
	return shard.QueryParams{
		Query:          req.Query,
		Size:           req.Size,
		TrackTotalHits: req.TrackTotalHits,
		Aggregations:   req.Aggregations,
		Scroll:         req.Scroll,
		CollapseField:  req.CollapseField,
		WithSources:    withSources,
	}
}

// handleDoc serves document CRUD on one shard.
func (n *Node) handleDoc(s *shard.Shard, id string, w http.ResponseWriter, r *http.Request) {
	if id == "" {
		http.Error(w, "document ID required", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		if !json.Valid(body) {
			http.Error(w, "document must be a JSON object", http.StatusBadRequest)
			return
		}
		if err := s.Put(id, body); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		doc, err := s.Store.Get(id)
		if err != nil {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc) //nolint:errcheck
	case http.MethodDelete:
		if err := s.Delete(id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleInfo reports the node's shard inventory with operation and storage
// statistics, for dashboards and debugging.
func (n *Node) handleInfo(w http.ResponseWriter, _ *http.Request) {
	type shardInfo struct {
		ID           int    `json:"id"`
		Index        string `json:"index"`
		Primary      bool   `json:"primary"`
		Docs         int    `json:"docs"`
		Bytes        int    `json:"bytes"`
		Queries      uint64 `json:"queries"`
		Fetches      uint64 `json:"fetches"`
		Scrolls      uint64 `json:"scrolls"`
		OpenContexts int    `json:"open_contexts"`
	}

	infos := make([]shardInfo, 0, len(n.shards))
	for i := 0; i < len(n.shards); i++ {
		s := n.shards[i]
		ops, store := s.Stats()
		infos = append(infos, shardInfo{
			ID:           s.ID,
			Index:        s.Index,
			Primary:      s.Primary,
			Docs:         store.Docs,
			Bytes:        store.Bytes,
			Queries:      ops.Queries,
			Fetches:      ops.Fetches,
			Scrolls:      ops.Scrolls,
			OpenContexts: s.OpenContexts(),
		})
	}

	resp := struct {
		NodeID string      `json:"node_id"`
		Index  string      `json:"index"`
		Shards []shardInfo `json:"shards"`
		Count  int         `json:"shard_count"`
	}{
		NodeID: n.cfg.Node.ID,
		Index:  n.cfg.Node.Index,
		Shards: infos,
		Count:  len(infos),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp) //nolint:errcheck
}

