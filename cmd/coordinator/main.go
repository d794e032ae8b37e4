// Package main implements the Scatter coordinator, the node that accepts
// search requests, resolves them to shard groups across local and remote
// clusters, and drives the scatter-gather phases to a single merged response.
//
// The coordinator is responsible for:
//   - Accepting node registrations and maintaining the routing table
//   - Probing node health and deprioritizing degraded replicas
//   - Splitting index patterns between the local and remote clusters
//   - Executing searches, scrolls, and field-collapse expansion
//   - Serving shard resolution to remote coordinators
//   - Routing document writes to the owning shard
//
// HTTP API:
//
//	POST /register        - Node registration
//	GET  /nodes           - Registered nodes with health
//	POST /search          - Execute a search
//	POST /search/scroll   - Continue a scroll
//	POST /shards/resolve  - Resolve patterns for a remote coordinator
//	GET  /shards          - Current routing table
//	POST /shards/assign   - Manual replica assignment
//	PUT  /docs/{index}/{id} - Route a document write
//	GET  /metrics         - Prometheus metrics
//	GET  /health          - Health probe
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/dreamware/scatter/internal/cluster"
	"github.com/dreamware/scatter/internal/config"
	"github.com/dreamware/scatter/internal/coordinator"
	"github.com/dreamware/scatter/internal/logging"
	"github.com/dreamware/scatter/internal/remote"
	"github.com/dreamware/scatter/internal/routing"
	"github.com/dreamware/scatter/internal/search"
	"github.com/dreamware/scatter/internal/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "coordinator",
		Short:        "Scatter coordinator: routes and merges distributed searches",
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

// server holds the coordinator's wiring: routing state, remote cluster
// registry, health monitoring, and the shard transport. The mutex guards the
// node list and per-index primary bookkeeping; everything else synchronizes
// internally.
type server struct {
	cfg       *config.Config
	logger    *zap.Logger
	table     *routing.Table
	remotes   *remote.Registry
	resolver  remote.ShardResolver
	health    *coordinator.HealthMonitor
	transport coordinator.Transport
	metrics   *coordinator.Metrics

	mu        sync.RWMutex
	nodes     []cluster.NodeInfo
	primaries map[string]string // index -> node ID holding the primaries
}

// newServer wires the coordinator's components from configuration.
func newServer(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*server, error) {
	seeds := make([]remote.ClusterSeed, 0, len(cfg.Remotes))
	for _, r := range cfg.Remotes {
		seeds = append(seeds, remote.ClusterSeed{Alias: r.Alias, Seeds: r.Seeds})
	}
	remotes, err := remote.NewRegistry(seeds)
	if err != nil {
		return nil, err
	}

	s := &server{
		cfg:       cfg,
		logger:    logger,
		table:     routing.NewTable(cfg.Routing.MaxReplicaMisses),
		remotes:   remotes,
		resolver:  remote.NewHTTPResolver(remotes, logger),
		health:    coordinator.NewHealthMonitor(logger, cfg.Coordinator.HealthInterval, cfg.Routing.MaxReplicaMisses),
		transport: transport.NewHTTP(cfg.Coordinator.PerShardTimeout, logger),
		metrics:   coordinator.NewMetrics(reg),
		primaries: make(map[string]string),
	}

	s.table.SetHealthProvider(s.health)
	s.health.SetOnDead(s.dropNode)
	return s, nil
}

// start begins background health probing over the current node list.
func (s *server) start() {
	s.health.Start(func() []cluster.NodeInfo {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return append([]cluster.NodeInfo(nil), s.nodes...)
	})
}

func (s *server) stop() {
	s.health.Stop()
}

// dropNode removes a node that crossed the dead threshold from routing and
// from the registration list. It re-registers on recovery.
func (s *server) dropNode(nodeID string) {
	s.table.RemoveNode(nodeID)
	s.mu.Lock()
	s.nodes = slices.DeleteFunc(s.nodes, func(n cluster.NodeInfo) bool { return n.ID == nodeID })
	s.mu.Unlock()
	s.logger.Warn("removed dead node from routing", zap.String("node", nodeID))
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/nodes", s.handleListNodes)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/search/scroll", s.handleScroll)
	mux.HandleFunc("/shards/resolve", s.handleResolveShards)
	mux.HandleFunc("/shards/assign", s.handleShardAssign)
	mux.HandleFunc("/shards", s.handleShards)
	mux.HandleFunc("/docs/", s.handleDoc)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func run(cfg *config.Config) error {
	logger, err := logging.NewLogger(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	srv, err := newServer(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	srv.start()
	defer srv.stop()

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("coordinator listening",
			zap.String("listen", cfg.HTTP.Listen),
			zap.Strings("remote_clusters", srv.remotes.Aliases()))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	logger.Info("coordinator stopped")
	return nil
}

// executeSearch is the full search pipeline behind both the /search handler
// and expand-phase sub-searches: resolve shard groups across clusters, run
// the phases, merge.
func (s *server) executeSearch(ctx context.Context, req *search.Request) (*search.Response, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	groups, err := s.remotes.GroupIndices(req.Indices)
	if err != nil {
		return nil, err
	}

	remoteIters, err := remote.FetchShardGroups(ctx, s.resolver, groups)
	if err != nil {
		return nil, err
	}

	var localIters []*search.ShardIterator
	if local, ok := groups[remote.LocalCluster]; ok {
		localIters, err = s.table.ResolveShards(local, req.Routing)
		if err != nil {
			return nil, err
		}
	}

	group := routing.BuildGroups(remoteIters, localIters)
	exec := coordinator.NewSearch(s.logger, s.transport, s.metrics, req, group, search.SystemTimeProvider())
	exec.SetExpandFunc(s.executeSearch)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Coordinator.SearchTimeout)
	defer cancel()
	return exec.ExecuteSync(ctx)
}
